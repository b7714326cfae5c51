// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// argon2id parameters, tuned so a single hash costs on the order of
// 100-300ms on commodity hardware. Stored hashes are self-describing,
// so these can be raised later without invalidating existing hashes.
const (
	argon2Time    = 3         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 2         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// ErrEmptySecret is returned when attempting to hash an empty secret.
var ErrEmptySecret = oops.Code("AUTH_EMPTY_SECRET").Errorf("secret cannot be empty")

// SecretHasher provides slow one-way hashing for passwords and API keys.
type SecretHasher interface {
	// Hash produces a salted, self-describing hash of the secret.
	Hash(secret string) (string, error)

	// Verify checks if the secret matches the hash in constant time.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on
	// a malformed hash.
	Verify(secret, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash should be re-derived with the
	// current algorithm.
	NeedsUpgrade(hash string) bool
}

// Argon2idHasher implements SecretHasher using argon2id, encoded in the
// PHC string format: $argon2id$v=19$m=65536,t=3,p=2$<salt>$<digest>.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// argon2Params holds the cost factors decoded from a stored hash.
type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint32
	salt    []byte
	digest  []byte
}

// Hash produces an argon2id hash of the secret with a fresh random salt.
func (h *Argon2idHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	digest := argon2.IDKey([]byte(secret), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)

	return encoded, nil
}

// Verify checks if the secret matches the stored hash. The comparison is
// constant time and never short-circuits on an early byte mismatch.
func (h *Argon2idHasher) Verify(secret, encodedHash string) (bool, error) {
	p, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(secret), p.salt, p.time, p.memory, uint8(p.threads), uint32(len(p.digest)))

	return subtle.ConstantTimeCompare(computed, p.digest) == 1, nil
}

// NeedsUpgrade returns true if the hash is not argon2id (e.g., a legacy
// bcrypt hash from an imported account database).
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	return !strings.HasPrefix(hash, "$argon2id$")
}

// decodeHash parses a PHC-format argon2id hash into its parameters.
func decodeHash(encodedHash string) (*argon2Params, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version: %d", version)
	}

	p := &argon2Params{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	// Threads must fit in uint8 to prevent silent truncation.
	if p.threads == 0 || p.threads > 255 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", p.threads)
	}

	var err error
	p.salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	p.digest, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if len(p.digest) == 0 || len(p.digest) > 1<<10 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid digest length: %d", len(p.digest))
	}

	return p, nil
}
