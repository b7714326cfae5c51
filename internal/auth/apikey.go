// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// API key textual format: fixed family prefix, underscore, then 64 lowercase
// hex chars from 32 random bytes. Total length is fixed and checked before
// any hashing.
const (
	APIKeyPrefix      = "quill_"
	APIKeyRandomBytes = 32
	APIKeyLength      = len(APIKeyPrefix) + APIKeyRandomBytes*2

	// APIKeyLookupPrefixLen is how many leading characters are stored in
	// plaintext for indexed lookup. The prefix is not secret; it exists so
	// validation queries ~1 candidate row instead of sweeping every key.
	APIKeyLookupPrefixLen = len(APIKeyPrefix) + 6
)

// APIKey name constraints.
const MaxAPIKeyNameLength = 100

// APIKey represents a long-lived opaque machine credential, independent of
// any account identity. The full plaintext key is returned exactly once at
// creation; only its slow hash and the short lookup prefix are stored.
type APIKey struct {
	ID        ulid.ULID
	Name      string
	KeyHash   string
	KeyPrefix string
	Elevated  bool
	Active    bool
	ExpiresAt *time.Time
	CreatedBy ulid.ULID
	CreatedAt time.Time
}

// NewAPIKey creates a validated APIKey record.
func NewAPIKey(name, keyHash, keyPrefix string, elevated bool, createdBy ulid.ULID, expiresAt *time.Time) (*APIKey, error) {
	if name == "" {
		return nil, oops.Code("APIKEY_INVALID_NAME").Errorf("key name cannot be empty")
	}
	if len(name) > MaxAPIKeyNameLength {
		return nil, oops.Code("APIKEY_INVALID_NAME").
			With("max", MaxAPIKeyNameLength).
			Errorf("key name must be at most %d characters", MaxAPIKeyNameLength)
	}
	if keyHash == "" {
		return nil, oops.Code("APIKEY_INVALID_HASH").Errorf("key hash cannot be empty")
	}
	if len(keyPrefix) != APIKeyLookupPrefixLen {
		return nil, oops.Code("APIKEY_INVALID_PREFIX").
			With("want_len", APIKeyLookupPrefixLen).
			Errorf("key prefix has wrong length")
	}
	if createdBy.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("APIKEY_INVALID_CREATOR").Errorf("creator ID cannot be zero")
	}

	return &APIKey{
		ID:        ulid.Make(),
		Name:      name,
		KeyHash:   keyHash,
		KeyPrefix: keyPrefix,
		Elevated:  elevated,
		Active:    true,
		ExpiresAt: expiresAt,
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
	}, nil
}

// IsExpired returns true if the key has an absolute expiry in the past.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// Role returns the role the key confers.
func (k *APIKey) Role() Role {
	if k.Elevated {
		return RoleElevated
	}
	return RoleOrdinary
}

// GenerateAPIKeyValue draws cryptographically secure random bytes and
// encodes them as a plaintext key in the fixed textual format.
func GenerateAPIKeyValue() (string, error) {
	raw := make([]byte, APIKeyRandomBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", oops.Code("APIKEY_GENERATE_FAILED").
			With("requested_bytes", APIKeyRandomBytes).
			Wrap(err)
	}
	return APIKeyPrefix + hex.EncodeToString(raw), nil
}

// WellFormedAPIKey reports whether a presented value has the exact key
// format. Checked before any hashing so garbage input never costs a slow
// hash operation.
func WellFormedAPIKey(presented string) bool {
	if len(presented) != APIKeyLength {
		return false
	}
	if !strings.HasPrefix(presented, APIKeyPrefix) {
		return false
	}
	for _, c := range presented[len(APIKeyPrefix):] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// APIKeyFingerprint computes a fast SHA-256 digest of a presented key.
// It keys the validation cache, so a cache entry never holds the plaintext.
func APIKeyFingerprint(presented string) string {
	h := sha256.Sum256([]byte(presented))
	return hex.EncodeToString(h[:])
}

// APIKeyRepository manages API key persistence.
type APIKeyRepository interface {
	// Create stores a new API key record.
	Create(ctx context.Context, key *APIKey) error

	// GetByID retrieves a key by ID, active or not.
	GetByID(ctx context.Context, id ulid.ULID) (*APIKey, error)

	// GetByPrefix retrieves the active keys sharing a lookup prefix.
	// Expected cardinality is ~1; collisions return multiple candidates.
	GetByPrefix(ctx context.Context, prefix string) ([]*APIKey, error)

	// List returns all keys, newest first, including revoked ones.
	List(ctx context.Context) ([]*APIKey, error)

	// Revoke flips active to false. Idempotent: revoking an already
	// revoked key succeeds. Returns ErrNotFound for an unknown id.
	// The row is never deleted, preserving the audit trail.
	Revoke(ctx context.Context, id ulid.ULID) error
}
