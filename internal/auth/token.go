// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Single-use token configuration.
const (
	SingleUseTokenBytes  = 32               // 32 bytes = 256 bits = 64 hex chars
	SingleUseTokenExpiry = 20 * time.Minute // expiry window
)

// TokenPurpose selects which token slot on the account a single-use token
// occupies. Each purpose has an independent slot; at most one token per
// account per purpose is outstanding.
type TokenPurpose string

const (
	PurposeEmailVerify   TokenPurpose = "email_verify"
	PurposePasswordReset TokenPurpose = "password_reset"
)

// Valid reports whether the purpose is one of the known values.
func (p TokenPurpose) Valid() bool {
	return p == PurposeEmailVerify || p == PurposePasswordReset
}

// GenerateSingleUseToken creates a high-entropy random token and its hash.
// Returns (plaintext_token, sha256_hash, error). The plaintext token goes
// into the emailed link and is never stored or logged; only the hash is
// persisted.
func GenerateSingleUseToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SingleUseTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("requested_bytes", SingleUseTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashSingleUseToken(token)

	return token, hash, nil
}

// HashSingleUseToken computes the SHA-256 hash of a single-use token.
// A fast hash is sufficient here: the token itself carries 256 bits of
// entropy, so brute-forcing the preimage is not a concern.
func HashSingleUseToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenService issues and consumes single-use tokens for email verification
// and password reset. Tokens are hashed at rest and valid until consumed
// once or expired, whichever comes first.
type TokenService struct {
	accounts AccountRepository
	expiry   time.Duration
	now      func() time.Time
}

// TokenServiceOption configures a TokenService.
type TokenServiceOption func(*TokenService)

// WithTokenExpiry overrides the default token expiry window.
func WithTokenExpiry(d time.Duration) TokenServiceOption {
	return func(s *TokenService) { s.expiry = d }
}

// WithTokenClock overrides the time source, for deterministic tests.
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService creates a new TokenService.
func NewTokenService(accounts AccountRepository, opts ...TokenServiceOption) *TokenService {
	s := &TokenService{
		accounts: accounts,
		expiry:   SingleUseTokenExpiry,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue generates a token for the account/purpose, stores its hash and
// expiry, and returns the plaintext token and expiry. Any outstanding token
// for the same account/purpose is superseded by the overwrite.
func (s *TokenService) Issue(ctx context.Context, accountID ulid.ULID, purpose TokenPurpose) (string, time.Time, error) {
	if !purpose.Valid() {
		return "", time.Time{}, oops.Code("TOKEN_INVALID_PURPOSE").
			With("purpose", string(purpose)).
			Errorf("unknown token purpose")
	}

	token, hash, err := GenerateSingleUseToken()
	if err != nil {
		return "", time.Time{}, err
	}

	expiresAt := s.now().Add(s.expiry)
	if err := s.accounts.SetToken(ctx, accountID, purpose, hash, expiresAt); err != nil {
		return "", time.Time{}, oops.Code("TOKEN_ISSUE_FAILED").
			With("operation", "SetToken").
			With("purpose", string(purpose)).
			Wrap(err)
	}

	return token, expiresAt, nil
}

// Consume redeems a plaintext token for the given purpose, returning the
// account id it belonged to. The stored hash and expiry are cleared in the
// same statement, so the token can never be consumed twice: of two
// concurrent consumers, exactly one succeeds.
//
// Returns ErrNotFound for an unknown (or already consumed) token and
// ErrExpired for a token past its expiry. The password-reset caller must
// collapse both into one generic failure; the verification caller may
// surface the distinction.
func (s *TokenService) Consume(ctx context.Context, token string, purpose TokenPurpose) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, ErrNotFound
	}
	if !purpose.Valid() {
		return ulid.ULID{}, oops.Code("TOKEN_INVALID_PURPOSE").
			With("purpose", string(purpose)).
			Errorf("unknown token purpose")
	}

	hash := HashSingleUseToken(token)
	now := s.now()

	accountID, err := s.accounts.ClaimToken(ctx, purpose, hash, now)
	if err == nil {
		return accountID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return ulid.ULID{}, oops.Code("TOKEN_CONSUME_FAILED").
			With("operation", "ClaimToken").
			With("purpose", string(purpose)).
			Wrap(err)
	}

	// No live slot matched. Check whether the hash is still present but
	// expired, so callers that are allowed to can report Expired.
	if _, lookupErr := s.accounts.GetByTokenHash(ctx, purpose, hash); lookupErr == nil {
		return ulid.ULID{}, ErrExpired
	}

	return ulid.ULID{}, ErrNotFound
}
