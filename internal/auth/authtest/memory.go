// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package authtest provides in-memory repository implementations for
// testing. They mirror the semantics of the PostgreSQL repositories:
// first account elevated, case-insensitive email uniqueness, atomic
// single-winner token claims, prefix lookups over active keys only.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/quillnotes/quill/internal/auth"
)

// AccountStore is an in-memory auth.AccountRepository.
type AccountStore struct {
	mu       sync.Mutex
	accounts map[ulid.ULID]*auth.Account
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[ulid.ULID]*auth.Account)}
}

// Create stores an account, promoting the first one ever to elevated.
func (s *AccountStore) Create(_ context.Context, account *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.Email == account.Email {
			return auth.ErrConflict
		}
	}
	if len(s.accounts) == 0 {
		account.Role = auth.RoleElevated
	}

	clone := *account
	s.accounts[account.ID] = &clone
	return nil
}

// GetByID returns a copy of the stored account.
func (s *AccountStore) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *account
	return &clone, nil
}

// GetByEmail returns a copy of the account with the given email.
func (s *AccountStore) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.accounts {
		if account.Email == email {
			clone := *account
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

// Update replaces the stored account.
func (s *AccountStore) Update(_ context.Context, account *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; !ok {
		return auth.ErrNotFound
	}
	clone := *account
	s.accounts[account.ID] = &clone
	return nil
}

// UpdatePassword sets only the password hash.
func (s *AccountStore) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	account.PasswordHash = passwordHash
	account.UpdatedAt = time.Now()
	return nil
}

// SetToken overwrites the token slot for the purpose.
func (s *AccountStore) SetToken(_ context.Context, id ulid.ULID, purpose auth.TokenPurpose, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	switch purpose {
	case auth.PurposeEmailVerify:
		account.VerifyTokenHash = &tokenHash
		account.VerifyTokenExpires = &expiresAt
	case auth.PurposePasswordReset:
		account.ResetTokenHash = &tokenHash
		account.ResetTokenExpires = &expiresAt
	}
	return nil
}

// ClaimToken atomically consumes a live token; of two concurrent claims
// exactly one succeeds.
func (s *AccountStore) ClaimToken(_ context.Context, purpose auth.TokenPurpose, tokenHash string, now time.Time) (ulid.ULID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.accounts {
		hash, expires := account.ResetTokenHash, account.ResetTokenExpires
		if purpose == auth.PurposeEmailVerify {
			hash, expires = account.VerifyTokenHash, account.VerifyTokenExpires
		}
		if hash == nil || *hash != tokenHash {
			continue
		}
		if expires == nil || !expires.After(now) {
			continue
		}

		if purpose == auth.PurposeEmailVerify {
			account.VerifyTokenHash = nil
			account.VerifyTokenExpires = nil
			account.EmailVerified = true
		} else {
			account.ResetTokenHash = nil
			account.ResetTokenExpires = nil
		}
		return account.ID, nil
	}
	return ulid.ULID{}, auth.ErrNotFound
}

// GetByTokenHash finds the holder of a token hash regardless of expiry.
func (s *AccountStore) GetByTokenHash(_ context.Context, purpose auth.TokenPurpose, tokenHash string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.accounts {
		hash := account.ResetTokenHash
		if purpose == auth.PurposeEmailVerify {
			hash = account.VerifyTokenHash
		}
		if hash != nil && *hash == tokenHash {
			clone := *account
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

// ClearExpiredTokens nulls out expired slots and counts touched accounts.
func (s *AccountStore) ClearExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cleared int64
	for _, account := range s.accounts {
		touched := false
		if account.VerifyTokenExpires != nil && !account.VerifyTokenExpires.After(now) {
			account.VerifyTokenHash = nil
			account.VerifyTokenExpires = nil
			touched = true
		}
		if account.ResetTokenExpires != nil && !account.ResetTokenExpires.After(now) {
			account.ResetTokenHash = nil
			account.ResetTokenExpires = nil
			touched = true
		}
		if touched {
			cleared++
		}
	}
	return cleared, nil
}

// APIKeyStore is an in-memory auth.APIKeyRepository.
type APIKeyStore struct {
	mu   sync.Mutex
	keys map[ulid.ULID]*auth.APIKey

	prefixQueries int
}

// NewAPIKeyStore creates an empty APIKeyStore.
func NewAPIKeyStore() *APIKeyStore {
	return &APIKeyStore{keys: make(map[ulid.ULID]*auth.APIKey)}
}

// Create stores a key record.
func (s *APIKeyStore) Create(_ context.Context, key *auth.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *key
	s.keys[key.ID] = &clone
	return nil
}

// GetByID returns a copy of the key, active or not.
func (s *APIKeyStore) GetByID(_ context.Context, id ulid.ULID) (*auth.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *key
	return &clone, nil
}

// GetByPrefix returns copies of the active keys sharing the lookup prefix.
func (s *APIKeyStore) GetByPrefix(_ context.Context, prefix string) ([]*auth.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefixQueries++

	var matches []*auth.APIKey
	for _, key := range s.keys {
		if key.Active && key.KeyPrefix == prefix {
			clone := *key
			matches = append(matches, &clone)
		}
	}
	return matches, nil
}

// List returns copies of all keys, revoked ones included.
func (s *APIKeyStore) List(_ context.Context) ([]*auth.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]*auth.APIKey, 0, len(s.keys))
	for _, key := range s.keys {
		clone := *key
		keys = append(keys, &clone)
	}
	return keys, nil
}

// Revoke deactivates a key, keeping the record.
func (s *APIKeyStore) Revoke(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok {
		return auth.ErrNotFound
	}
	key.Active = false
	return nil
}

// PrefixQueries reports how many GetByPrefix calls the store has served,
// for asserting on cache behavior.
func (s *APIKeyStore) PrefixQueries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefixQueries
}
