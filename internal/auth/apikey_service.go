// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/quillnotes/quill/internal/observability"
)

// APIKeyService issues, validates, and revokes long-lived opaque keys for
// machine clients.
//
// The slow hash is non-negotiable for secret storage, but verifying it
// against every active key on every request would be an O(N) denial of
// service vector. Two mechanisms collapse the cost: the plaintext lookup
// prefix narrows candidates to ~1 before the slow hash runs, and the
// validation cache drops repeat-request cost to a fast digest. Revocation
// stays near-real-time because every cache hit re-checks the snapshot's
// active flag and expiry; its worst case is bounded by the cache TTL.
type APIKeyService struct {
	keys   APIKeyRepository
	hasher SecretHasher
	cache  *ValidationCache
	now    func() time.Time
}

// APIKeyServiceOption configures an APIKeyService.
type APIKeyServiceOption func(*APIKeyService)

// WithAPIKeyClock overrides the time source, for deterministic tests.
func WithAPIKeyClock(now func() time.Time) APIKeyServiceOption {
	return func(s *APIKeyService) { s.now = now }
}

// WithValidationCache substitutes the validation cache, for tests that
// need a different TTL.
func WithValidationCache(cache *ValidationCache) APIKeyServiceOption {
	return func(s *APIKeyService) { s.cache = cache }
}

// NewAPIKeyService creates a new APIKeyService.
func NewAPIKeyService(keys APIKeyRepository, hasher SecretHasher, opts ...APIKeyServiceOption) *APIKeyService {
	s := &APIKeyService{
		keys:   keys,
		hasher: hasher,
		cache:  NewValidationCache(ValidationCacheSize, ValidationCacheTTL),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate creates a new API key. The returned plaintext is shown to the
// caller exactly once and is not retrievable afterwards: only its slow hash
// and the short lookup prefix are stored.
func (s *APIKeyService) Generate(ctx context.Context, name string, elevated bool, createdBy ulid.ULID, expiresAt *time.Time) (string, *APIKey, error) {
	plaintext, err := GenerateAPIKeyValue()
	if err != nil {
		return "", nil, err
	}

	keyHash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return "", nil, oops.Code("APIKEY_GENERATE_FAILED").
			With("operation", "hash key").
			Wrap(err)
	}

	key, err := NewAPIKey(name, keyHash, plaintext[:APIKeyLookupPrefixLen], elevated, createdBy, expiresAt)
	if err != nil {
		return "", nil, err
	}

	if err := s.keys.Create(ctx, key); err != nil {
		return "", nil, oops.Code("APIKEY_GENERATE_FAILED").
			With("operation", "persist key").
			With("key_id", key.ID.String()).
			Wrap(err)
	}

	return plaintext, key, nil
}

// Validate authenticates a presented key value. On success it returns a
// Principal tagged with the api-key method; an unknown, revoked, or expired
// key returns (nil, nil) so the caller maps it to a uniform authentication
// failure. Only unexpected failures (storage unavailable) return an error.
func (s *APIKeyService) Validate(ctx context.Context, presented string) (*Principal, error) {
	// Format fast-fail: no hash work for garbage input.
	if !WellFormedAPIKey(presented) {
		return nil, nil
	}

	fingerprint := APIKeyFingerprint(presented)

	// Cache hit: trust identity, never staleness. Active flag and expiry
	// are re-checked on every hit.
	if snapshot, ok := s.cache.Get(fingerprint); ok {
		observability.RecordKeyCacheLookup(true)
		if !snapshot.Active || snapshot.IsExpired(s.now()) {
			return nil, nil
		}
		return s.principalFor(snapshot), nil
	}
	observability.RecordKeyCacheLookup(false)

	// Miss: indexed lookup by the plaintext prefix, ~1 candidate.
	candidates, err := s.keys.GetByPrefix(ctx, presented[:APIKeyLookupPrefixLen])
	if err != nil {
		return nil, oops.Code("APIKEY_VALIDATE_FAILED").
			With("operation", "GetByPrefix").
			Wrap(err)
	}

	now := s.now()
	for _, candidate := range candidates {
		// Expiry is cheap; check it before paying for the slow hash.
		if candidate.IsExpired(now) {
			continue
		}

		match, verifyErr := s.hasher.Verify(presented, candidate.KeyHash)
		if verifyErr != nil || !match {
			continue
		}

		s.cache.Put(fingerprint, candidate)
		return s.principalFor(candidate), nil
	}

	return nil, nil
}

// Revoke deactivates a key. Idempotent; the row is kept for audit. The
// validation cache is not evicted (its key is a fingerprint of a plaintext
// this call does not have), so a revoked key may validate from cache for up
// to ValidationCacheTTL.
func (s *APIKeyService) Revoke(ctx context.Context, id ulid.ULID) error {
	if err := s.keys.Revoke(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return oops.Code("APIKEY_REVOKE_FAILED").
			With("key_id", id.String()).
			Wrap(err)
	}
	return nil
}

// List returns all keys, including revoked ones.
func (s *APIKeyService) List(ctx context.Context) ([]*APIKey, error) {
	keys, err := s.keys.List(ctx)
	if err != nil {
		return nil, oops.Code("APIKEY_LIST_FAILED").Wrap(err)
	}
	return keys, nil
}

func (s *APIKeyService) principalFor(key *APIKey) *Principal {
	keyID := key.ID
	return &Principal{
		Subject: key.CreatedBy,
		Label:   key.Name,
		Role:    key.Role(),
		Method:  MethodAPIKey,
		KeyID:   &keyID,
	}
}
