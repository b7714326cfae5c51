// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Validation cache configuration.
const (
	// ValidationCacheTTL bounds how long a cached validation may be
	// trusted. It is also the worst-case exposure window of a revoked key
	// on the cache-hit path, since revocation cannot evict entries (the
	// cache is keyed by a fingerprint of a plaintext the revoker does not
	// have). Accepted tradeoff, not a bug.
	ValidationCacheTTL = 5 * time.Minute

	// ValidationCacheSize caps the number of cached validations.
	ValidationCacheSize = 1024
)

// cachedKey pairs a key snapshot with its insert time so staleness can be
// judged at read time.
type cachedKey struct {
	key      *APIKey
	storedAt time.Time
}

// ValidationCache maps API key fingerprints to the last-known key snapshot,
// amortizing the slow-hash cost of repeat validations. Safe for concurrent
// use. Expiry is checked on access; the cache runs no background sweeper and
// starts no goroutines.
//
// A hit is only authoritative for identity: the caller must re-check the
// snapshot's active flag and expiry on every hit, never trusting staleness.
type ValidationCache struct {
	entries *lru.Cache[string, cachedKey]
	ttl     time.Duration
	now     func() time.Time
}

// CacheOption configures a ValidationCache.
type CacheOption func(*ValidationCache)

// WithCacheClock overrides the time source. Tests only.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *ValidationCache) {
		c.now = now
	}
}

// NewValidationCache creates a ValidationCache with the given size cap and TTL.
func NewValidationCache(size int, ttl time.Duration, opts ...CacheOption) *ValidationCache {
	if size <= 0 {
		size = ValidationCacheSize
	}
	entries, _ := lru.New[string, cachedKey](size)
	c := &ValidationCache{
		entries: entries,
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached snapshot for a fingerprint. An entry past the TTL
// is dropped and reported as a miss.
func (c *ValidationCache) Get(fingerprint string) (*APIKey, bool) {
	entry, ok := c.entries.Get(fingerprint)
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.entries.Remove(fingerprint)
		return nil, false
	}
	return entry.key, true
}

// Put stores a validated key snapshot under its fingerprint.
func (c *ValidationCache) Put(fingerprint string, key *APIKey) {
	c.entries.Add(fingerprint, cachedKey{key: key, storedAt: c.now()})
}

// Len returns the number of stored entries. Entries past the TTL are counted
// until a Get drops them.
func (c *ValidationCache) Len() int {
	return c.entries.Len()
}
