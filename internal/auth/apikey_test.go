// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillnotes/quill/internal/auth"
)

func TestGenerateAPIKeyValue(t *testing.T) {
	t.Run("has the fixed format", func(t *testing.T) {
		key, err := auth.GenerateAPIKeyValue()
		require.NoError(t, err)
		assert.Len(t, key, auth.APIKeyLength)
		assert.True(t, strings.HasPrefix(key, auth.APIKeyPrefix))
		assert.True(t, auth.WellFormedAPIKey(key))
	})

	t.Run("keys are unique", func(t *testing.T) {
		key1, err := auth.GenerateAPIKeyValue()
		require.NoError(t, err)
		key2, err := auth.GenerateAPIKeyValue()
		require.NoError(t, err)
		assert.NotEqual(t, key1, key2)
	})
}

func TestWellFormedAPIKey(t *testing.T) {
	valid, err := auth.GenerateAPIKeyValue()
	require.NoError(t, err)

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{name: "generated key", key: valid, want: true},
		{name: "empty", key: "", want: false},
		{name: "too short", key: "quill_abc123", want: false},
		{name: "too long", key: valid + "ff", want: false},
		{name: "wrong family prefix", key: "nibQ_" + valid[5:], want: false},
		{name: "uppercase hex rejected", key: valid[:auth.APIKeyLength-1] + "F", want: false},
		{name: "non-hex body", key: valid[:auth.APIKeyLength-1] + "g", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.WellFormedAPIKey(tt.key))
		})
	}
}

func TestAPIKeyFingerprint(t *testing.T) {
	t.Run("deterministic and hex", func(t *testing.T) {
		fp1 := auth.APIKeyFingerprint("quill_aaaa")
		fp2 := auth.APIKeyFingerprint("quill_aaaa")
		assert.Equal(t, fp1, fp2)
		assert.Len(t, fp1, 64)
	})

	t.Run("distinct inputs differ", func(t *testing.T) {
		assert.NotEqual(t, auth.APIKeyFingerprint("quill_aaaa"), auth.APIKeyFingerprint("quill_aaab"))
	})
}

func TestNewAPIKey(t *testing.T) {
	creator := ulid.Make()
	prefix := strings.Repeat("a", auth.APIKeyLookupPrefixLen)

	t.Run("valid key", func(t *testing.T) {
		key, err := auth.NewAPIKey("ci-pipeline", "$argon2id$hash", prefix, false, creator, nil)
		require.NoError(t, err)
		assert.True(t, key.Active)
		assert.False(t, key.Elevated)
		assert.Equal(t, auth.RoleOrdinary, key.Role())
	})

	t.Run("elevated key confers elevated role", func(t *testing.T) {
		key, err := auth.NewAPIKey("admin-bot", "$argon2id$hash", prefix, true, creator, nil)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleElevated, key.Role())
	})

	t.Run("empty name rejected", func(t *testing.T) {
		_, err := auth.NewAPIKey("", "$argon2id$hash", prefix, false, creator, nil)
		assert.Error(t, err)
	})

	t.Run("overlong name rejected", func(t *testing.T) {
		_, err := auth.NewAPIKey(strings.Repeat("x", auth.MaxAPIKeyNameLength+1), "$argon2id$hash", prefix, false, creator, nil)
		assert.Error(t, err)
	})

	t.Run("wrong prefix length rejected", func(t *testing.T) {
		_, err := auth.NewAPIKey("ci-pipeline", "$argon2id$hash", "short", false, creator, nil)
		assert.Error(t, err)
	})

	t.Run("zero creator rejected", func(t *testing.T) {
		_, err := auth.NewAPIKey("ci-pipeline", "$argon2id$hash", prefix, false, ulid.ULID{}, nil)
		assert.Error(t, err)
	})
}

func TestAPIKeyIsExpired(t *testing.T) {
	now := time.Now()

	t.Run("nil expiry never expires", func(t *testing.T) {
		key := &auth.APIKey{}
		assert.False(t, key.IsExpired(now))
	})

	t.Run("future expiry is live", func(t *testing.T) {
		future := now.Add(time.Hour)
		key := &auth.APIKey{ExpiresAt: &future}
		assert.False(t, key.IsExpired(now))
	})

	t.Run("past expiry is expired", func(t *testing.T) {
		past := now.Add(-time.Hour)
		key := &auth.APIKey{ExpiresAt: &past}
		assert.True(t, key.IsExpired(now))
	})
}
