// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillnotes/quill/internal/auth"
)

func TestHashSecret(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("produces valid hash", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$"))
	})

	t.Run("different secrets produce different hashes", func(t *testing.T) {
		hash1, err := hasher.Hash("password1")
		require.NoError(t, err)
		hash2, err := hasher.Hash("password2")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("same secret produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty secret", func(t *testing.T) {
		_, err := hasher.Hash("")
		assert.ErrorIs(t, err, auth.ErrEmptySecret)
	})
}

func TestVerifySecret(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("correct secret verifies", func(t *testing.T) {
		hash, err := hasher.Hash("correctpassword")
		require.NoError(t, err)

		ok, err := hasher.Verify("correctpassword", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect secret fails", func(t *testing.T) {
		hash, err := hasher.Hash("correctpassword")
		require.NoError(t, err)

		ok, err := hasher.Verify("wrongpassword", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("invalid hash format returns error", func(t *testing.T) {
		_, err := hasher.Verify("password", "not-a-valid-hash")
		assert.Error(t, err)
	})

	t.Run("wrong algorithm returns error", func(t *testing.T) {
		_, err := hasher.Verify("password", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported hash algorithm")
	})

	t.Run("invalid version format returns error", func(t *testing.T) {
		_, err := hasher.Verify("password", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA")
		assert.Error(t, err)
	})

	t.Run("invalid parameters format returns error", func(t *testing.T) {
		_, err := hasher.Verify("password", "$argon2id$v=19$invalid$c2FsdA$aGFzaA")
		assert.Error(t, err)
	})

	t.Run("invalid salt base64 returns error", func(t *testing.T) {
		_, err := hasher.Verify("password", "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA")
		assert.Error(t, err)
	})

	t.Run("invalid digest base64 returns error", func(t *testing.T) {
		_, err := hasher.Verify("password", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!invalid!!!")
		assert.Error(t, err)
	})

	t.Run("threads overflow returns error", func(t *testing.T) {
		_, err := hasher.Verify("password", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "out of range")
	})

	t.Run("empty secret against real hash fails cleanly", func(t *testing.T) {
		hash, err := hasher.Hash("somepassword")
		require.NoError(t, err)

		ok, err := hasher.Verify("", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("verifies hash with different cost factors", func(t *testing.T) {
		// Stored hashes carry their own parameters, so old hashes keep
		// verifying after the defaults change.
		legacy := "$argon2id$v=19$m=32768,t=2,p=1$c29tZXNhbHRzb21lc2E$" +
			"CsoEG1WN6sJAL3BtfBGZtW6a2B7eBTCyhs7GDrXYYqo"
		_, err := hasher.Verify("password", legacy)
		require.NoError(t, err)
	})
}

func TestNeedsUpgrade(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("current hash does not need upgrade", func(t *testing.T) {
		hash, err := hasher.Hash("password")
		require.NoError(t, err)
		assert.False(t, hasher.NeedsUpgrade(hash))
	})

	t.Run("bcrypt hash needs upgrade", func(t *testing.T) {
		assert.True(t, hasher.NeedsUpgrade("$2a$10$N9qo8uLOickgx2ZMRZoMye"))
	})
}
