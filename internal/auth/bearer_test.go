// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillnotes/quill/internal/auth"
)

var testSigningSecret = []byte("0123456789abcdef0123456789abcdef")

func TestNewBearerIssuer(t *testing.T) {
	t.Run("accepts 32-byte secret", func(t *testing.T) {
		_, err := auth.NewBearerIssuer(testSigningSecret)
		require.NoError(t, err)
	})

	t.Run("rejects short secret", func(t *testing.T) {
		_, err := auth.NewBearerIssuer([]byte("too-short"))
		assert.Error(t, err)
	})

	t.Run("rejects empty secret", func(t *testing.T) {
		_, err := auth.NewBearerIssuer(nil)
		assert.Error(t, err)
	})
}

func TestBearerIssueAndValidate(t *testing.T) {
	issuer, err := auth.NewBearerIssuer(testSigningSecret)
	require.NoError(t, err)

	accountID := ulid.Make()

	t.Run("round trip preserves principal", func(t *testing.T) {
		token, err := issuer.Issue(accountID, "user@example.com", auth.RoleOrdinary)
		require.NoError(t, err)
		assert.Equal(t, 3, len(strings.Split(token, ".")), "expected compact JWS")

		principal, err := issuer.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, accountID, principal.Subject)
		assert.Equal(t, "user@example.com", principal.Label)
		assert.Equal(t, auth.RoleOrdinary, principal.Role)
		assert.Equal(t, auth.MethodPassword, principal.Method)
		assert.Nil(t, principal.KeyID)
	})

	t.Run("elevated role survives round trip", func(t *testing.T) {
		token, err := issuer.Issue(accountID, "admin@example.com", auth.RoleElevated)
		require.NoError(t, err)

		principal, err := issuer.Validate(token)
		require.NoError(t, err)
		assert.True(t, principal.Elevated())
	})

	t.Run("rejects unknown role at issuance", func(t *testing.T) {
		_, err := issuer.Issue(accountID, "user@example.com", auth.Role("superuser"))
		assert.Error(t, err)
	})

	t.Run("distinct tokens for identical inputs", func(t *testing.T) {
		token1, err := issuer.Issue(accountID, "user@example.com", auth.RoleOrdinary)
		require.NoError(t, err)
		token2, err := issuer.Issue(accountID, "user@example.com", auth.RoleOrdinary)
		require.NoError(t, err)
		assert.NotEqual(t, token1, token2, "jti should differ")
	})
}

func TestBearerValidateFailures(t *testing.T) {
	issuer, err := auth.NewBearerIssuer(testSigningSecret)
	require.NoError(t, err)

	accountID := ulid.Make()

	t.Run("garbage token", func(t *testing.T) {
		_, err := issuer.Validate("not-a-token")
		assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := issuer.Validate("")
		assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	})

	t.Run("wrong signing secret", func(t *testing.T) {
		other, err := auth.NewBearerIssuer([]byte("ffffffffffffffffffffffffffffffff"))
		require.NoError(t, err)

		token, err := other.Issue(accountID, "user@example.com", auth.RoleOrdinary)
		require.NoError(t, err)

		_, err = issuer.Validate(token)
		assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	})

	t.Run("tampered payload", func(t *testing.T) {
		token, err := issuer.Issue(accountID, "user@example.com", auth.RoleOrdinary)
		require.NoError(t, err)

		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		parts[1] = parts[1][:len(parts[1])-2] + "xx"

		_, err = issuer.Validate(strings.Join(parts, "."))
		assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	})

	t.Run("alg none rejected", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Issuer:    "quill",
			Audience:  jwt.ClaimStrings{"quill"},
			Subject:   accountID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = issuer.Validate(unsigned)
		assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token := signTestToken(t, jwt.MapClaims{
			"iss":   "somebody-else",
			"aud":   "quill",
			"sub":   accountID.String(),
			"exp":   time.Now().Add(time.Hour).Unix(),
			"email": "user@example.com",
			"role":  "ordinary",
		})
		_, err := issuer.Validate(token)
		assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	})

	t.Run("missing expiry", func(t *testing.T) {
		token := signTestToken(t, jwt.MapClaims{
			"iss":   "quill",
			"aud":   "quill",
			"sub":   accountID.String(),
			"email": "user@example.com",
			"role":  "ordinary",
		})
		_, err := issuer.Validate(token)
		assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	})

	t.Run("non-ulid subject", func(t *testing.T) {
		token := signTestToken(t, jwt.MapClaims{
			"iss":   "quill",
			"aud":   "quill",
			"sub":   "12345",
			"exp":   time.Now().Add(time.Hour).Unix(),
			"email": "user@example.com",
			"role":  "ordinary",
		})
		_, err := issuer.Validate(token)
		assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	})

	t.Run("unknown role claim", func(t *testing.T) {
		token := signTestToken(t, jwt.MapClaims{
			"iss":   "quill",
			"aud":   "quill",
			"sub":   accountID.String(),
			"exp":   time.Now().Add(time.Hour).Unix(),
			"email": "user@example.com",
			"role":  "superuser",
		})
		_, err := issuer.Validate(token)
		assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	})
}

func TestBearerExpiry(t *testing.T) {
	accountID := ulid.Make()
	issued := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	newIssuerAt := func(t *testing.T, now time.Time) *auth.BearerIssuer {
		t.Helper()
		issuer, err := auth.NewBearerIssuer(testSigningSecret, auth.WithBearerClock(func() time.Time { return now }))
		require.NoError(t, err)
		return issuer
	}

	issuer := newIssuerAt(t, issued)
	token, err := issuer.Issue(accountID, "user@example.com", auth.RoleOrdinary)
	require.NoError(t, err)

	t.Run("valid just before expiry", func(t *testing.T) {
		late := newIssuerAt(t, issued.Add(auth.BearerTokenExpiry-time.Second))
		_, err := late.Validate(token)
		require.NoError(t, err)
	})

	t.Run("rejected at expiry with zero leeway", func(t *testing.T) {
		expired := newIssuerAt(t, issued.Add(auth.BearerTokenExpiry+time.Second))
		_, err := expired.Validate(token)
		assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	})

	t.Run("custom expiry honored", func(t *testing.T) {
		short, err := auth.NewBearerIssuer(testSigningSecret,
			auth.WithBearerExpiry(time.Minute),
			auth.WithBearerClock(func() time.Time { return issued }))
		require.NoError(t, err)

		token, err := short.Issue(accountID, "user@example.com", auth.RoleOrdinary)
		require.NoError(t, err)

		later := newIssuerAt(t, issued.Add(2*time.Minute))
		_, err = later.Validate(token)
		assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	})
}

// signTestToken signs arbitrary claims with the shared test secret for
// exercising validation edge cases.
func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningSecret)
	require.NoError(t, err)
	return token
}
