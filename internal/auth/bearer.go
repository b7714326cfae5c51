// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Bearer token configuration.
const (
	// BearerTokenExpiry is the fixed lifetime of an issued bearer token.
	// Tokens are short-lived and carry no revocation mechanism; expiry is
	// enforced with zero leeway.
	BearerTokenExpiry = 60 * time.Minute

	// MinSigningSecretLen is the minimum signing secret length in bytes.
	// Signature strength is bounded by key entropy, so short secrets are
	// rejected at construction time.
	MinSigningSecretLen = 32

	bearerIssuer   = "quill"
	bearerAudience = "quill"
)

// BearerClaims is the claim set carried by a Quill bearer token.
type BearerClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// BearerIssuer issues and validates self-contained signed bearer tokens.
// Tokens are stateless: validation needs only the signing secret.
type BearerIssuer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// BearerOption configures a BearerIssuer.
type BearerOption func(*BearerIssuer)

// WithBearerExpiry overrides the default token lifetime.
func WithBearerExpiry(d time.Duration) BearerOption {
	return func(b *BearerIssuer) { b.expiry = d }
}

// WithBearerClock overrides the time source, for deterministic tests.
func WithBearerClock(now func() time.Time) BearerOption {
	return func(b *BearerIssuer) { b.now = now }
}

// NewBearerIssuer creates a BearerIssuer. The signing secret must be at
// least MinSigningSecretLen bytes.
func NewBearerIssuer(secret []byte, opts ...BearerOption) (*BearerIssuer, error) {
	if len(secret) < MinSigningSecretLen {
		return nil, oops.Code("BEARER_SECRET_TOO_SHORT").
			With("min_bytes", MinSigningSecretLen).
			Errorf("signing secret must be at least %d bytes", MinSigningSecretLen)
	}
	b := &BearerIssuer{
		secret: secret,
		expiry: BearerTokenExpiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Issue signs a bearer token for the account with the given role.
func (b *BearerIssuer) Issue(accountID ulid.ULID, email string, role Role) (string, error) {
	if !role.Valid() {
		return "", oops.Code("BEARER_INVALID_ROLE").
			With("role", string(role)).
			Errorf("unknown role")
	}

	now := b.now()
	claims := BearerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    bearerIssuer,
			Audience:  jwt.ClaimStrings{bearerAudience},
			Subject:   accountID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(b.expiry)),
		},
		Email: email,
		Role:  string(role),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return "", oops.Code("BEARER_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Validate parses and verifies a bearer token and returns the Principal it
// carries. Every failure mode (bad signature, wrong issuer or audience,
// expiry, malformed claims) collapses to ErrInvalidCredential so a forged
// token gets no signal about why it was rejected.
func (b *BearerIssuer) Validate(token string) (*Principal, error) {
	claims := &BearerClaims{}

	parsed, err := jwt.ParseWithClaims(token, claims,
		func(_ *jwt.Token) (any, error) { return b.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(bearerIssuer),
		jwt.WithAudience(bearerAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(b.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidCredential
	}

	subject, err := ulid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidCredential
	}
	role := Role(claims.Role)
	if !role.Valid() {
		return nil, ErrInvalidCredential
	}

	return &Principal{
		Subject: subject,
		Label:   claims.Email,
		Role:    role,
		Method:  MethodPassword,
	}, nil
}
