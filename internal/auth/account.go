// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Email validation constraints.
const MaxEmailLength = 254

// emailRegex is a pragmatic shape check: local part, @, domain with a dot.
// Real validation happens when the verification link is clicked.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Account represents a holder of a password credential.
//
// The verify and reset token pairs are nullable: present only while a
// verification or reset is outstanding, cleared the instant the token is
// consumed or superseded. Only token hashes are ever stored.
type Account struct {
	ID            ulid.ULID
	Email         string
	PasswordHash  string
	Role          Role
	EmailVerified bool

	VerifyTokenHash    *string
	VerifyTokenExpires *time.Time
	ResetTokenHash     *string
	ResetTokenExpires  *time.Time

	FailedAttempts int
	LockedUntil    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount creates a validated Account with a fresh ULID.
// The role defaults to ordinary; the repository promotes the very first
// account ever created to elevated at insert time.
func NewAccount(email, passwordHash string) (*Account, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_ACCOUNT").Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &Account{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         RoleOrdinary,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsLocked returns true if the account is currently locked out.
func (a *Account) IsLocked() bool {
	return IsLockedOut(a.LockedUntil)
}

// RecordFailure increments the failure counter and sets lockout if the
// threshold is reached.
func (a *Account) RecordFailure() {
	a.FailedAttempts++
	a.LockedUntil = ComputeLockoutTime(a.FailedAttempts)
	a.UpdatedAt = time.Now()
}

// RecordSuccess resets the failure counter and lockout.
func (a *Account) RecordSuccess() {
	a.FailedAttempts = 0
	a.LockedUntil = nil
	a.UpdatedAt = time.Now()
}

// NormalizeEmail lowercases and trims an email address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail validates an email address shape.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	if !emailRegex.MatchString(email) {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email is not a valid address")
	}
	return nil
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create stores a new account. The very first account in the system is
	// promoted to RoleElevated inside the insert statement; the stored role
	// is written back to the passed account. A duplicate email returns an
	// error wrapping ErrConflict.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// Update updates an existing account's mutable fields.
	Update(ctx context.Context, account *Account) error

	// UpdatePassword updates only the password hash for an account.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// SetToken overwrites the token slot for the given purpose, superseding
	// any outstanding token for that account/purpose.
	SetToken(ctx context.Context, id ulid.ULID, purpose TokenPurpose, tokenHash string, expiresAt time.Time) error

	// ClaimToken atomically clears the token slot whose stored hash matches
	// tokenHash and whose expiry is after now, returning the account id.
	// For PurposeEmailVerify the same statement flips email_verified.
	// Returns ErrNotFound if no live slot matched; two concurrent claims of
	// the same token yield exactly one success.
	ClaimToken(ctx context.Context, purpose TokenPurpose, tokenHash string, now time.Time) (ulid.ULID, error)

	// GetByTokenHash retrieves the account holding the given token hash,
	// regardless of expiry. Used to distinguish Expired from NotFound after
	// a failed claim.
	GetByTokenHash(ctx context.Context, purpose TokenPurpose, tokenHash string) (*Account, error)

	// ClearExpiredTokens nulls out all token slots whose expiry has passed.
	// Returns the number of accounts touched.
	ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}
