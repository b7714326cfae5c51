// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("quill/auth")

// dummyPasswordHash is used when an account doesn't exist to prevent timing
// attacks: password verification still runs so response time stays
// consistent. This is NOT a real credential - it is a fake hash that will
// never match any password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=3,p=2$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// AccountService handles registration, login, email verification, and
// password reset. Outbound email is not this service's job: issuance
// operations return the plaintext token for the caller to embed in a link
// and hand to the email collaborator.
type AccountService struct {
	accounts AccountRepository
	tokens   *TokenService
	hasher   SecretHasher
	bearer   *BearerIssuer
}

// NewAccountService creates a new AccountService.
func NewAccountService(accounts AccountRepository, tokens *TokenService, hasher SecretHasher, bearer *BearerIssuer) *AccountService {
	return &AccountService{
		accounts: accounts,
		tokens:   tokens,
		hasher:   hasher,
		bearer:   bearer,
	}
}

// Register creates a new account. The very first account ever created in
// the system receives the elevated role; all others are ordinary. A
// duplicate email returns an error wrapping ErrConflict.
func (s *AccountService) Register(ctx context.Context, email, password string) (_ *Account, err error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	account, err := NewAccount(email, passwordHash)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "persist account").
			Wrap(err)
	}

	span.SetAttributes(attribute.String("account.role", string(account.Role)))
	return account, nil
}

// Login authenticates an account by email and password and issues a bearer
// token. Uses constant-time operations to prevent timing-based account
// enumeration: an unknown email and a wrong password are indistinguishable
// to the caller, in both error and elapsed time.
func (s *AccountService) Login(ctx context.Context, email, password string) (_ string, _ *Account, err error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	account, lookupErr := s.accounts.GetByEmail(ctx, NormalizeEmail(email))

	targetHash := dummyPasswordHash
	accountExists := false

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return "", nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get account by email").
				Wrap(lookupErr)
		}
	} else {
		targetHash = account.PasswordHash
		accountExists = true
	}

	// Always verify, against the dummy hash when the account is unknown.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !accountExists {
			return "", nil, ErrInvalidCredential
		}
		return "", nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !accountExists || !valid {
		if accountExists {
			account.RecordFailure()
			_ = s.accounts.Update(ctx, account) //nolint:errcheck // Best effort
		}
		return "", nil, ErrInvalidCredential
	}

	// Lockout is checked after verification to keep timing uniform.
	if account.IsLocked() {
		return "", nil, oops.Code("AUTH_ACCOUNT_LOCKED").
			With("locked_until", account.LockedUntil).
			Errorf("account is temporarily locked")
	}

	account.RecordSuccess()

	// Transparently upgrade legacy hashes on successful login.
	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		if newHash, hashErr := s.hasher.Hash(password); hashErr == nil {
			account.PasswordHash = newHash
		}
	}

	// Login succeeds even if the bookkeeping update fails.
	_ = s.accounts.Update(ctx, account) //nolint:errcheck // Best effort

	token, err := s.bearer.Issue(account.ID, account.Email, account.Role)
	if err != nil {
		return "", nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue bearer token").
			Wrap(err)
	}

	return token, account, nil
}

// RequestVerification issues a fresh email-verification token for the
// account, superseding any outstanding one. Returns the plaintext token and
// its expiry for the email collaborator. Returns ErrConflict if the account
// is already verified.
func (s *AccountService) RequestVerification(ctx context.Context, accountID ulid.ULID) (string, time.Time, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", time.Time{}, oops.Code("AUTH_VERIFY_REQUEST_FAILED").
			With("operation", "get account").
			Wrap(err)
	}
	if account.EmailVerified {
		return "", time.Time{}, oops.Code("AUTH_ALREADY_VERIFIED").
			With("account_id", accountID.String()).
			Wrap(ErrConflict)
	}

	return s.tokens.Issue(ctx, accountID, PurposeEmailVerify)
}

// VerifyEmail consumes a verification token and flips the account's
// verified flag (atomically, in the claim statement). No enumeration risk
// exists here, so ErrExpired may be surfaced distinctly.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (ulid.ULID, error) {
	return s.tokens.Consume(ctx, token, PurposeEmailVerify)
}

// RequestReset issues a password reset token for the account with the given
// email. If no such account exists it returns an empty token and no error,
// so callers cannot be used as an account-enumeration oracle.
func (s *AccountService) RequestReset(ctx context.Context, email string) (string, time.Time, error) {
	account, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, nil
		}
		return "", time.Time{}, oops.Code("AUTH_RESET_REQUEST_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}

	return s.tokens.Issue(ctx, account.ID, PurposePasswordReset)
}

// ResetPassword consumes a reset token and sets the new password in the
// same flow. Every failure (unknown token, expired token, already consumed)
// collapses to ErrInvalidCredential: exposing the distinction would leak
// which tokens exist.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return oops.Code("AUTH_RESET_EMPTY_PASSWORD").Errorf("new password cannot be empty")
	}

	accountID, err := s.tokens.Consume(ctx, token, PurposePasswordReset)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired) {
			return ErrInvalidCredential
		}
		return err
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_RESET_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	if err := s.accounts.UpdatePassword(ctx, accountID, newHash); err != nil {
		return oops.Code("AUTH_RESET_FAILED").
			With("operation", "update password").
			Wrap(err)
	}

	return nil
}
