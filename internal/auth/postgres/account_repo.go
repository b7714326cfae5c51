// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package postgres provides PostgreSQL implementations of auth repositories.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/quillnotes/quill/internal/auth"
)

// DB is the subset of pgxpool.Pool the repositories use. pgxmock satisfies
// it too, so repository logic is unit-testable without a database.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// tokenColumns maps a token purpose to its hash/expiry column pair.
// Purposes are a closed set; the returned names are never caller input.
func tokenColumns(purpose auth.TokenPurpose) (hashCol, expiryCol string, err error) {
	switch purpose {
	case auth.PurposeEmailVerify:
		return "verify_token_hash", "verify_token_expires_at", nil
	case auth.PurposePasswordReset:
		return "reset_token_hash", "reset_token_expires_at", nil
	default:
		return "", "", oops.Code("TOKEN_INVALID_PURPOSE").
			With("purpose", string(purpose)).
			Errorf("unknown token purpose")
	}
}

// createAccountLockKey serializes account creation. A bare count subquery
// would let two concurrent first inserts each see zero rows under READ
// COMMITTED and both elevate.
const createAccountLockKey = 0x71756c6c31 // "qull1"

// Create stores a new account. The very first account in the system is
// promoted to the elevated role; an advisory transaction lock serializes
// creations so concurrent first registrations cannot both win. The stored
// role is written back to the passed account.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "begin").
			Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(createAccountLockKey)); err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "advisory lock").
			Wrap(err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO accounts (
			id, email, password_hash, role, email_verified,
			failed_attempts, locked_until, created_at, updated_at
		) VALUES (
			$1, $2, $3,
			CASE WHEN (SELECT count(*) FROM accounts) = 0 THEN 'elevated' ELSE $4 END,
			$5, $6, $7, $8, $9
		)
		RETURNING role
	`,
		account.ID.String(),
		account.Email,
		account.PasswordHash,
		string(account.Role),
		account.EmailVerified,
		account.FailedAttempts,
		account.LockedUntil,
		account.CreatedAt,
		account.UpdatedAt,
	)

	var storedRole string
	if err := row.Scan(&storedRole); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_EXISTS").
				With("email", account.Email).
				Wrap(auth.ErrConflict)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("email", account.Email).
			Wrap(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "commit").
			Wrap(err)
	}
	account.Role = auth.Role(storedRole)
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, email, password_hash, role, email_verified,
		       verify_token_hash, verify_token_expires_at,
		       reset_token_hash, reset_token_expires_at,
		       failed_attempts, locked_until, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, id.String())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, email, password_hash, role, email_verified,
		       verify_token_hash, verify_token_expires_at,
		       reset_token_hash, reset_token_expires_at,
		       failed_attempts, locked_until, created_at, updated_at
		FROM accounts
		WHERE LOWER(email) = LOWER($1)
	`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMAIL_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}
	return account, nil
}

// Update updates an existing account's mutable fields.
func (r *AccountRepository) Update(ctx context.Context, account *auth.Account) error {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET
			email = $2,
			password_hash = $3,
			role = $4,
			email_verified = $5,
			failed_attempts = $6,
			locked_until = $7,
			updated_at = $8
		WHERE id = $1
	`,
		account.ID.String(),
		account.Email,
		account.PasswordHash,
		string(account.Role),
		account.EmailVerified,
		account.FailedAttempts,
		account.LockedUntil,
		account.UpdatedAt,
	)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update account").
			With("id", account.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", account.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePassword updates only the password hash for an account.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, time.Now())
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetToken overwrites the token slot for the given purpose.
func (r *AccountRepository) SetToken(ctx context.Context, id ulid.ULID, purpose auth.TokenPurpose, tokenHash string, expiresAt time.Time) error {
	hashCol, expiryCol, err := tokenColumns(purpose)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET `+hashCol+` = $2, `+expiryCol+` = $3, updated_at = $4
		WHERE id = $1
	`, id.String(), tokenHash, expiresAt, time.Now())
	if err != nil {
		return oops.Code("ACCOUNT_SET_TOKEN_FAILED").
			With("operation", "set token").
			With("purpose", string(purpose)).
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// ClaimToken atomically consumes a live token: the matching slot is cleared
// in the same statement that finds it, so two concurrent claims of the same
// token yield exactly one success. For email verification the statement
// also flips email_verified.
func (r *AccountRepository) ClaimToken(ctx context.Context, purpose auth.TokenPurpose, tokenHash string, now time.Time) (ulid.ULID, error) {
	hashCol, expiryCol, err := tokenColumns(purpose)
	if err != nil {
		return ulid.ULID{}, err
	}

	setVerified := ""
	if purpose == auth.PurposeEmailVerify {
		setVerified = "email_verified = TRUE,"
	}

	row := r.db.QueryRow(ctx, `
		UPDATE accounts SET
			`+hashCol+` = NULL,
			`+expiryCol+` = NULL,
			`+setVerified+`
			updated_at = $3
		WHERE `+hashCol+` = $1 AND `+expiryCol+` > $2
		RETURNING id
	`, tokenHash, now, now)

	var idStr string
	if err := row.Scan(&idStr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ulid.ULID{}, oops.Code("TOKEN_NOT_CLAIMED").Wrap(auth.ErrNotFound)
		}
		return ulid.ULID{}, oops.Code("ACCOUNT_CLAIM_TOKEN_FAILED").
			With("operation", "claim token").
			With("purpose", string(purpose)).
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return ulid.ULID{}, oops.Code("ACCOUNT_CLAIM_TOKEN_FAILED").
			With("operation", "parse id").
			Wrap(err)
	}
	return id, nil
}

// GetByTokenHash retrieves the account holding a token hash, regardless of
// expiry.
func (r *AccountRepository) GetByTokenHash(ctx context.Context, purpose auth.TokenPurpose, tokenHash string) (*auth.Account, error) {
	hashCol, _, err := tokenColumns(purpose)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRow(ctx, `
		SELECT id, email, password_hash, role, email_verified,
		       verify_token_hash, verify_token_expires_at,
		       reset_token_hash, reset_token_expires_at,
		       failed_attempts, locked_until, created_at, updated_at
		FROM accounts
		WHERE `+hashCol+` = $1
	`, tokenHash)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_TOKEN_FAILED").
			With("operation", "get account by token hash").
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return account, nil
}

// ClearExpiredTokens nulls out all token slots whose expiry has passed.
func (r *AccountRepository) ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	var total int64

	verify, err := r.db.Exec(ctx, `
		UPDATE accounts SET verify_token_hash = NULL, verify_token_expires_at = NULL
		WHERE verify_token_expires_at IS NOT NULL AND verify_token_expires_at <= $1
	`, now)
	if err != nil {
		return 0, oops.Code("ACCOUNT_CLEAR_TOKENS_FAILED").
			With("operation", "clear expired verify tokens").
			Wrap(err)
	}
	total += verify.RowsAffected()

	reset, err := r.db.Exec(ctx, `
		UPDATE accounts SET reset_token_hash = NULL, reset_token_expires_at = NULL
		WHERE reset_token_expires_at IS NOT NULL AND reset_token_expires_at <= $1
	`, now)
	if err != nil {
		return 0, oops.Code("ACCOUNT_CLEAR_TOKENS_FAILED").
			With("operation", "clear expired reset tokens").
			Wrap(err)
	}
	total += reset.RowsAffected()

	return total, nil
}

// scanAccount scans one account row.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		account auth.Account
		idStr   string
		role    string
	)

	err := row.Scan(
		&idStr,
		&account.Email,
		&account.PasswordHash,
		&role,
		&account.EmailVerified,
		&account.VerifyTokenHash,
		&account.VerifyTokenExpires,
		&account.ResetTokenHash,
		&account.ResetTokenExpires,
		&account.FailedAttempts,
		&account.LockedUntil,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers classify pgx.ErrNoRows
	}

	account.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").
			With("operation", "parse id").
			Wrap(err)
	}
	account.Role = auth.Role(role)

	return &account, nil
}
