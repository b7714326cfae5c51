// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/quillnotes/quill/internal/auth"
)

// APIKeyRepository implements auth.APIKeyRepository using PostgreSQL.
type APIKeyRepository struct {
	db DB
}

// NewAPIKeyRepository creates a new APIKeyRepository.
func NewAPIKeyRepository(db DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create stores a new API key record.
func (r *APIKeyRepository) Create(ctx context.Context, key *auth.APIKey) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO api_keys (
			id, name, key_hash, key_prefix, elevated, active,
			expires_at, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		key.ID.String(),
		key.Name,
		key.KeyHash,
		key.KeyPrefix,
		key.Elevated,
		key.Active,
		key.ExpiresAt,
		key.CreatedBy.String(),
		key.CreatedAt,
	)
	if err != nil {
		return oops.Code("APIKEY_CREATE_FAILED").
			With("operation", "insert api_key").
			With("id", key.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a key by ID, active or not.
func (r *APIKeyRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.APIKey, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, key_hash, key_prefix, elevated, active,
		       expires_at, created_by, created_at
		FROM api_keys
		WHERE id = $1
	`, id.String())

	key, err := scanAPIKey(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("APIKEY_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("APIKEY_GET_BY_ID_FAILED").
			With("operation", "get api_key by id").
			With("id", id.String()).
			Wrap(err)
	}
	return key, nil
}

// GetByPrefix retrieves the active keys sharing a lookup prefix.
func (r *APIKeyRepository) GetByPrefix(ctx context.Context, prefix string) ([]*auth.APIKey, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, key_hash, key_prefix, elevated, active,
		       expires_at, created_by, created_at
		FROM api_keys
		WHERE key_prefix = $1 AND active
	`, prefix)
	if err != nil {
		return nil, oops.Code("APIKEY_GET_BY_PREFIX_FAILED").
			With("operation", "get api_keys by prefix").
			Wrap(err)
	}
	defer rows.Close()

	return collectAPIKeys(rows)
}

// List returns all keys, newest first, including revoked ones.
func (r *APIKeyRepository) List(ctx context.Context) ([]*auth.APIKey, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, key_hash, key_prefix, elevated, active,
		       expires_at, created_by, created_at
		FROM api_keys
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, oops.Code("APIKEY_LIST_FAILED").
			With("operation", "list api_keys").
			Wrap(err)
	}
	defer rows.Close()

	return collectAPIKeys(rows)
}

// Revoke flips active to false. Idempotent for known keys; the row is
// never deleted.
func (r *APIKeyRepository) Revoke(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `
		UPDATE api_keys SET active = FALSE WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("APIKEY_REVOKE_FAILED").
			With("operation", "revoke api_key").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("APIKEY_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// collectAPIKeys drains rows into key records.
func collectAPIKeys(rows pgx.Rows) ([]*auth.APIKey, error) {
	var keys []*auth.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, oops.Code("APIKEY_SCAN_FAILED").Wrap(err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("APIKEY_SCAN_FAILED").
			With("operation", "iterate rows").
			Wrap(err)
	}
	return keys, nil
}

// scanAPIKey scans one api_key row.
func scanAPIKey(row pgx.Row) (*auth.APIKey, error) {
	var (
		key          auth.APIKey
		idStr        string
		createdByStr string
	)

	err := row.Scan(
		&idStr,
		&key.Name,
		&key.KeyHash,
		&key.KeyPrefix,
		&key.Elevated,
		&key.Active,
		&key.ExpiresAt,
		&createdByStr,
		&key.CreatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers classify pgx.ErrNoRows
	}

	key.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("APIKEY_SCAN_FAILED").
			With("operation", "parse id").
			Wrap(err)
	}
	key.CreatedBy, err = ulid.Parse(createdByStr)
	if err != nil {
		return nil, oops.Code("APIKEY_SCAN_FAILED").
			With("operation", "parse created_by").
			Wrap(err)
	}

	return &key, nil
}
