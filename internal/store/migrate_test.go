// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package store

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillnotes/quill/pkg/errutil"
)

func TestNewMigrator_InvalidURL(t *testing.T) {
	_, err := NewMigrator("invalid://url")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

// TestNewMigrator_PostgresqlScheme verifies that postgresql:// URLs are
// rewritten to pgx5:// for golang-migrate. The connection to a nonexistent
// host still fails, but never with an unknown-driver error.
func TestNewMigrator_PostgresqlScheme(t *testing.T) {
	_, err := NewMigrator("postgresql://localhost:1/quill")
	require.Error(t, err, "should fail due to connection, not URL scheme")
	assert.NotContains(t, err.Error(), "unknown driver")
}

// mockMigrate implements migrateIface for testing.
type mockMigrate struct {
	upErr          error
	downErr        error
	stepsErr       error
	versionVal     uint
	versionErr     error
	dirty          bool
	forceErr       error
	closeSourceErr error
	closeDbErr     error
}

func (m *mockMigrate) Up() error                    { return m.upErr }
func (m *mockMigrate) Down() error                  { return m.downErr }
func (m *mockMigrate) Steps(_ int) error            { return m.stepsErr }
func (m *mockMigrate) Version() (uint, bool, error) { return m.versionVal, m.dirty, m.versionErr }
func (m *mockMigrate) Force(_ int) error            { return m.forceErr }
func (m *mockMigrate) Close() (error, error)        { return m.closeSourceErr, m.closeDbErr }

func TestMigrator_Up(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{}}
		require.NoError(t, m.Up())
	})

	t.Run("no change is not an error", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{upErr: migrate.ErrNoChange}}
		require.NoError(t, m.Up())
	})

	t.Run("failure wraps error", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{upErr: errors.New("boom")}}
		err := m.Up()
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "MIGRATION_UP_FAILED")
	})
}

func TestMigrator_Down(t *testing.T) {
	t.Run("no change is not an error", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{downErr: migrate.ErrNoChange}}
		require.NoError(t, m.Down())
	})

	t.Run("failure wraps error", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{downErr: errors.New("boom")}}
		errutil.AssertErrorCode(t, m.Down(), "MIGRATION_DOWN_FAILED")
	})
}

func TestMigrator_Steps(t *testing.T) {
	t.Run("no change is not an error", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{stepsErr: migrate.ErrNoChange}}
		require.NoError(t, m.Steps(2))
	})

	t.Run("failure carries step count", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{stepsErr: errors.New("boom")}}
		err := m.Steps(-1)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "MIGRATION_STEPS_FAILED")
		errutil.AssertErrorContext(t, err, "steps", -1)
	})
}

func TestMigrator_Version(t *testing.T) {
	t.Run("reports version and dirty state", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{versionVal: 3, dirty: true}}
		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(3), version)
		assert.True(t, dirty)
	})

	t.Run("nil version means no migrations applied", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{versionErr: migrate.ErrNilVersion}}
		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Zero(t, version)
		assert.False(t, dirty)
	})

	t.Run("failure wraps error", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{versionErr: errors.New("boom")}}
		_, _, err := m.Version()
		errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
	})
}

func TestMigrator_Force(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{}}
		require.NoError(t, m.Force(3))
	})

	t.Run("negative version rejected", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{}}
		errutil.AssertErrorCode(t, m.Force(-1), "INVALID_VERSION")
	})

	t.Run("failure wraps error", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{forceErr: errors.New("boom")}}
		errutil.AssertErrorCode(t, m.Force(2), "MIGRATION_FORCE_FAILED")
	})
}

func TestMigrator_Close(t *testing.T) {
	t.Run("clean close", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{}}
		require.NoError(t, m.Close())
	})

	t.Run("source error surfaces", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{closeSourceErr: errors.New("src")}}
		errutil.AssertErrorCode(t, m.Close(), "MIGRATION_CLOSE_FAILED")
	})

	t.Run("database error surfaces", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{closeDbErr: errors.New("db")}}
		errutil.AssertErrorCode(t, m.Close(), "MIGRATION_CLOSE_FAILED")
	})

	t.Run("both errors combine", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{
			closeSourceErr: errors.New("src"),
			closeDbErr:     errors.New("db"),
		}}
		err := m.Close()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "src")
		assert.Contains(t, err.Error(), "db")
	})
}
