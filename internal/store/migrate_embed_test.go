// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package store

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err, "should read embedded migrations directory")

	fileNames := make(map[string]bool)
	for _, entry := range entries {
		fileNames[entry.Name()] = true
	}

	assert.True(t, fileNames["000001_accounts.up.sql"])
	assert.True(t, fileNames["000002_api_keys.up.sql"])

	// Every up migration needs a matching down migration.
	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	for _, entry := range entries {
		name := entry.Name()
		assert.True(t, pattern.MatchString(name),
			"file %s should match pattern NNNNNN_name.(up|down).sql", name)
		if strings.HasSuffix(name, ".up.sql") {
			down := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
			assert.True(t, fileNames[down], "missing down migration for %s", name)
		}
	}
}
