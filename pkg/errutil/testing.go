// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode fails t unless err carries the given oops code. Wrapped
// errors are searched the way oops.AsOops does, so service-layer wrapping
// never hides the code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "error %q carries no oops code", err)
	assert.Equal(t, code, oopsErr.Code(), "unexpected error code")
}

// AssertErrorContext fails t unless err is an oops error whose context holds
// the given key with the given value.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "error %q carries no oops context", err)
	errCtx := oopsErr.Context()
	require.Contains(t, errCtx, key, "context key %q missing", key)
	assert.Equal(t, value, errCtx[key], "unexpected value for context key %q", key)
}
