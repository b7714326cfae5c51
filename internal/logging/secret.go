// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package logging

import "log/slog"

// redactedPlaceholder replaces sensitive values in log output.
const redactedPlaceholder = "[REDACTED]"

// Secret wraps a sensitive string so it can be passed as a log attribute
// without ever appearing in output. Plaintext passwords, API keys, and
// single-use tokens must be wrapped before logging.
type Secret string

// LogValue implements slog.LogValuer. The underlying value is never
// rendered.
func (Secret) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}
