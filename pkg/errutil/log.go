// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// Context keys whose values must never reach the logs. Error context built
// around credential flows can carry raw secrets; they are blanked here no
// matter which logger handles the record.
var redactedContextKeys = map[string]struct{}{
	"password": {},
	"token":    {},
	"api_key":  {},
	"secret":   {},
}

// LogError emits err on logger at error level. Oops errors contribute their
// code, hint, and sanitized context as structured attributes so pipelines
// can filter on them; plain errors log as a bare string.
func LogError(logger *slog.Logger, msg string, err error) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.Error(msg, "error", err)
		return
	}

	attrs := make([]any, 0, 8)
	attrs = append(attrs, "error", oopsErr.Error())
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if hint := oopsErr.Hint(); hint != "" {
		attrs = append(attrs, "hint", hint)
	}
	if errCtx := sanitizeContext(oopsErr.Context()); len(errCtx) > 0 {
		attrs = append(attrs, "context", errCtx)
	}
	logger.Error(msg, attrs...)
}

func sanitizeContext(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if _, sensitive := redactedContextKeys[k]; sensitive {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = v
	}
	return out
}
