// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package logging provides structured logging with OpenTelemetry trace
// context and credential redaction.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// sensitiveKeys are attribute keys whose values never reach the output,
// regardless of whether the caller remembered to wrap them in Secret.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"api_key":       {},
	"secret":        {},
	"authorization": {},
}

// handler decorates a slog.Handler: it stamps every record with the service
// identity, attaches the active trace and span ids, and redacts attributes
// under sensitive keys.
type handler struct {
	inner   slog.Handler
	service string
	version string
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	out.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		out.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		out.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redact(a))
		return true
	})

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.inner.Handle(ctx, out)
}

// redact blanks the value of any attribute stored under a sensitive key.
func redact(a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[a.Key]; ok {
		return slog.String(a.Key, redactedPlaceholder)
	}
	return a
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// WithAttrs redacts sensitive keys before handing the attributes to the
// wrapped handler, since persistent attributes bypass Handle.
func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redact(a)
	}
	return &handler{
		inner:   h.inner.WithAttrs(redacted),
		service: h.service,
		version: h.version,
	}
}

func (h *handler) WithGroup(name string) slog.Handler {
	return &handler{
		inner:   h.inner.WithGroup(name),
		service: h.service,
		version: h.version,
	}
}

// Setup creates a configured slog.Logger.
// format: "json" or "text" (defaults to "json" if empty)
// If w is nil, writes to os.Stderr.
func Setup(service, version, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}

	var base slog.Handler
	if format == "text" {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}

	return slog.New(&handler{
		inner:   base,
		service: service,
		version: version,
	})
}

// SetDefault sets up and configures the default logger.
func SetDefault(service, version, format string) {
	logger := Setup(service, version, format, nil)
	slog.SetDefault(logger)
}
