// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quillnotes/quill/internal/observability"
)

// NewRouter builds the HTTP API router: public credential endpoints plus
// authenticated and elevated-only groups.
func NewRouter(h *Handlers, resolver *Resolver, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		// Public: anyone can register, log in, follow emailed links.
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
		r.Get("/auth/verify-email", h.VerifyEmail)
		r.Post("/auth/request-reset", h.RequestReset)
		r.Post("/auth/reset-password", h.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(resolver.Authenticate)

			r.Get("/auth/me", h.Me)
			r.Post("/auth/request-verification", h.RequestVerification)

			r.Group(func(r chi.Router) {
				r.Use(RequireElevated)

				r.Post("/apikeys", h.CreateKey)
				r.Get("/apikeys", h.ListKeys)
				r.Delete("/apikeys/{keyID}", h.RevokeKey)
			})
		})
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			observability.ObserveRequest(r.Method, r.URL.Path, ww.Status(), elapsed)
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", elapsed,
			)
		})
	}
}
