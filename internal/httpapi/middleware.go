// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/quillnotes/quill/internal/auth"
	"github.com/quillnotes/quill/internal/observability"
)

// Credential transport.
const (
	// SessionCookieName is the fallback bearer source for browser clients.
	SessionCookieName = "quill_session"

	// APIKeyHeader carries machine credentials.
	APIKeyHeader = "X-API-Key"
)

type contextKey string

const principalKey contextKey = "principal"

// SetPrincipal stores a resolved principal in the context.
func SetPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal returns the principal resolved for this request, if any.
func GetPrincipal(r *http.Request) (*auth.Principal, bool) {
	p, ok := r.Context().Value(principalKey).(*auth.Principal)
	return p, ok
}

// Resolver turns a presented credential into one canonical Principal. A
// request carries exactly one credential kind; downstream authorization
// never needs to know which one it was.
type Resolver struct {
	bearer *auth.BearerIssuer
	keys   *auth.APIKeyService
}

// NewResolver creates a Resolver.
func NewResolver(bearer *auth.BearerIssuer, keys *auth.APIKeyService) *Resolver {
	return &Resolver{bearer: bearer, keys: keys}
}

// Authenticate resolves the request's credential and stores the Principal
// in the context. Requests with no resolvable credential get a uniform 401:
// wrong password, forged token, and revoked key are indistinguishable.
func (rs *Resolver) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := rs.resolve(r)
		if err != nil {
			respondError(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate credentials")
			return
		}
		if principal == nil {
			respondError(w, http.StatusUnauthorized,
				"INVALID_CREDENTIALS", "Missing or invalid credentials")
			return
		}

		next.ServeHTTP(w, r.WithContext(SetPrincipal(r.Context(), principal)))
	})
}

// RequireElevated gates a route on the elevated role.
func RequireElevated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := GetPrincipal(r)
		if !ok || !principal.Elevated() {
			respondError(w, http.StatusForbidden,
				"FORBIDDEN", "Insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// resolve tries the bearer sources, then the API key header. Expected
// rejections surface as (nil, nil); only storage faults return an error.
func (rs *Resolver) resolve(r *http.Request) (*auth.Principal, error) {
	if token := bearerToken(r); token != "" {
		principal, err := rs.bearer.Validate(token)
		if err != nil {
			observability.RecordAuthAttempt(string(auth.MethodPassword), false)
			return nil, nil
		}
		observability.RecordAuthAttempt(string(auth.MethodPassword), true)
		return principal, nil
	}

	if presented := r.Header.Get(APIKeyHeader); presented != "" {
		principal, err := rs.keys.Validate(r.Context(), presented)
		if err != nil {
			return nil, err
		}
		observability.RecordAuthAttempt(string(auth.MethodAPIKey), principal != nil)
		return principal, nil
	}

	return nil, nil
}

// bearerToken extracts a bearer token from the Authorization header, or
// falls back to the session cookie for browser-originated requests.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
