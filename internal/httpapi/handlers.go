// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/quillnotes/quill/internal/auth"
	"github.com/quillnotes/quill/internal/mail"
	"github.com/quillnotes/quill/internal/observability"
)

// Handlers carries the auth endpoint implementations.
type Handlers struct {
	accounts *auth.AccountService
	keys     *auth.APIKeyService
	links    *mail.LinkBuilder
	mailer   mail.Mailer
	logger   *slog.Logger
}

// NewHandlers creates the endpoint handlers.
func NewHandlers(accounts *auth.AccountService, keys *auth.APIKeyService, links *mail.LinkBuilder, mailer mail.Mailer, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		accounts: accounts,
		keys:     keys,
		links:    links,
		mailer:   mailer,
		logger:   logger,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

// Register creates an account and kicks off email verification.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	account, err := h.accounts.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrConflict) {
			respondError(w, http.StatusConflict, "CONFLICT", "Account already exists")
			return
		}
		h.logger.ErrorContext(r.Context(), "registration failed", "error", err)
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Registration failed")
		return
	}

	// Verification email is best effort: the account exists either way and
	// verification can be re-requested.
	if token, _, issueErr := h.accounts.RequestVerification(r.Context(), account.ID); issueErr == nil {
		if sendErr := h.mailer.SendVerification(r.Context(), account.Email, h.links.VerifyEmailLink(token)); sendErr != nil {
			h.logger.ErrorContext(r.Context(), "verification email failed", "error", sendErr)
		}
	}

	respondJSON(w, http.StatusCreated, accountResponse{
		ID:            account.ID.String(),
		Email:         account.Email,
		Role:          string(account.Role),
		EmailVerified: account.EmailVerified,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Account   accountResponse `json:"account"`
}

// Login authenticates a password and returns a bearer token, also set as
// the session cookie for browser clients. All credential failures share
// one response: wrong password and unknown email are indistinguishable.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	token, account, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		observability.RecordAuthAttempt(string(auth.MethodPassword), false)
		if errors.Is(err, auth.ErrInvalidCredential) {
			respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
			return
		}
		h.logger.ErrorContext(r.Context(), "login failed", "error", err)
		respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
		return
	}
	observability.RecordAuthAttempt(string(auth.MethodPassword), true)

	expiresAt := time.Now().Add(auth.BearerTokenExpiry)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	respondJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Account: accountResponse{
			ID:            account.ID.String(),
			Email:         account.Email,
			Role:          string(account.Role),
			EmailVerified: account.EmailVerified,
		},
	})
}

// Me returns the principal resolved for the request.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Missing or invalid credentials")
		return
	}

	body := map[string]any{
		"subject": principal.Subject.String(),
		"label":   principal.Label,
		"role":    string(principal.Role),
		"method":  string(principal.Method),
	}
	if principal.KeyID != nil {
		body["key_id"] = principal.KeyID.String()
	}
	respondJSON(w, http.StatusOK, body)
}

// RequestVerification issues a fresh verification link for the
// authenticated account.
func (h *Handlers) RequestVerification(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r)
	if !ok || principal.Method != auth.MethodPassword {
		respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Missing or invalid credentials")
		return
	}

	token, _, err := h.accounts.RequestVerification(r.Context(), principal.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrConflict) {
			respondError(w, http.StatusConflict, "CONFLICT", "Email is already verified")
			return
		}
		h.logger.ErrorContext(r.Context(), "verification request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not issue verification link")
		return
	}

	if sendErr := h.mailer.SendVerification(r.Context(), principal.Label, h.links.VerifyEmailLink(token)); sendErr != nil {
		h.logger.ErrorContext(r.Context(), "verification email failed", "error", sendErr)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not send verification link")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// VerifyEmail consumes a verification token from the emailed link. An
// expired token is reported distinctly: the link format was already
// validated, so there is no enumeration risk here.
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	if _, err := h.accounts.VerifyEmail(r.Context(), token); err != nil {
		switch {
		case errors.Is(err, auth.ErrExpired):
			respondError(w, http.StatusGone, "EXPIRED", "Verification link has expired")
		case errors.Is(err, auth.ErrNotFound):
			respondError(w, http.StatusBadRequest, "INVALID_TOKEN", "Verification link is invalid")
		default:
			h.logger.ErrorContext(r.Context(), "email verification failed", "error", err)
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Verification failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

type requestResetRequest struct {
	Email string `json:"email"`
}

// RequestReset issues a password-reset link. The response is identical
// whether or not the email belongs to an account.
func (h *Handlers) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req requestResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	token, _, err := h.accounts.RequestReset(r.Context(), req.Email)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "reset request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not process reset request")
		return
	}

	if token != "" {
		if sendErr := h.mailer.SendPasswordReset(r.Context(), auth.NormalizeEmail(req.Email), h.links.ResetPasswordLink(token)); sendErr != nil {
			h.logger.ErrorContext(r.Context(), "reset email failed", "error", sendErr)
		}
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword consumes a reset token and sets a new password. Unknown,
// expired, and already-consumed tokens all get the same generic response
// so the endpoint cannot be used to probe which tokens exist.
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredential) {
			respondError(w, http.StatusBadRequest, "INVALID_TOKEN", "Reset link is invalid or has expired")
			return
		}
		h.logger.ErrorContext(r.Context(), "password reset failed", "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Password reset failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type createKeyRequest struct {
	Name      string     `json:"name"`
	Elevated  bool       `json:"elevated"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type apiKeyResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	KeyPrefix string     `json:"key_prefix"`
	Elevated  bool       `json:"elevated"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`

	// Key is the full plaintext, present only in the creation response.
	// It is not retrievable afterwards.
	Key string `json:"key,omitempty"`
}

// CreateKey generates a new API key. Elevated principals only.
func (h *Handlers) CreateKey(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Missing or invalid credentials")
		return
	}

	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	plaintext, key, err := h.keys.Generate(r.Context(), req.Name, req.Elevated, principal.Subject, req.ExpiresAt)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "api key generation failed", "error", err)
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Could not create API key")
		return
	}

	respondJSON(w, http.StatusCreated, apiKeyResponse{
		ID:        key.ID.String(),
		Name:      key.Name,
		KeyPrefix: key.KeyPrefix,
		Elevated:  key.Elevated,
		Active:    key.Active,
		ExpiresAt: key.ExpiresAt,
		CreatedAt: key.CreatedAt,
		Key:       plaintext,
	})
}

// ListKeys returns all keys, revoked ones included, without hashes.
func (h *Handlers) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "api key list failed", "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not list API keys")
		return
	}

	out := make([]apiKeyResponse, 0, len(keys))
	for _, key := range keys {
		out = append(out, apiKeyResponse{
			ID:        key.ID.String(),
			Name:      key.Name,
			KeyPrefix: key.KeyPrefix,
			Elevated:  key.Elevated,
			Active:    key.Active,
			ExpiresAt: key.ExpiresAt,
			CreatedAt: key.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// RevokeKey deactivates a key. Idempotent: revoking a revoked key succeeds.
func (h *Handlers) RevokeKey(w http.ResponseWriter, r *http.Request) {
	id, err := ulid.Parse(chi.URLParam(r, "keyID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid key id")
		return
	}

	if err := h.keys.Revoke(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Unknown API key")
			return
		}
		h.logger.ErrorContext(r.Context(), "api key revocation failed", "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not revoke API key")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}
