// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package mail builds verification and reset links and hands them to an
// outbound email collaborator. Email transport itself lives elsewhere.
package mail

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/samber/oops"

	"github.com/quillnotes/quill/internal/logging"
)

// Mailer is the outbound email collaborator. Implementations receive the
// complete link containing the plaintext token; they must not log it.
type Mailer interface {
	// SendVerification delivers an email-verification link.
	SendVerification(ctx context.Context, email, link string) error

	// SendPasswordReset delivers a password-reset link.
	SendPasswordReset(ctx context.Context, email, link string) error
}

// LinkBuilder renders the links embedded in outbound email. The token query
// parameter is the single plaintext credential, URL-escaped.
type LinkBuilder struct {
	baseURL string
}

// NewLinkBuilder creates a LinkBuilder for the given external origin,
// e.g. "https://notes.example.com".
func NewLinkBuilder(baseURL string) (*LinkBuilder, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, oops.Code("MAIL_INVALID_BASE_URL").
			With("base_url", baseURL).
			Errorf("base URL must be an absolute http(s) origin")
	}
	return &LinkBuilder{baseURL: baseURL}, nil
}

// VerifyEmailLink returns the link for an email-verification token.
func (b *LinkBuilder) VerifyEmailLink(token string) string {
	return b.baseURL + "/auth/verify-email?token=" + url.QueryEscape(token)
}

// ResetPasswordLink returns the link for a password-reset token.
func (b *LinkBuilder) ResetPasswordLink(token string) string {
	return b.baseURL + "/auth/reset-password?token=" + url.QueryEscape(token)
}

// LogMailer is a development Mailer that records delivery without any
// transport. The link carries a live credential, so it is redacted.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// SendVerification logs that a verification email would have been sent.
func (m *LogMailer) SendVerification(ctx context.Context, email, link string) error {
	m.logger.InfoContext(ctx, "verification email",
		"to", email,
		"link", logging.Secret(link))
	return nil
}

// SendPasswordReset logs that a reset email would have been sent.
func (m *LogMailer) SendPasswordReset(ctx context.Context, email, link string) error {
	m.logger.InfoContext(ctx, "password reset email",
		"to", email,
		"link", logging.Secret(link))
	return nil
}
