// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import "errors"

// Sentinel errors for expected failure conditions. Validators return these
// (or wrap them) rather than panicking; callers classify with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredential is returned for a wrong secret, a bad signature,
	// or a malformed credential. Deliberately carries no detail about which.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrExpired is returned when a token or key is past its time bound.
	ErrExpired = errors.New("credential expired")

	// ErrConflict is returned when registration collides with an existing
	// account.
	ErrConflict = errors.New("already exists")
)
