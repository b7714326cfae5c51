// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"github.com/oklog/ulid/v2"
)

// Role is an account's authorization level.
type Role string

// Roles are a closed set; anything else is invalid.
const (
	RoleOrdinary Role = "ordinary"
	RoleElevated Role = "elevated"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleOrdinary || r == RoleElevated
}

// AuthMethod identifies which credential kind produced a Principal.
type AuthMethod string

const (
	// MethodPassword covers password login and the bearer tokens it issues.
	MethodPassword AuthMethod = "password-bearer"

	// MethodAPIKey covers long-lived opaque machine keys.
	MethodAPIKey AuthMethod = "api-key"
)

// Principal is the canonical result of a successful authentication.
// It is constructed fresh per request and never persisted.
type Principal struct {
	// Subject is the authenticated account or key-owner id.
	Subject ulid.ULID

	// Label is a display label for the subject: the account email for
	// password bearers, the key name for API keys.
	Label string

	Role   Role
	Method AuthMethod

	// KeyID is set only for MethodAPIKey, identifying the originating key
	// for audit.
	KeyID *ulid.ULID
}

// Elevated reports whether the principal carries the elevated role.
func (p *Principal) Elevated() bool {
	return p.Role == RoleElevated
}
