// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package auth provides the credential subsystem for Quill.
//
// # Domain Types
//
// Domain types (Account, APIKey) should be created using their respective
// constructors:
//   - NewAccount - creates an Account with a validated email and password hash
//   - NewAPIKey - creates an APIKey with validated name and key hash
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - AccountService - registration, login, verification and reset flows
//   - APIKeyService - API key generation, validation, and revocation
//   - TokenService - single-use token issuance and consumption
//   - BearerIssuer - signed bearer token issuance and validation
//
// Every successful validation produces a Principal, the canonical identity
// shape consumed by the authorization layer regardless of which credential
// kind was presented.
package auth
