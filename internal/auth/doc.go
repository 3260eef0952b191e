// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

// Package auth provides the credential and token primitives of the auth
// server.
//
// # Components
//
//   - PasswordHasher - salted one-way hashing with constant-time verification
//   - TokenIssuer - signed access and refresh tokens bound to a user id
//   - TokenVerifier - signature, expiry and kind checks for presented tokens
//   - CredentialStore - user creation and lookup over a UserRepository
//   - SessionFlow - login, registration, logout and refresh
//
// Tokens are bearer credentials with no server-side record. A token is valid
// while its signature verifies and it has not expired; logout only instructs
// the client to drop its refresh cookie.
//
// # Errors
//
// Failures are oops errors carrying one of the Code* constants and wrapping
// one of the sentinel errors in errors.go. Callers branch with KindOf or
// errors.Is rather than inspecting storage or signing library errors.
package auth
