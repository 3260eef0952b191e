// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultMinPasswordLength is the shortest password accepted at registration.
const DefaultMinPasswordLength = 4

// User is a registered account. PasswordHash is the only field that changes
// after creation.
type User struct {
	ID           ulid.ULID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser creates a User with a fresh ID. The username must already be
// normalized and the password already hashed.
func NewUser(username, passwordHash string) (*User, error) {
	if username == "" {
		return nil, validationError("username cannot be empty")
	}
	if passwordHash == "" {
		return nil, validationError("password hash cannot be empty")
	}
	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeUsername trims surrounding whitespace. Comparison stays
// case-sensitive.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

// UserRepository manages user persistence.
//
// Create must be atomic with respect to the username: of two concurrent
// creates for the same username exactly one succeeds and the other returns
// an error wrapping ErrDuplicateUsername.
type UserRepository interface {
	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByUsername retrieves a user by exact username. Returns ErrNotFound if absent.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
