// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// CredentialStore owns user records. Hashing happens here, explicitly,
// before the repository sees the user.
type CredentialStore struct {
	users          UserRepository
	hasher         PasswordHasher
	minPasswordLen int
}

// CredentialStoreOption configures a CredentialStore.
type CredentialStoreOption func(*CredentialStore)

// WithMinPasswordLength overrides DefaultMinPasswordLength. Values below 1
// still reject empty passwords.
func WithMinPasswordLength(n int) CredentialStoreOption {
	return func(s *CredentialStore) {
		s.minPasswordLen = max(n, 1)
	}
}

// NewCredentialStore creates a CredentialStore.
func NewCredentialStore(users UserRepository, hasher PasswordHasher, opts ...CredentialStoreOption) (*CredentialStore, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	s := &CredentialStore{
		users:          users,
		hasher:         hasher,
		minPasswordLen: DefaultMinPasswordLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FindByUsername looks up a user by exact username.
func (s *CredentialStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, oops.With("operation", "find by username").Wrap(err)
	}
	return user, nil
}

// FindByID looks up a user by ID.
func (s *CredentialStore) FindByID(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, oops.With("operation", "find by id", "user_id", id.String()).Wrap(err)
	}
	return user, nil
}

// Create registers a new user. The username is trimmed. Empty usernames,
// passwords shorter than the configured minimum and passwords longer than the
// hasher accepts are rejected as validation errors.
func (s *CredentialStore) Create(ctx context.Context, username, password string) (*User, error) {
	username = NormalizeUsername(username)
	if username == "" || password == "" {
		return nil, validationError("Username and password are required")
	}
	if utf8.RuneCountInString(password) < s.minPasswordLen {
		return nil, validationError(fmt.Sprintf("Password must be at least %d characters", s.minPasswordLen))
	}
	if l, ok := s.hasher.(passwordLimiter); ok {
		if limit := l.MaxPasswordBytes(); limit > 0 && len(password) > limit {
			return nil, validationError(fmt.Sprintf("Password must be at most %d bytes", limit))
		}
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(username, hash)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			return nil, oops.Code(CodeDuplicateUsername).
				With("username", username).
				Wrap(err)
		}
		return nil, oops.With("operation", "create user", "username", username).Wrap(err)
	}
	return user, nil
}

// UpgradeHash recomputes a user's hash when the hasher's parameters changed.
// It is best effort: a failure leaves the old hash in place.
func (s *CredentialStore) UpgradeHash(ctx context.Context, user *User, password string) error {
	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return nil
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return oops.With("operation", "rehash password").Wrap(err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return oops.With("operation", "update password", "user_id", user.ID.String()).Wrap(err)
	}
	user.PasswordHash = hash
	return nil
}

// decoy returns a user holding a hash of a random secret. Login verifies
// against it when the username is unknown.
func (s *CredentialStore) decoy() (*User, error) {
	hash, err := s.hasher.Hash(ulid.Make().String())
	if err != nil {
		return nil, oops.With("operation", "prepare decoy hash").Wrap(err)
	}
	return &User{PasswordHash: hash}, nil
}

// Verify checks password against the user's stored hash.
func (s *CredentialStore) Verify(user *User, password string) (bool, error) {
	return s.hasher.Verify(password, user.PasswordHash)
}

// Ping reports whether the underlying repository is reachable.
func (s *CredentialStore) Ping(ctx context.Context) error {
	return s.users.Ping(ctx)
}
