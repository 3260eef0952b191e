// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/adimalka14/auth-server-jwt/internal/auth"
	"github.com/adimalka14/auth-server-jwt/pkg/errutil"
)

func TestBcryptHasher_Hash(t *testing.T) {
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	t.Run("produces self-describing hash", func(t *testing.T) {
		hash, err := hasher.Hash("hunter2")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$2a$04$"), hash)
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("empty password is hashed", func(t *testing.T) {
		hash, err := hasher.Hash("")
		require.NoError(t, err)
		ok, err := hasher.Verify("", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("password over 72 bytes is a hashing error", func(t *testing.T) {
		_, err := hasher.Hash(strings.Repeat("x", 73))
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrHashing)
		errutil.AssertErrorCode(t, err, auth.CodeHashing)
	})
}

func TestBcryptHasher_Cost(t *testing.T) {
	assert.Equal(t, 12, auth.NewBcryptHasher(12).Cost())
	assert.Equal(t, auth.DefaultBcryptCost, auth.NewBcryptHasher(0).Cost())
	assert.Equal(t, auth.DefaultBcryptCost, auth.NewBcryptHasher(99).Cost())
}

func TestBcryptHasher_Verify(t *testing.T) {
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	hash, err := hasher.Hash("correctpassword")
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		hash     string
		want     bool
		wantErr  bool
	}{
		{name: "correct password", password: "correctpassword", hash: hash, want: true},
		{name: "wrong password is false not error", password: "wrongpassword", hash: hash},
		{name: "empty password against real hash", password: "", hash: hash},
		{name: "malformed hash", password: "x", hash: "not-a-hash", wantErr: true},
		{name: "truncated hash", password: "x", hash: hash[:20], wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := hasher.Verify(tt.password, tt.hash)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, auth.ErrHashing)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestBcryptHasher_NeedsUpgrade(t *testing.T) {
	low := auth.NewBcryptHasher(bcrypt.MinCost)
	hash, err := low.Hash("pw")
	require.NoError(t, err)

	assert.False(t, low.NeedsUpgrade(hash))
	assert.True(t, auth.NewBcryptHasher(5).NeedsUpgrade(hash))
	assert.True(t, low.NeedsUpgrade("$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"))
}

func TestArgon2idHasher(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	hash, err := hasher.Hash("password123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))

	ok, err := hasher.Verify("password123", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("password124", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.False(t, hasher.NeedsUpgrade(hash))
	assert.True(t, hasher.NeedsUpgrade("$argon2id$v=19$m=1024,t=1,p=4$c2FsdA$aGFzaA"))
}

func TestArgon2idHasher_MalformedHashes(t *testing.T) {
	hasher := auth.NewArgon2idHasher()
	malformed := []string{
		"",
		"$argon2id$",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=999$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$",
	}
	for _, h := range malformed {
		t.Run(h, func(t *testing.T) {
			ok, err := hasher.Verify("pw", h)
			assert.False(t, ok)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, auth.CodeHashing)
		})
	}
}

func TestNewHasher(t *testing.T) {
	t.Run("bcrypt is the default", func(t *testing.T) {
		h, err := auth.NewHasher("", bcrypt.MinCost)
		require.NoError(t, err)
		hash, err := h.Hash("pw")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$2a$"))
	})

	t.Run("argon2id", func(t *testing.T) {
		h, err := auth.NewHasher(auth.AlgorithmArgon2id, 0)
		require.NoError(t, err)
		hash, err := h.Hash("pw")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$"))
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		_, err := auth.NewHasher("md5", 10)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeHashing)
	})
}

func TestMultiHasher_VerifiesEitherEncoding(t *testing.T) {
	bcryptHash, err := auth.NewBcryptHasher(bcrypt.MinCost).Hash("pw")
	require.NoError(t, err)
	argonHash, err := auth.NewArgon2idHasher().Hash("pw")
	require.NoError(t, err)

	h, err := auth.NewHasher(auth.AlgorithmBcrypt, bcrypt.MinCost)
	require.NoError(t, err)

	for _, hash := range []string{bcryptHash, argonHash} {
		ok, err := h.Verify("pw", hash)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = h.Verify("other", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	assert.False(t, h.NeedsUpgrade(bcryptHash))
	assert.True(t, h.NeedsUpgrade(argonHash))

	_, err = h.Verify("pw", "plaintext")
	assert.ErrorIs(t, err, auth.ErrHashing)
}

func TestHashVerifyRoundTrip(t *testing.T) {
	h := auth.NewBcryptHasher(bcrypt.MinCost)
	passwords := []string{"a", "hunter2", "pässwörd", "with spaces ", strings.Repeat("z", 71)}
	for _, p := range passwords {
		hash, err := h.Hash(p)
		require.NoError(t, err)

		ok, err := h.Verify(p, hash)
		require.NoError(t, err)
		assert.True(t, ok, "password %q should verify", p)

		ok, err = h.Verify(p+"!", hash)
		require.NoError(t, err)
		assert.False(t, ok, "password %q! should not verify", p)
	}
}
