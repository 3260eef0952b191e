// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Error codes attached to oops errors returned by this package.
const (
	CodeValidation         = "AUTH_VALIDATION"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeDuplicateUsername  = "AUTH_DUPLICATE_USERNAME"
	CodeTokenMissing       = "AUTH_TOKEN_MISSING"
	CodeTokenInvalid       = "AUTH_TOKEN_INVALID"
	CodeTokenExpired       = "AUTH_TOKEN_EXPIRED"
	CodeHashing            = "AUTH_HASHING"
	CodeSigning            = "AUTH_SIGNING"
	CodeUserNotFound       = "AUTH_USER_NOT_FOUND"
	CodeInvalidTransition  = "AUTH_INVALID_TRANSITION"
)

// Sentinel errors wrapped by every coded error of the matching kind.
var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateUsername is returned by repositories when the username
	// uniqueness constraint rejects a create.
	ErrDuplicateUsername = errors.New("username already exists")

	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTokenMissing       = errors.New("token missing")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenExpired       = errors.New("token expired")
	ErrHashing            = errors.New("password hashing failed")
	ErrSigning            = errors.New("token signing failed")
)

// Kind is the closed set of failure classes callers branch on.
type Kind int

// Failure kinds, in the order KindOf checks them.
const (
	KindInternal Kind = iota
	KindValidation
	KindInvalidCredentials
	KindDuplicateUsername
	KindTokenMissing
	KindTokenInvalid
	KindTokenExpired
	KindHashing
	KindSigning
	KindNotFound
)

var kindSentinels = []struct {
	kind Kind
	err  error
}{
	{KindValidation, ErrValidation},
	{KindInvalidCredentials, ErrInvalidCredentials},
	{KindDuplicateUsername, ErrDuplicateUsername},
	{KindTokenMissing, ErrTokenMissing},
	{KindTokenExpired, ErrTokenExpired},
	{KindTokenInvalid, ErrTokenInvalid},
	{KindHashing, ErrHashing},
	{KindSigning, ErrSigning},
	{KindNotFound, ErrNotFound},
}

// KindOf classifies err. Errors outside the taxonomy are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, ks := range kindSentinels {
		if errors.Is(err, ks.err) {
			return ks.kind
		}
	}
	return KindInternal
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindDuplicateUsername:
		return "duplicate_username"
	case KindTokenMissing:
		return "token_missing"
	case KindTokenInvalid:
		return "token_invalid"
	case KindTokenExpired:
		return "token_expired"
	case KindHashing:
		return "hashing"
	case KindSigning:
		return "signing"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// ErrorCode returns the oops code carried by err, or "" when there is none.
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

// PublicMessage returns the client-safe message attached to err, or
// fallback when none was attached.
func PublicMessage(err error, fallback string) string {
	return oops.GetPublic(err, fallback)
}

func validationError(msg string) error {
	return oops.Code(CodeValidation).Public(msg).Wrapf(ErrValidation, "%s", msg)
}
