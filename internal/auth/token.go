// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token lifetimes used when TokenConfig leaves them unset.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// BearerScheme prefixes tokens in the Authorization header and the refresh cookie.
const BearerScheme = "Bearer "

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

// Token kinds.
const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// Claims are the JWT claims carried by both token kinds.
type Claims struct {
	Kind TokenKind `json:"token_use"`
	jwt.RegisteredClaims
}

// TokenConfig holds the signing secrets and lifetimes. The two secrets must
// be distinct.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

func (c TokenConfig) withDefaults() TokenConfig {
	if c.AccessTTL <= 0 {
		c.AccessTTL = DefaultAccessTokenTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = DefaultRefreshTokenTTL
	}
	return c
}

func (c TokenConfig) validate() error {
	if c.AccessSecret == "" {
		return oops.Code(CodeSigning).Wrapf(ErrSigning, "access token secret is not configured")
	}
	if c.RefreshSecret == "" {
		return oops.Code(CodeSigning).Wrapf(ErrSigning, "refresh token secret is not configured")
	}
	return nil
}

func (c TokenConfig) secret(kind TokenKind) []byte {
	if kind == TokenRefresh {
		return []byte(c.RefreshSecret)
	}
	return []byte(c.AccessSecret)
}

func (c TokenConfig) ttl(kind TokenKind) time.Duration {
	if kind == TokenRefresh {
		return c.RefreshTTL
	}
	return c.AccessTTL
}

// TokenOption configures a TokenIssuer or TokenVerifier.
type TokenOption func(*tokenOptions)

type tokenOptions struct {
	now func() time.Time
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenOption {
	return func(o *tokenOptions) {
		o.now = now
	}
}

func applyTokenOptions(opts []TokenOption) tokenOptions {
	o := tokenOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// TokenIssuer mints HS256-signed access and refresh tokens.
type TokenIssuer struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. A missing secret is a signing error.
func NewTokenIssuer(cfg TokenConfig, opts ...TokenOption) (*TokenIssuer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := applyTokenOptions(opts)
	return &TokenIssuer{cfg: cfg.withDefaults(), now: o.now}, nil
}

// IssueAccessToken returns an access token for userID.
func (i *TokenIssuer) IssueAccessToken(userID string) (string, error) {
	return i.issue(userID, TokenAccess)
}

// IssueRefreshToken returns a refresh token for userID.
func (i *TokenIssuer) IssueRefreshToken(userID string) (string, error) {
	return i.issue(userID, TokenRefresh)
}

// RefreshTTL is the lifetime of refresh tokens, which the refresh cookie
// mirrors.
func (i *TokenIssuer) RefreshTTL() time.Duration {
	return i.cfg.RefreshTTL
}

func (i *TokenIssuer) issue(userID string, kind TokenKind) (string, error) {
	if err := i.cfg.validate(); err != nil {
		return "", err
	}
	if userID == "" {
		return "", oops.Code(CodeSigning).Wrapf(ErrSigning, "token subject is empty")
	}

	now := i.now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.ttl(kind))),
			ID:        ulid.Make().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.secret(kind))
	if err != nil {
		return "", oops.Code(CodeSigning).
			With("kind", string(kind), "cause", err.Error()).
			Wrapf(ErrSigning, "sign %s token", kind)
	}
	return signed, nil
}

// TokenVerifier checks presented tokens against the secret of the expected kind.
type TokenVerifier struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenVerifier creates a TokenVerifier. A missing secret is a signing error.
func NewTokenVerifier(cfg TokenConfig, opts ...TokenOption) (*TokenVerifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := applyTokenOptions(opts)
	return &TokenVerifier{cfg: cfg.withDefaults(), now: o.now}, nil
}

// VerifyAccess returns the subject of a valid access token.
func (v *TokenVerifier) VerifyAccess(token string) (string, error) {
	return v.verify(token, TokenAccess)
}

// VerifyRefresh returns the subject of a valid refresh token.
func (v *TokenVerifier) VerifyRefresh(token string) (string, error) {
	return v.verify(token, TokenRefresh)
}

func (v *TokenVerifier) verify(token string, kind TokenKind) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", tokenMissing(kind)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return v.cfg.secret(kind), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		// An expired token reports as expired even if its signature is bad;
		// the claims were decoded before signature verification.
		if errors.Is(err, jwt.ErrTokenExpired) || v.pastExpiry(claims) {
			return "", oops.Code(CodeTokenExpired).
				With("kind", string(kind)).
				Wrapf(ErrTokenExpired, "%s token expired", kind)
		}
		return "", tokenInvalid(kind, err.Error())
	}

	if claims.Kind != kind {
		return "", tokenInvalid(kind, fmt.Sprintf("token is a %q token", claims.Kind))
	}
	if claims.Subject == "" {
		return "", tokenInvalid(kind, "token has no subject")
	}
	return claims.Subject, nil
}

func (v *TokenVerifier) pastExpiry(claims *Claims) bool {
	return claims.ExpiresAt != nil && !v.now().Before(claims.ExpiresAt.Time)
}

func tokenMissing(kind TokenKind) error {
	return oops.Code(CodeTokenMissing).
		With("kind", string(kind)).
		Wrapf(ErrTokenMissing, "no %s token provided", kind)
}

func tokenInvalid(kind TokenKind, reason string) error {
	return oops.Code(CodeTokenInvalid).
		With("kind", string(kind), "reason", reason).
		Wrapf(ErrTokenInvalid, "invalid %s token", kind)
}

// ParseBearer extracts the token from a "Bearer <token>" value. A blank value,
// another scheme, an empty token or whitespace around the token is
// TokenMissing.
func ParseBearer(value string, kind TokenKind) (string, error) {
	token, ok := strings.CutPrefix(value, BearerScheme)
	if !ok || token == "" || token != strings.TrimSpace(token) {
		return "", tokenMissing(kind)
	}
	return token, nil
}
