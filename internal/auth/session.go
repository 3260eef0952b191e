// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("authserver/auth")

// endSpan records a failed operation on span by its error code and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorCode(err))
	}
	span.End()
}

// SessionState is a client's position in the session lifecycle. The server
// keeps no record of it; each flow operation reports where it ended.
type SessionState string

// Session states.
const (
	StateAnonymous      SessionState = "anonymous"
	StateAuthenticating SessionState = "authenticating"
	StateAuthenticated  SessionState = "authenticated"
	StateRefreshing     SessionState = "refreshing"
	StateLoggedOut      SessionState = "logged_out"
)

var sessionTransitions = map[SessionState][]SessionState{
	StateAnonymous:      {StateAuthenticating, StateAnonymous},
	StateAuthenticating: {StateAuthenticated, StateAnonymous},
	StateAuthenticated:  {StateRefreshing, StateLoggedOut},
	StateRefreshing:     {StateAuthenticated, StateAnonymous},
}

// CanTransition reports whether the lifecycle allows moving from one state to another.
func CanTransition(from, to SessionState) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func advance(from, to SessionState) (SessionState, error) {
	if !CanTransition(from, to) {
		return from, oops.Code(CodeInvalidTransition).
			With("from", string(from), "to", string(to)).
			Errorf("illegal session transition")
	}
	return to, nil
}

// CookieAction tells the transport what to do with the refresh cookie.
type CookieAction int

// Cookie actions.
const (
	CookieKeep CookieAction = iota
	CookieSet
	CookieClear
)

// LoginResult is returned by a successful Login.
type LoginResult struct {
	State        SessionState
	UserID       string
	AccessToken  string
	RefreshToken string
	Cookie       CookieAction
}

// RefreshResult is returned by a successful Refresh. The refresh token is
// not rotated.
type RefreshResult struct {
	State       SessionState
	UserID      string
	AccessToken string
	Cookie      CookieAction
}

// LogoutResult is returned by a successful Logout.
type LogoutResult struct {
	State  SessionState
	UserID string
	Cookie CookieAction
}

// SessionFlow orchestrates login, registration, logout and refresh.
type SessionFlow struct {
	credentials *CredentialStore
	issuer      *TokenIssuer
	verifier    *TokenVerifier
	logger      *slog.Logger

	// decoy is verified when the username is unknown so both failure
	// paths cost one hash comparison with the configured parameters.
	decoy *User
}

// NewSessionFlow creates a SessionFlow. A nil logger discards output.
func NewSessionFlow(credentials *CredentialStore, issuer *TokenIssuer, verifier *TokenVerifier, logger *slog.Logger) (*SessionFlow, error) {
	if credentials == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if issuer == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if verifier == nil {
		return nil, oops.Errorf("token verifier is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	decoy, err := credentials.decoy()
	if err != nil {
		return nil, err
	}
	return &SessionFlow{
		credentials: credentials,
		issuer:      issuer,
		verifier:    verifier,
		logger:      logger,
		decoy:       decoy,
	}, nil
}

// Login authenticates username and password and issues both tokens.
// Unknown users and wrong passwords both fail with InvalidCredentials.
func (f *SessionFlow) Login(ctx context.Context, username, password string) (res *LoginResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer func() { endSpan(span, err) }()

	username = NormalizeUsername(username)
	if username == "" || password == "" {
		return nil, validationError("Username and password are required")
	}
	state, err := advance(StateAnonymous, StateAuthenticating)
	if err != nil {
		return nil, err
	}

	user, lookupErr := f.credentials.FindByUsername(ctx, username)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return nil, oops.With("operation", "login lookup").Wrap(lookupErr)
	}

	target := f.decoy
	if user != nil {
		target = user
	}
	valid, verifyErr := f.credentials.Verify(target, password)
	if verifyErr != nil && user != nil {
		return nil, oops.With("operation", "verify password", "user_id", user.ID.String()).Wrap(verifyErr)
	}

	if user == nil || !valid {
		f.logger.InfoContext(ctx, "login failed", "username", username)
		state, _ = advance(state, StateAnonymous)
		return nil, oops.Code(CodeInvalidCredentials).
			With("state", state).
			Wrapf(ErrInvalidCredentials, "login rejected")
	}

	if err := f.credentials.UpgradeHash(ctx, user, password); err != nil {
		f.logger.WarnContext(ctx, "password hash upgrade failed", "user_id", user.ID.String(), "error", err)
	}

	userID := user.ID.String()
	span.SetAttributes(attribute.String("auth.user_id", userID))
	access, err := f.issuer.IssueAccessToken(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := f.issuer.IssueRefreshToken(userID)
	if err != nil {
		return nil, err
	}

	if state, err = advance(state, StateAuthenticated); err != nil {
		return nil, err
	}
	f.logger.InfoContext(ctx, "login successful", "username", user.Username, "user_id", userID)
	return &LoginResult{
		State:        state,
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
		Cookie:       CookieSet,
	}, nil
}

// Register creates a user. The session stays anonymous.
func (f *SessionFlow) Register(ctx context.Context, username, password string) (user *User, err error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer func() { endSpan(span, err) }()

	if username == "" || password == "" {
		return nil, validationError("Username and password are required")
	}
	if _, err := advance(StateAnonymous, StateAnonymous); err != nil {
		return nil, err
	}

	user, err = f.credentials.Create(ctx, username, password)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("auth.user_id", user.ID.String()))
	f.logger.InfoContext(ctx, "user registered", "username", user.Username, "user_id", user.ID.String())
	return user, nil
}

// Logout requires a valid access token and instructs the caller to clear the
// refresh cookie. Nothing is recorded server side.
func (f *SessionFlow) Logout(ctx context.Context, accessToken string) (res *LogoutResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.logout")
	defer func() { endSpan(span, err) }()

	userID, err := f.verifier.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}
	state, err := advance(StateAuthenticated, StateLoggedOut)
	if err != nil {
		return nil, err
	}
	f.logger.InfoContext(ctx, "logout", "user_id", userID)
	return &LogoutResult{State: state, UserID: userID, Cookie: CookieClear}, nil
}

// Refresh verifies a refresh token and issues a new access token for the
// same subject.
func (f *SessionFlow) Refresh(ctx context.Context, refreshToken string) (res *RefreshResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.refresh")
	defer func() { endSpan(span, err) }()

	state, err := advance(StateAuthenticated, StateRefreshing)
	if err != nil {
		return nil, err
	}

	userID, err := f.verifier.VerifyRefresh(refreshToken)
	if err != nil {
		state, _ = advance(state, StateAnonymous)
		return nil, oops.With("state", state).Wrap(err)
	}

	access, err := f.issuer.IssueAccessToken(userID)
	if err != nil {
		return nil, err
	}
	if state, err = advance(state, StateAuthenticated); err != nil {
		return nil, err
	}
	f.logger.InfoContext(ctx, "access token refreshed", "user_id", userID)
	return &RefreshResult{State: state, UserID: userID, AccessToken: access, Cookie: CookieKeep}, nil
}

// Authenticate verifies an access token and returns its subject.
func (f *SessionFlow) Authenticate(accessToken string) (string, error) {
	return f.verifier.VerifyAccess(accessToken)
}

// UserDetails returns the user with the given ID. Malformed IDs are not found.
func (f *SessionFlow) UserDetails(ctx context.Context, id string) (*User, error) {
	uid, err := ulid.ParseStrict(id)
	if err != nil {
		return nil, oops.Code(CodeUserNotFound).With("user_id", id).Wrap(ErrNotFound)
	}
	return f.credentials.FindByID(ctx, uid)
}

// Ping reports whether the credential store is reachable.
func (f *SessionFlow) Ping(ctx context.Context) error {
	return f.credentials.Ping(ctx)
}
