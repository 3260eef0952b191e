// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adimalka14/auth-server-jwt/internal/auth"
	"github.com/adimalka14/auth-server-jwt/internal/observability"
	"github.com/adimalka14/auth-server-jwt/pkg/errutil"
)

// internalError logs err with its code and context and writes the route's
// generic 500 message.
func (a *api) internalError(w http.ResponseWriter, r *http.Request, operation, message string, err error) {
	errutil.LogErrorContext(r.Context(), a.logger, operation+" failed", err)
	a.metrics.RecordAuthEvent(operation, observability.OutcomeError)
	writeMessage(w, http.StatusInternalServerError, message)
}

func (a *api) rejected(w http.ResponseWriter, operation string, status int, message string) {
	a.metrics.RecordAuthEvent(operation, observability.OutcomeFailure)
	writeMessage(w, status, message)
}

func (a *api) handleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "register"

	req, err := decodeCredentials(w, r)
	if err != nil {
		if errors.Is(err, errMalformedBody) {
			a.rejected(w, op, http.StatusBadRequest, msgFieldsRequired)
			return
		}
		a.internalError(w, r, op, msgRegisterFailed, err)
		return
	}

	user, err := a.sessions.Register(r.Context(), req.Username, req.Password)
	switch auth.KindOf(err) {
	case auth.KindInternal:
		if err != nil {
			a.internalError(w, r, op, msgRegisterFailed, err)
			return
		}
	case auth.KindValidation:
		a.rejected(w, op, http.StatusBadRequest, auth.PublicMessage(err, msgFieldsRequired))
		return
	case auth.KindDuplicateUsername:
		a.rejected(w, op, http.StatusConflict, msgDuplicate)
		return
	default:
		a.internalError(w, r, op, msgRegisterFailed, err)
		return
	}

	a.metrics.RecordAuthEvent(op, observability.OutcomeSuccess)
	writeJSON(w, http.StatusCreated, registerResponse{Message: msgRegistered, UserID: user.ID.String()})
}

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	const op = "login"

	req, err := decodeCredentials(w, r)
	if err != nil {
		if errors.Is(err, errMalformedBody) {
			a.rejected(w, op, http.StatusBadRequest, msgFieldsRequired)
			return
		}
		a.internalError(w, r, op, msgLoginFailed, err)
		return
	}

	res, err := a.sessions.Login(r.Context(), req.Username, req.Password)
	switch auth.KindOf(err) {
	case auth.KindInternal:
		if err != nil {
			a.internalError(w, r, op, msgLoginFailed, err)
			return
		}
	case auth.KindValidation:
		a.rejected(w, op, http.StatusBadRequest, auth.PublicMessage(err, msgFieldsRequired))
		return
	case auth.KindInvalidCredentials:
		a.rejected(w, op, http.StatusUnauthorized, msgBadCredentials)
		return
	default:
		a.internalError(w, r, op, msgLoginFailed, err)
		return
	}

	a.cookies.apply(w, res.Cookie, res.RefreshToken)
	a.metrics.RecordAuthEvent(op, observability.OutcomeSuccess)
	writeJSON(w, http.StatusOK, tokenResponse{Message: msgLoggedIn, UserID: res.UserID, AccessToken: res.AccessToken})
}

func (a *api) handleLogout(w http.ResponseWriter, r *http.Request) {
	const op = "logout"

	res, err := a.sessions.Logout(r.Context(), accessTokenFrom(r.Context()))
	switch auth.KindOf(err) {
	case auth.KindInternal:
		if err != nil {
			a.internalError(w, r, op, msgLogoutFailed, err)
			return
		}
	case auth.KindTokenMissing:
		a.rejected(w, op, http.StatusBadRequest, msgNoToken)
		return
	case auth.KindTokenInvalid, auth.KindTokenExpired:
		a.rejected(w, op, http.StatusForbidden, msgInvalidAccess)
		return
	default:
		a.internalError(w, r, op, msgLogoutFailed, err)
		return
	}

	a.cookies.apply(w, res.Cookie, "")
	a.metrics.RecordAuthEvent(op, observability.OutcomeSuccess)
	writeMessage(w, http.StatusOK, msgLoggedOut)
}

func (a *api) handleRefresh(w http.ResponseWriter, r *http.Request) {
	const op = "refresh"

	token, err := auth.ParseBearer(refreshCookieValue(r), auth.TokenRefresh)
	if err != nil {
		a.rejected(w, op, http.StatusBadRequest, msgMissingRefresh)
		return
	}

	res, err := a.sessions.Refresh(r.Context(), token)
	switch auth.KindOf(err) {
	case auth.KindInternal:
		if err != nil {
			a.internalError(w, r, op, msgRefreshFailed, err)
			return
		}
	case auth.KindTokenMissing:
		a.rejected(w, op, http.StatusBadRequest, msgMissingRefresh)
		return
	case auth.KindTokenInvalid, auth.KindTokenExpired:
		a.rejected(w, op, http.StatusForbidden, msgInvalidRefresh)
		return
	default:
		a.internalError(w, r, op, msgRefreshFailed, err)
		return
	}

	a.cookies.apply(w, res.Cookie, "")
	a.metrics.RecordAuthEvent(op, observability.OutcomeSuccess)
	writeJSON(w, http.StatusOK, tokenResponse{Message: msgRefreshed, UserID: res.UserID, AccessToken: res.AccessToken})
}

func (a *api) handleUserDetails(w http.ResponseWriter, r *http.Request) {
	user, err := a.sessions.UserDetails(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if auth.KindOf(err) == auth.KindNotFound {
			writeMessage(w, http.StatusNotFound, msgUserNotFound)
			return
		}
		logger := a.logger.With("subject", SubjectFrom(r.Context()))
		errutil.LogErrorContext(r.Context(), logger, "user details failed", err)
		writeMessage(w, http.StatusInternalServerError, msgUserDetailsFailed)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

type accessKey struct{}

type accessInfo struct {
	token   string
	subject string
}

func accessTokenFrom(ctx context.Context) string {
	info, _ := ctx.Value(accessKey{}).(accessInfo)
	return info.token
}

// SubjectFrom returns the authenticated user id set by the access token
// middleware, or "".
func SubjectFrom(ctx context.Context) string {
	info, _ := ctx.Value(accessKey{}).(accessInfo)
	return info.subject
}

// requireAccess admits requests carrying a valid access token in the
// Authorization header.
func (a *api) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ParseBearer(r.Header.Get("Authorization"), auth.TokenAccess)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, msgNoToken)
			return
		}
		subject, err := a.sessions.Authenticate(token)
		if err != nil {
			a.logger.DebugContext(r.Context(), "access token rejected", "code", auth.ErrorCode(err))
			writeMessage(w, http.StatusForbidden, msgInvalidAccess)
			return
		}
		ctx := context.WithValue(r.Context(), accessKey{}, accessInfo{token: token, subject: subject})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
