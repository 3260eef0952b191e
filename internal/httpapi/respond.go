// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/adimalka14/auth-server-jwt/internal/auth"
)

// Client-facing messages.
const (
	msgRegistered        = "User registered successfully"
	msgLoggedIn          = "Login successful"
	msgLoggedOut         = "Logout successful"
	msgRefreshed         = "Access token refreshed successfully"
	msgFieldsRequired    = "Username and password are required"
	msgDuplicate         = "Username already exists"
	msgBadCredentials    = "Invalid username or password"
	msgNoToken           = "Access denied. No token provided."
	msgInvalidAccess     = "Invalid access token"
	msgMissingRefresh    = "missing refresh token"
	msgInvalidRefresh    = "Invalid refresh token"
	msgUserNotFound      = "User not found"
	msgTooManyLogins     = "Too many login attempts from this IP, please try again after 15 minutes"
	msgTooManyRequests   = "Too many requests from this IP, please try again after 15 minutes"
	msgRegisterFailed    = "An error occurred during registration"
	msgLoginFailed       = "An error occurred during login"
	msgLogoutFailed      = "An error occurred during logout"
	msgRefreshFailed     = "An error occurred during token refresh"
	msgUserDetailsFailed = "An error occurred while retrieving user details"
	msgInternal          = "Internal server error"
)

type messageResponse struct {
	Message string `json:"message"`
}

type registerResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userID"`
}

type tokenResponse struct {
	Message     string `json:"message"`
	UserID      string `json:"userId"`
	AccessToken string `json:"accessToken"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:        u.ID.String(),
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// writeJSON marshals v and writes it with status. A marshal failure becomes
// a bare 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"` + msgInternal + `"}`))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}
