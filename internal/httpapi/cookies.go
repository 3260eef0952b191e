// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adimalka14/auth-server-jwt/internal/auth"
)

// RefreshCookieName names the cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

type cookieSettings struct {
	secure bool
	maxAge time.Duration
}

func (c cookieSettings) base() *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// apply executes the flow's cookie instruction.
func (c cookieSettings) apply(w http.ResponseWriter, action auth.CookieAction, refreshToken string) {
	switch action {
	case auth.CookieSet:
		cookie := c.base()
		cookie.Value = auth.BearerScheme + refreshToken
		cookie.MaxAge = int(c.maxAge / time.Second)
		cookie.Expires = time.Now().Add(c.maxAge).UTC()
		http.SetCookie(w, cookie)
	case auth.CookieClear:
		cookie := c.base()
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	case auth.CookieKeep:
	}
}

// refreshCookieValue returns the raw cookie value or "" when absent.
// Values percent-encoded by browsers are decoded.
func refreshCookieValue(r *http.Request) string {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	value := cookie.Value
	if strings.Contains(value, "%") {
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
	}
	return value
}
