// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

package httpapi

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adimalka14/auth-server-jwt/internal/auth"
	"github.com/adimalka14/auth-server-jwt/internal/logging"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		forwarded  string
		trustProxy bool
		want       string
	}{
		{"remote host", "192.0.2.10:5555", "", false, "192.0.2.10"},
		{"ipv6 remote", "[2001:db8::1]:443", "", false, "2001:db8::1"},
		{"no port", "192.0.2.10", "", false, "192.0.2.10"},
		{"forwarded ignored without trust", "192.0.2.10:5555", "203.0.113.9", false, "192.0.2.10"},
		{"forwarded first hop", "192.0.2.10:5555", "203.0.113.9, 10.0.0.1", true, "203.0.113.9"},
		{"blank forwarded falls back", "192.0.2.10:5555", " , 10.0.0.1", true, "192.0.2.10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, clientIP(r, tt.trustProxy))
		})
	}
}

func TestRequestID_ReplacesUnsafeValues(t *testing.T) {
	var seen string
	h := requestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFrom(r.Context())
	}))

	for _, bad := range []string{"has space", strings.Repeat("x", maxRequestIDLen+1), "tab\there"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, bad)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		got := rec.Header().Get(requestIDHeader)
		assert.NotEqual(t, bad, got)
		assert.Len(t, got, 26)
		assert.Equal(t, got, seen)
	}
}

func TestRecoverPanics(t *testing.T) {
	var buf bytes.Buffer
	a := &api{logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	h := a.recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/1", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"Internal server error"}`, rec.Body.String())
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "boom")
}

func TestRecoverPanics_AbortHandlerPropagates(t *testing.T) {
	a := &api{logger: slog.New(slog.DiscardHandler)}
	h := a.recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRefreshCookieValue(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, refreshCookieValue(r))

	r.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: "Bearer%20abc"})
	assert.Equal(t, "Bearer abc", refreshCookieValue(r))
}

func TestCookieSettings_Apply(t *testing.T) {
	c := cookieSettings{secure: true, maxAge: 7 * 24 * time.Hour}

	rec := httptest.NewRecorder()
	c.apply(rec, auth.CookieKeep, "ignored")
	assert.Empty(t, rec.Header().Values("Set-Cookie"), "keep writes nothing")

	rec = httptest.NewRecorder()
	c.apply(rec, auth.CookieSet, "tok")
	header := rec.Header().Get("Set-Cookie")
	require.NotEmpty(t, header)
	assert.Contains(t, header, `refreshToken="Bearer tok"`)
	assert.Contains(t, header, "Max-Age=604800")
	assert.Contains(t, header, "HttpOnly")
	assert.Contains(t, header, "Secure")
	assert.Contains(t, header, "SameSite=Strict")
}

func TestOpenAPIDocument(t *testing.T) {
	doc, err := OpenAPIDocument("1.2.3")
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"version": "1.2.3"`)
	assert.Contains(t, string(doc), `"bearerAuth"`)
	assert.Contains(t, string(doc), `"refreshAuth"`)
}
