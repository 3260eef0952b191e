// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

// Package httpapi exposes the authentication flows over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/samber/oops"

	"github.com/adimalka14/auth-server-jwt/internal/auth"
	"github.com/adimalka14/auth-server-jwt/internal/observability"
	"github.com/adimalka14/auth-server-jwt/internal/ratelimit"
)

// Sessions is the subset of auth.SessionFlow the handlers use.
type Sessions interface {
	Register(ctx context.Context, username, password string) (*auth.User, error)
	Login(ctx context.Context, username, password string) (*auth.LoginResult, error)
	Logout(ctx context.Context, accessToken string) (*auth.LogoutResult, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.RefreshResult, error)
	Authenticate(accessToken string) (string, error)
	UserDetails(ctx context.Context, id string) (*auth.User, error)
}

// Limiter is a pass/reject gate keyed by client address.
type Limiter interface {
	Allow(key string) ratelimit.Decision
}

// Options configures NewRouter. Sessions is required; nil limiters disable
// the corresponding gate.
type Options struct {
	Sessions Sessions
	Logger   *slog.Logger
	Metrics  *observability.Metrics

	GeneralLimiter  Limiter
	LoginLimiter    Limiter
	RegisterLimiter Limiter

	// Production sets the Secure cookie flag, sends HSTS and hides the docs.
	Production bool
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
	// RefreshTTL is the refresh cookie Max-Age. Defaults to the token TTL.
	RefreshTTL time.Duration
	// CORSOrigins lists allowed origins. Empty allows any.
	CORSOrigins []string
	// Version is reported in the API document.
	Version string
}

type api struct {
	sessions   Sessions
	logger     *slog.Logger
	metrics    *observability.Metrics
	cookies    cookieSettings
	trustProxy bool
}

// NewRouter builds the HTTP handler with every route and middleware.
func NewRouter(opts Options) (http.Handler, error) {
	if opts.Sessions == nil {
		return nil, oops.Errorf("sessions are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = auth.DefaultRefreshTokenTTL
	}

	a := &api{
		sessions:   opts.Sessions,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		cookies:    cookieSettings{secure: opts.Production, maxAge: opts.RefreshTTL},
		trustProxy: opts.TrustProxy,
	}

	r := mux.NewRouter()
	r.Use(recordRoute)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	authRoutes := r.PathPrefix("/auth").Subrouter()
	authRoutes.Handle("/register",
		a.limit(opts.RegisterLimiter, msgTooManyLogins, http.HandlerFunc(a.handleRegister))).
		Methods(http.MethodPost)
	authRoutes.Handle("/login",
		a.limit(opts.LoginLimiter, msgTooManyLogins, http.HandlerFunc(a.handleLogin))).
		Methods(http.MethodPost)
	authRoutes.Handle("/logout", a.requireAccess(http.HandlerFunc(a.handleLogout))).
		Methods(http.MethodGet)
	authRoutes.HandleFunc("/refresh", a.handleRefresh).
		Methods(http.MethodGet)

	r.Handle("/users/{id}", a.requireAccess(http.HandlerFunc(a.handleUserDetails))).
		Methods(http.MethodGet)

	if !opts.Production {
		doc, err := OpenAPIDocument(opts.Version)
		if err != nil {
			return nil, err
		}
		r.HandleFunc("/docs/openapi.json", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_, _ = w.Write(doc)
		}).Methods(http.MethodGet)
	}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	var h http.Handler = r
	h = a.limit(opts.GeneralLimiter, msgTooManyRequests, h)
	h = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", requestIDHeader}),
		handlers.ExposedHeaders([]string{requestIDHeader, "Retry-After", "RateLimit-Limit", "RateLimit-Remaining"}),
	)(h)
	h = handlers.CompressHandler(h)
	h = securityHeaders(opts.Production)(h)
	h = a.recoverPanics(h)
	h = a.observe(h)
	h = requestID(h)
	return h, nil
}
