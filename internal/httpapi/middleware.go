// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

package httpapi

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"
	"github.com/unrolled/secure"

	"github.com/adimalka14/auth-server-jwt/internal/logging"
)

const (
	requestIDHeader   = "X-Request-ID"
	maxRequestIDLen   = 128
	unmatchedRoute    = "unmatched"
	hstsMaxAgeSeconds = 15552000
)

// requestID echoes a sane incoming X-Request-ID or generates a ULID, and
// stores it in the request context for logging.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen || strings.ContainsFunc(id, isUnsafeHeaderRune) {
			id = ulid.Make().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func isUnsafeHeaderRune(c rune) bool {
	return c < 0x21 || c > 0x7e
}

type routeKey struct{}

// routeInfo is filled in by recordRoute once mux has matched a route.
type routeInfo struct {
	template string
}

// recordRoute runs inside the router and publishes the matched path
// template to observe.
func recordRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info, ok := r.Context().Value(routeKey{}).(*routeInfo); ok {
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					info.template = tpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// observe logs every request once on completion and records its metrics,
// labelled by route template so ids do not explode cardinality.
func (a *api) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &routeInfo{template: unmatchedRoute}
		r = r.WithContext(context.WithValue(r.Context(), routeKey{}, info))

		m := httpsnoop.CaptureMetrics(next, w, r)

		a.metrics.ObserveRequest(info.template, m.Code, m.Duration)
		a.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", info.template,
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration.Round(time.Microsecond),
		)
	})
}

// recoverPanics turns a handler panic into a logged 500.
func (a *api) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				a.logger.ErrorContext(r.Context(), "panic recovered", "panic", v, "path", r.URL.Path)
				writeMessage(w, http.StatusInternalServerError, msgInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// securityHeaders sets the helmet-style response headers. HSTS is only sent
// in production.
func securityHeaders(production bool) func(http.Handler) http.Handler {
	opts := secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "no-referrer",
	}
	if production {
		opts.STSSeconds = hstsMaxAgeSeconds
		opts.STSIncludeSubdomains = true
		opts.ForceSTSHeader = true
	}
	sec := secure.New(opts)

	return func(next http.Handler) http.Handler {
		return sec.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")
			next.ServeHTTP(w, r)
		}))
	}
}

// limit gates next behind limiter, keyed by client address. A nil limiter
// admits everything.
func (a *api) limit(limiter Limiter, message string, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := limiter.Allow(clientIP(r, a.trustProxy))
		w.Header().Set("RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
			writeMessage(w, http.StatusTooManyRequests, message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the client address. With trustProxy the first
// X-Forwarded-For entry wins.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
