// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

// Package ratelimit provides a per-client token bucket limiter used as a
// pass/reject gate in front of HTTP endpoints.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
)

const (
	// DefaultWindow is the period over which Limit requests are allowed.
	DefaultWindow = 15 * time.Minute

	// DefaultCleanupInterval is how often idle buckets are swept.
	DefaultCleanupInterval = time.Minute
)

// Config configures a Limiter.
type Config struct {
	// Name labels the limiter's metrics, e.g. "auth" or "general".
	Name string

	// Limit is the number of requests a client may make per Window. It is
	// also the burst capacity of each bucket.
	Limit int

	// Window is the refill period. Defaults to DefaultWindow.
	Window time.Duration

	// CleanupInterval is the interval of the background sweep.
	// Defaults to DefaultCleanupInterval.
	CleanupInterval time.Duration

	// IdleTimeout is how long a bucket may go unused before the sweep drops
	// it. Defaults to Window, after which an idle bucket is full anyway.
	IdleTimeout time.Duration
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithRegistry registers the limiter's bucket gauge and rejection counter.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(l *Limiter) { l.reg = reg }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// Limiter is a token bucket limiter keyed by client identifier. Each bucket
// holds at most Limit tokens and refills at Limit per Window.
//
// A Limiter owns a background goroutine; call Close to stop it.
type Limiter struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	limit       int
	rate        float64 // tokens per second
	idleTimeout time.Duration
	now         func() time.Time
	reg         prometheus.Registerer

	bucketGauge prometheus.Gauge
	rejected    prometheus.Counter

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Limiter and starts its cleanup goroutine.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if cfg.Limit <= 0 {
		return nil, oops.Code("RATE_LIMIT_INVALID").
			With("limiter", cfg.Name, "limit", cfg.Limit).
			Errorf("rate limit must be positive")
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = window
	}

	l := &Limiter{
		buckets:     make(map[string]*bucket),
		limit:       cfg.Limit,
		rate:        float64(cfg.Limit) / window.Seconds(),
		idleTimeout: idle,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.reg != nil {
		labels := prometheus.Labels{"limiter": cfg.Name}
		l.bucketGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "authserver_rate_limit_buckets",
			Help:        "Current number of tracked rate limit buckets",
			ConstLabels: labels,
		})
		l.rejected = prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "authserver_rate_limited_total",
			Help:        "Total number of requests rejected by a rate limiter",
			ConstLabels: labels,
		})
		if err := l.reg.Register(l.bucketGauge); err != nil {
			return nil, oops.Code("RATE_LIMIT_METRICS").With("limiter", cfg.Name).Wrap(err)
		}
		if err := l.reg.Register(l.rejected); err != nil {
			l.reg.Unregister(l.bucketGauge)
			return nil, oops.Code("RATE_LIMIT_METRICS").With("limiter", cfg.Name).Wrap(err)
		}
	}

	l.wg.Add(1)
	go l.cleanupLoop(interval)
	return l, nil
}

// Allow consumes one token from key's bucket if one is available. New
// clients start with a full bucket.
func (l *Limiter) Allow(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.limit), lastSeen: now}
		l.buckets[key] = b
		l.updateGauge()
	}

	if elapsed := now.Sub(b.lastSeen).Seconds(); elapsed > 0 {
		b.tokens = math.Min(float64(l.limit), b.tokens+elapsed*l.rate)
	}
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return Decision{Allowed: true, Limit: l.limit, Remaining: int(b.tokens)}
	}

	if l.rejected != nil {
		l.rejected.Inc()
	}
	wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
	return Decision{Allowed: false, Limit: l.limit, RetryAfter: wait}
}

// Len returns the number of tracked buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Cleanup drops buckets idle for longer than the idle timeout.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := l.now().Add(-l.idleTimeout)
	for key, b := range l.buckets {
		if b.lastSeen.Before(threshold) {
			delete(l.buckets, key)
		}
	}
	l.updateGauge()
}

// updateGauge must be called with mu held.
func (l *Limiter) updateGauge() {
	if l.bucketGauge != nil {
		l.bucketGauge.Set(float64(len(l.buckets)))
	}
}

func (l *Limiter) cleanupLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

// Close stops the cleanup goroutine and waits for it to exit. It is safe to
// call more than once.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() {
		close(l.stop)
		l.wg.Wait()
	})
}
