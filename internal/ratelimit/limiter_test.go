// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T, cfg Config, opts ...Option) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append(opts, WithClock(clock.Now))
	l, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l, clock
}

func TestNew(t *testing.T) {
	t.Run("rejects non-positive limit", func(t *testing.T) {
		for _, limit := range []int{0, -1} {
			_, err := New(Config{Name: "auth", Limit: limit})
			assert.Error(t, err)
		}
	})

	t.Run("applies defaults", func(t *testing.T) {
		l, err := New(Config{Name: "auth", Limit: 5})
		require.NoError(t, err)
		defer l.Close()

		assert.Equal(t, DefaultWindow, l.idleTimeout)
		assert.InDelta(t, 5.0/DefaultWindow.Seconds(), l.rate, 1e-12)
	})
}

func TestLimiter_Allow(t *testing.T) {
	t.Run("allows up to the limit then rejects", func(t *testing.T) {
		l, _ := newTestLimiter(t, Config{Name: "auth", Limit: 5, Window: 15 * time.Minute})

		for i := range 5 {
			d := l.Allow("10.0.0.1")
			require.True(t, d.Allowed, "request %d", i+1)
			assert.Equal(t, 5, d.Limit)
			assert.Equal(t, 4-i, d.Remaining)
		}

		d := l.Allow("10.0.0.1")
		assert.False(t, d.Allowed)
		assert.Equal(t, 0, d.Remaining)
		assert.InDelta(t, (3 * time.Minute).Seconds(), d.RetryAfter.Seconds(), 0.01)
	})

	t.Run("clients are independent", func(t *testing.T) {
		l, _ := newTestLimiter(t, Config{Name: "auth", Limit: 1, Window: time.Minute})

		assert.True(t, l.Allow("a").Allowed)
		assert.False(t, l.Allow("a").Allowed)
		assert.True(t, l.Allow("b").Allowed)
		assert.Equal(t, 2, l.Len())
	})

	t.Run("refills over the window", func(t *testing.T) {
		l, clock := newTestLimiter(t, Config{Name: "auth", Limit: 5, Window: 15 * time.Minute})

		for range 5 {
			require.True(t, l.Allow("ip").Allowed)
		}
		require.False(t, l.Allow("ip").Allowed)

		clock.Advance(3*time.Minute + time.Second)
		assert.True(t, l.Allow("ip").Allowed)
		assert.False(t, l.Allow("ip").Allowed)

		clock.Advance(time.Hour)
		for range 5 {
			assert.True(t, l.Allow("ip").Allowed)
		}
		assert.False(t, l.Allow("ip").Allowed)
	})

	t.Run("concurrent callers never exceed the limit", func(t *testing.T) {
		l, _ := newTestLimiter(t, Config{Name: "general", Limit: 50, Window: time.Hour})

		var wg sync.WaitGroup
		var mu sync.Mutex
		allowed := 0
		for range 200 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if l.Allow("shared").Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 50, allowed)
	})
}

func TestLimiter_Cleanup(t *testing.T) {
	l, clock := newTestLimiter(t, Config{Name: "auth", Limit: 5, Window: 10 * time.Minute})

	l.Allow("old")
	clock.Advance(6 * time.Minute)
	l.Allow("recent")
	clock.Advance(5 * time.Minute)

	l.Cleanup()
	assert.Equal(t, 1, l.Len())

	d := l.Allow("old")
	assert.Equal(t, 4, d.Remaining, "dropped bucket starts full again")
}

func TestLimiter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	authLimiter, _ := newTestLimiter(t, Config{Name: "auth", Limit: 1, Window: time.Minute}, WithRegistry(reg))
	generalLimiter, _ := newTestLimiter(t, Config{Name: "general", Limit: 10, Window: time.Minute}, WithRegistry(reg))

	authLimiter.Allow("a")
	authLimiter.Allow("a")
	authLimiter.Allow("b")
	generalLimiter.Allow("a")

	expected := `
# HELP authserver_rate_limited_total Total number of requests rejected by a rate limiter
# TYPE authserver_rate_limited_total counter
authserver_rate_limited_total{limiter="auth"} 1
authserver_rate_limited_total{limiter="general"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "authserver_rate_limited_total"))

	expected = `
# HELP authserver_rate_limit_buckets Current number of tracked rate limit buckets
# TYPE authserver_rate_limit_buckets gauge
authserver_rate_limit_buckets{limiter="auth"} 2
authserver_rate_limit_buckets{limiter="general"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "authserver_rate_limit_buckets"))

	_, err := New(Config{Name: "auth", Limit: 1}, WithRegistry(reg))
	assert.Error(t, err, "duplicate limiter name must not register twice")
}

func TestLimiter_CloseStopsGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)

	l, err := New(Config{Name: "auth", Limit: 5, CleanupInterval: time.Millisecond})
	require.NoError(t, err)
	l.Allow("x")
	time.Sleep(5 * time.Millisecond)
	l.Close()
	l.Close()
}

func ExampleLimiter_Allow() {
	l, _ := New(Config{Name: "auth", Limit: 2, Window: time.Minute})
	defer l.Close()

	for range 3 {
		d := l.Allow("192.0.2.1")
		fmt.Println(d.Allowed, d.Remaining)
	}
	// Output:
	// true 1
	// true 0
	// false 0
}
