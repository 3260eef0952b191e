// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/adimalka14/auth-server-jwt/internal/auth"
	"github.com/adimalka14/auth-server-jwt/internal/auth/memory"
	"github.com/adimalka14/auth-server-jwt/internal/auth/postgres"
	"github.com/adimalka14/auth-server-jwt/internal/config"
	"github.com/adimalka14/auth-server-jwt/internal/httpapi"
	"github.com/adimalka14/auth-server-jwt/internal/logging"
	"github.com/adimalka14/auth-server-jwt/internal/observability"
	"github.com/adimalka14/auth-server-jwt/internal/ratelimit"
	"github.com/adimalka14/auth-server-jwt/internal/store"
	"github.com/adimalka14/auth-server-jwt/pkg/errutil"
)

const serviceName = "authserver"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API serving registration, login, logout, token
refresh and user lookup. Metrics and health probes are served on
metrics-addr when it is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
}

// runServeWithDeps runs the server until ctx is cancelled, a signal arrives
// or a server fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps = deps.withDefaults()

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.SetDefault(serviceName, version, cfg.LoggingOptions())
	logger.Info("starting auth server",
		"listen_addr", cfg.ListenAddr,
		"store", cfg.Store,
		"environment", cfg.Environment,
		"hash_algorithm", cfg.HashAlgorithm,
	)

	users, closeUsers, err := deps.UserStoreFactory(ctx, cfg, logger)
	if err != nil {
		errutil.LogError(logger, "failed to open user store", err)
		return err
	}
	defer closeUsers()

	flow, err := buildSessionFlow(cfg, users, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		obsServer ObservabilityServer
		metrics   *observability.Metrics
		registry  prometheus.Registerer
	)
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, flow.Ping, logger)
		obsErrCh, startErr := obsServer.Start()
		if startErr != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.MetricsAddr).Wrap(startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
		metrics, registry = obsServer.Metrics(), obsServer.Registry()
	} else {
		reg := prometheus.NewRegistry()
		metrics, registry = observability.NewMetrics(reg), reg
	}

	limiters, err := newLimiters(cfg, registry)
	if err != nil {
		stopObservability(obsServer, cfg.ShutdownTimeout, logger)
		return err
	}
	defer limiters.Close()

	handler, err := httpapi.NewRouter(httpapi.Options{
		Sessions:        flow,
		Logger:          logger,
		Metrics:         metrics,
		GeneralLimiter:  limiters.general,
		LoginLimiter:    limiters.login,
		RegisterLimiter: limiters.register,
		Production:      cfg.IsProduction(),
		TrustProxy:      cfg.TrustProxy,
		RefreshTTL:      cfg.RefreshTokenTTL,
		CORSOrigins:     cfg.CORSOrigins,
		Version:         version,
	})
	if err != nil {
		stopObservability(obsServer, cfg.ShutdownTimeout, logger)
		return err
	}

	listener, err := deps.ListenerFactory("tcp", cfg.ListenAddr)
	if err != nil {
		stopObservability(obsServer, cfg.ShutdownTimeout, logger)
		return oops.Code("LISTEN_FAILED").With("addr", cfg.ListenAddr).Wrap(err)
	}

	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	serveErrCh := make(chan error, 1)
	go func() {
		defer close(serveErrCh)
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serveErrCh <- serveErr
		}
	}()

	cmd.Printf("Server is running on %s\n", listener.Addr())
	logger.Info("auth server ready", "addr", listener.Addr().String())

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr := <-serveErrCh:
		if serveErr != nil {
			runErr = oops.Code("HTTP_SERVE_FAILED").Wrap(serveErr)
			errutil.LogError(logger, "http server failed", runErr)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	stopObservability(obsServer, cfg.ShutdownTimeout, logger)

	logger.Info("shutdown complete")
	return runErr
}

func buildSessionFlow(cfg config.Config, users auth.UserRepository, logger *slog.Logger) (*auth.SessionFlow, error) {
	hasher, err := auth.NewHasher(cfg.HashAlgorithm, cfg.HashCost)
	if err != nil {
		return nil, err
	}
	creds, err := auth.NewCredentialStore(users, hasher, auth.WithMinPasswordLength(cfg.MinPasswordLength))
	if err != nil {
		return nil, err
	}
	tokens := cfg.TokenConfig()
	issuer, err := auth.NewTokenIssuer(tokens)
	if err != nil {
		return nil, err
	}
	verifier, err := auth.NewTokenVerifier(tokens)
	if err != nil {
		return nil, err
	}
	return auth.NewSessionFlow(creds, issuer, verifier, logger)
}

type limiterSet struct {
	login, register, general *ratelimit.Limiter
}

func newLimiters(cfg config.Config, reg prometheus.Registerer) (*limiterSet, error) {
	set := &limiterSet{}
	specs := []struct {
		name  string
		limit int
		dst   **ratelimit.Limiter
	}{
		{"login", cfg.RateLimitAuth, &set.login},
		{"register", cfg.RateLimitAuth, &set.register},
		{"general", cfg.RateLimitGeneral, &set.general},
	}
	for _, s := range specs {
		l, err := ratelimit.New(ratelimit.Config{Name: s.name, Limit: s.limit, Window: cfg.RateLimitWindow},
			ratelimit.WithRegistry(reg))
		if err != nil {
			set.Close()
			return nil, err
		}
		*s.dst = l
	}
	return set, nil
}

// Close stops every limiter that was created.
func (s *limiterSet) Close() {
	for _, l := range []*ratelimit.Limiter{s.login, s.register, s.general} {
		if l != nil {
			l.Close()
		}
	}
}

// openUserStore returns the in-memory repository or a migrated PostgreSQL
// one, depending on cfg.Store.
func openUserStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (auth.UserRepository, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory user store; users are lost on restart")
		return memory.NewUserRepository(), func() {}, nil
	}

	opts := store.DefaultConnectOptions()
	opts.Logger = logger
	pool, err := store.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to database")

	if cfg.AutoMigrate {
		if err := migrateUp(cfg.DatabaseURL, logger); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return postgres.NewUserRepository(pool), pool.Close, nil
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Debug("error closing migrator", "error", closeErr)
		}
	}()
	if err := m.Up(); err != nil {
		return err
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	logger.Info("database schema up to date", "version", version)
	return nil
}

func stopObservability(srv ObservabilityServer, timeout time.Duration, logger *slog.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when the server reports an error. It exits
// when an error arrives, the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
