// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

// Package config loads the server configuration from flag defaults, an
// optional YAML file, AUTHSERVER_ environment variables and explicit flags,
// in increasing order of precedence.
package config

import (
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/adimalka14/auth-server-jwt/internal/auth"
	"github.com/adimalka14/auth-server-jwt/internal/logging"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "AUTHSERVER_"

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// EnvironmentProduction enables Secure cookies and HSTS and hides the docs.
const EnvironmentProduction = "production"

const redacted = "[REDACTED]"

// Config is the validated server configuration. It is built once at startup
// and passed by value.
type Config struct {
	DatabaseURL        string        `koanf:"database-url" yaml:"database-url"`
	Store              string        `koanf:"store" yaml:"store"`
	ListenAddr         string        `koanf:"listen-addr" yaml:"listen-addr"`
	MetricsAddr        string        `koanf:"metrics-addr" yaml:"metrics-addr"`
	AccessTokenSecret  string        `koanf:"access-token-secret" yaml:"access-token-secret"`
	RefreshTokenSecret string        `koanf:"refresh-token-secret" yaml:"refresh-token-secret"`
	AccessTokenTTL     time.Duration `koanf:"access-token-ttl" yaml:"access-token-ttl"`
	RefreshTokenTTL    time.Duration `koanf:"refresh-token-ttl" yaml:"refresh-token-ttl"`
	Environment        string        `koanf:"environment" yaml:"environment"`
	HashAlgorithm      string        `koanf:"hash-algorithm" yaml:"hash-algorithm"`
	HashCost           int           `koanf:"hash-cost" yaml:"hash-cost"`
	MinPasswordLength  int           `koanf:"min-password-length" yaml:"min-password-length"`
	LogLevel           string        `koanf:"log-level" yaml:"log-level"`
	LogFormat          string        `koanf:"log-format" yaml:"log-format"`
	RateLimitAuth      int           `koanf:"rate-limit-auth" yaml:"rate-limit-auth"`
	RateLimitGeneral   int           `koanf:"rate-limit-general" yaml:"rate-limit-general"`
	RateLimitWindow    time.Duration `koanf:"rate-limit-window" yaml:"rate-limit-window"`
	TrustProxy         bool          `koanf:"trust-proxy" yaml:"trust-proxy"`
	AutoMigrate        bool          `koanf:"auto-migrate" yaml:"auto-migrate"`
	ShutdownTimeout    time.Duration `koanf:"shutdown-timeout" yaml:"shutdown-timeout"`
	CORSOrigins        []string      `koanf:"cors-origins" yaml:"cors-origins"`
}

// Default returns the configuration used when nothing overrides it. Secrets
// have no default.
func Default() Config {
	return Config{
		Store:             StorePostgres,
		ListenAddr:        ":3000",
		MetricsAddr:       "127.0.0.1:9100",
		AccessTokenTTL:    auth.DefaultAccessTokenTTL,
		RefreshTokenTTL:   auth.DefaultRefreshTokenTTL,
		Environment:       "local",
		HashAlgorithm:     auth.AlgorithmBcrypt,
		HashCost:          auth.DefaultBcryptCost,
		MinPasswordLength: auth.DefaultMinPasswordLength,
		LogLevel:          "info",
		LogFormat:         "json",
		RateLimitAuth:     5,
		RateLimitGeneral:  1000,
		RateLimitWindow:   15 * time.Minute,
		AutoMigrate:       true,
		ShutdownTimeout:   10 * time.Second,
		CORSOrigins:       []string{"*"},
	}
}

// RegisterFlags adds every configuration key to fs with its default.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("database-url", d.DatabaseURL, "PostgreSQL connection string")
	fs.String("store", d.Store, "user store backend (postgres or memory)")
	fs.String("listen-addr", d.ListenAddr, "HTTP listen address")
	fs.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("access-token-secret", d.AccessTokenSecret, "HMAC secret for access tokens")
	fs.String("refresh-token-secret", d.RefreshTokenSecret, "HMAC secret for refresh tokens")
	fs.Duration("access-token-ttl", d.AccessTokenTTL, "access token lifetime")
	fs.Duration("refresh-token-ttl", d.RefreshTokenTTL, "refresh token lifetime")
	fs.String("environment", d.Environment, "deployment environment (production enables secure cookies)")
	fs.String("hash-algorithm", d.HashAlgorithm, "password hash algorithm (bcrypt or argon2id)")
	fs.Int("hash-cost", d.HashCost, "bcrypt cost factor")
	fs.Int("min-password-length", d.MinPasswordLength, "minimum password length at registration")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.Int("rate-limit-auth", d.RateLimitAuth, "login/register requests per window per client")
	fs.Int("rate-limit-general", d.RateLimitGeneral, "requests per window per client")
	fs.Duration("rate-limit-window", d.RateLimitWindow, "rate limit window")
	fs.Bool("trust-proxy", d.TrustProxy, "use X-Forwarded-For to identify clients")
	fs.Bool("auto-migrate", d.AutoMigrate, "apply database migrations before serving")
	fs.Duration("shutdown-timeout", d.ShutdownTimeout, "graceful shutdown timeout")
	fs.StringSlice("cors-origins", d.CORSOrigins, "allowed CORS origins")
}

// Load merges the configuration sources. configFile may be empty. The result
// is not validated; commands call Validate or ValidateDatabase for the subset
// they need.
func Load(fs *pflag.FlagSet, configFile string) (Config, error) {
	k := koanf.New(".")

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("file", configFile).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	// Passing k makes posflag apply unchanged flag defaults only for keys no
	// other source set, while explicitly set flags always win.
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return cfg, nil
}

// envKey maps AUTHSERVER_ACCESS_TOKEN_SECRET to access-token-secret.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", "-")
}

// ValidateDatabase checks the settings needed to reach the database.
func (c Config) ValidateDatabase() error {
	if c.DatabaseURL == "" {
		return invalid("database-url", "is required")
	}
	return nil
}

// Validate checks the configuration once at startup.
func (c Config) Validate() error {
	if c.AccessTokenSecret == "" || c.RefreshTokenSecret == "" {
		return oops.Code(auth.CodeSigning).
			With("access_secret_set", c.AccessTokenSecret != "", "refresh_secret_set", c.RefreshTokenSecret != "").
			Wrapf(auth.ErrSigning, "access-token-secret and refresh-token-secret are required")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return invalid("refresh-token-secret", "must differ from access-token-secret")
	}
	if c.AccessTokenTTL <= 0 {
		return invalid("access-token-ttl", "must be positive")
	}
	if c.RefreshTokenTTL <= 0 {
		return invalid("refresh-token-ttl", "must be positive")
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return invalid("database-url", "is required when store is postgres")
		}
	case StoreMemory:
	default:
		return invalid("store", "must be postgres or memory")
	}
	if c.ListenAddr == "" {
		return invalid("listen-addr", "is required")
	}
	if !slices.Contains([]string{auth.AlgorithmBcrypt, auth.AlgorithmArgon2id}, c.HashAlgorithm) {
		return invalid("hash-algorithm", "must be bcrypt or argon2id")
	}
	if c.HashCost < 4 || c.HashCost > 31 {
		return invalid("hash-cost", "must be between 4 and 31")
	}
	if c.MinPasswordLength < 1 {
		return invalid("min-password-length", "must be at least 1")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log-level", "must be debug, info, warn or error")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid("log-format", "must be json or text")
	}
	if c.RateLimitAuth <= 0 || c.RateLimitGeneral <= 0 {
		return invalid("rate-limit", "limits must be positive")
	}
	if c.RateLimitWindow <= 0 {
		return invalid("rate-limit-window", "must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return invalid("shutdown-timeout", "must be positive")
	}
	return nil
}

func invalid(key, msg string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s %s", key, msg)
}

// IsProduction reports whether the environment is production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvironmentProduction)
}

// TokenConfig returns the token settings.
func (c Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		AccessSecret:  c.AccessTokenSecret,
		RefreshSecret: c.RefreshTokenSecret,
		AccessTTL:     c.AccessTokenTTL,
		RefreshTTL:    c.RefreshTokenTTL,
	}
}

// LoggingOptions returns the logger settings. Validate guarantees the level
// parses.
func (c Config) LoggingOptions() logging.Options {
	level, _ := logging.ParseLevel(c.LogLevel)
	return logging.Options{Format: c.LogFormat, Level: level}
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.AccessTokenSecret != "" {
		c.AccessTokenSecret = redacted
	}
	if c.RefreshTokenSecret != "" {
		c.RefreshTokenSecret = redacted
	}
	if c.DatabaseURL != "" {
		c.DatabaseURL = redactURL(c.DatabaseURL)
	}
	return c
}
