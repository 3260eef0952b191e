// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adimalka14/auth-server-jwt/internal/logging"
	"github.com/adimalka14/auth-server-jwt/pkg/errutil"
)

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("AUTH_SIGNING").
		With("kind", "access").
		Errorf("secret missing")

	errutil.LogError(logger, "token issue failed", err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "token issue failed", entry["msg"])
	assert.Equal(t, "AUTH_SIGNING", entry["code"])
	assert.Equal(t, map[string]any{"kind": "access"}, entry["context"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Contains(t, entry["error"], "standard error")
	assert.NotContains(t, entry, "code")
}

func TestLogErrorContext_CarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("authserver", "test", logging.Options{}, &buf)
	ctx := logging.WithRequestID(context.Background(), "req-1")

	errutil.LogErrorContext(ctx, logger, "login failed", oops.Code("AUTH_HASHING").Errorf("bad hash"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "AUTH_HASHING", entry["code"])
}
