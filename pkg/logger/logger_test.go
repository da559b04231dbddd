package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_RedactsSecrets(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromZap(zap.New(core))

	log.Info("Calling search API", "endpoint", "https://demo.search.windows.net", "apiKey", "s3cr3t")
	log.With("admin-key", "s3cr3t").Warn("Retrying")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	fields := entries[0].ContextMap()
	assert.Equal(t, "https://demo.search.windows.net", fields["endpoint"])
	assert.Equal(t, Redacted, fields["apiKey"])
	assert.Equal(t, Redacted, entries[1].ContextMap()["admin-key"])
}

func TestIsSecretKey(t *testing.T) {
	for _, key := range []string{"apiKey", "api-key", "API_KEY", "admin-key", "admin_key", "AdminKey", "client_secret", "accessToken", "Password"} {
		assert.True(t, isSecretKey(key), key)
	}
	for _, key := range []string{"index", "endpoint", "runId", "service"} {
		assert.False(t, isSecretKey(key), key)
	}
}

func TestRedact_DoesNotMutateInput(t *testing.T) {
	fields := []interface{}{"token", "abc", "index", "hotels"}
	out := redact(fields)

	assert.Equal(t, "abc", fields[1])
	assert.Equal(t, Redacted, out[1])
	assert.Equal(t, "hotels", out[3])

	plain := []interface{}{"index", "hotels", "count"}
	assert.Equal(t, plain, redact(plain))
}

func TestNew_FallsBackOnUnknownLevel(t *testing.T) {
	log := New(Config{Level: "loud", Format: "json", Output: "stderr"})
	require.NotNil(t, log)
	log.Debug("not shown")
}
