package logging

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_LevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapLoggerFrom(zap.New(core))
	ctx := context.Background()

	log.With("module", "casts").Info(ctx, "published", "hash", "0xabc")
	log.Warn(ctx, "slow upstream")
	log.Error(ctx, "boom", "attempt", 2)
	log.Debug(ctx, "trace")

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)

	assert.Equal(t, "published", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "casts", fields["module"])
	assert.Equal(t, "0xabc", fields["hash"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[3].Level)
}

func TestNewZapLogger_WithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")

	log, closer, err := NewZapLogger(ZapOptions{Level: "debug", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Info(context.Background(), "hello", "k", "v")
	require.NoError(t, closer.Close())
	assert.FileExists(t, path)
}

func TestNewZapLogger_BadLevel(t *testing.T) {
	_, _, err := NewZapLogger(ZapOptions{Level: "loud"})
	assert.Error(t, err)
}
