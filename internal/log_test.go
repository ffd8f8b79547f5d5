package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := GetLogger()
	defer SetLogger(prev)

	SetLogger(NewZapLogger(zap.New(core)))
	GetLogger().Printf("Failed to release lock[%s], err: %v", "foo", "boom")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "Failed to release lock[foo], err: boom", entries[0].Message)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
}

func TestSetNilLogger(t *testing.T) {
	prev := GetLogger()
	defer SetLogger(prev)

	SetLogger(nil)
	require.IsType(t, NopLogger{}, GetLogger())
	GetLogger().Printf("dropped %d", 1)
}
