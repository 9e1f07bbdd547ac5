package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextLoggerCarriesComponentAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := FromZap(zap.New(core)).WithComponent("ledger")

	ctx := WithLogger(context.Background(), l)
	Info(ctx, "stock moved", "product_id", "prd-flag-65", "delta", -2)
	Debug(ctx, "hidden")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "stock moved", entries[0].Message)
	fields := entries[0].ContextMap()
	require.Equal(t, "ledger", fields["component"])
	require.Equal(t, "prd-flag-65", fields["product_id"])
	require.EqualValues(t, -2, fields["delta"])
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	require.Same(t, Default(), FromContext(context.Background()))
}

func TestNewParsesLevel(t *testing.T) {
	l, err := New(Config{Level: "warn", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	require.False(t, l.Desugar().Core().Enabled(zapcore.InfoLevel))
	require.True(t, l.Desugar().Core().Enabled(zapcore.WarnLevel))

	l, err = New(Config{Level: "bogus"})
	require.NoError(t, err)
	require.True(t, l.Desugar().Core().Enabled(zapcore.InfoLevel))
}
