package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsRunFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	ctx := WithRun(context.Background(), "run-1", "2024")
	ctx = WithEndpoint(ctx, "/ed-fi/students")
	WithContext(ctx).Info("page written")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "run-1", fields["run_id"])
	assert.Equal(t, "2024", fields["source_key"])
	assert.Equal(t, "/ed-fi/students", fields["endpoint"])
}

func TestWithContextWithoutValues(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	WithContext(context.Background()).Info("bare")

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].ContextMap())
}

func TestInitRejectsBadLevel(t *testing.T) {
	err := Init(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestGetDefaultsWhenUnset(t *testing.T) {
	Set(nil)
	assert.NotNil(t, Get())
}
