package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, span := StartSpan(context.Background(), "noop")
	EndSpan(span, nil)
}

func TestSpansAreExported(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	shutdown, err := Init(TracingConfig{
		Enabled:      true,
		ServiceName:  "edsync-test",
		SamplingRate: 1.0,
		Exporter:     exporter,
	})
	require.NoError(t, err)

	ctx, parent := StartSpan(context.Background(), "run", attribute.String("source_key", "2024"))
	_, child := StartSpan(ctx, "unit")
	EndSpan(child, errors.New("fetch failed"))
	EndSpan(parent, nil)

	require.NoError(t, shutdown(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	byName := map[string]tracetest.SpanStub{}
	for _, s := range spans {
		byName[s.Name] = s
	}
	assert.Equal(t, codes.Error, byName["unit"].Status.Code)
	assert.Equal(t, byName["run"].SpanContext.TraceID(), byName["unit"].SpanContext.TraceID())
	assert.Contains(t, byName["run"].Attributes, attribute.String("source_key", "2024"))
}
