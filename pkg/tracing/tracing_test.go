package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSpanAccessors(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() {
		SetTracer(nil)
		_ = tp.Shutdown(context.Background())
	})
	SetTracer(tp.Tracer("test"))

	t.Run("no active span", func(t *testing.T) {
		ctx := context.Background()
		assert.Nil(t, GetActiveSpan(ctx))
		assert.Empty(t, GetTraceID(ctx))
		assert.Empty(t, GetSpanID(ctx))
		assert.Empty(t, GetTraceParent(ctx))
	})

	t.Run("active span exposes its ids", func(t *testing.T) {
		ctx, span := StartSpan(context.Background(), "tracing.test")
		defer span.End()

		require.NotNil(t, GetActiveSpan(ctx))
		assert.Len(t, GetTraceID(ctx), 32)
		assert.Len(t, GetSpanID(ctx), 16)
		assert.Contains(t, GetTraceParent(ctx), GetTraceID(ctx))
	})

	t.Run("no tracer configured", func(t *testing.T) {
		SetTracer(nil)
		ctx, span := StartSpan(context.Background(), "tracing.test")
		assert.NotNil(t, span)
		assert.Nil(t, GetActiveSpan(ctx))
		assert.Empty(t, GetTraceParent(ctx))
	})
}
