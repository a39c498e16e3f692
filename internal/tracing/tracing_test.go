package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetup(t *testing.T) {
	ctx := context.Background()

	t.Run("is a no-op without an endpoint", func(t *testing.T) {
		shutdown, err := Setup(ctx, Options{Enabled: true, ServiceName: "wager-test"})
		require.NoError(t, err)
		assert.NoError(t, shutdown(ctx))
	})

	t.Run("is a no-op when disabled", func(t *testing.T) {
		shutdown, err := Setup(ctx, Options{Enabled: false, Endpoint: "http://192.0.2.1:4318", ServiceName: "wager-test"})
		require.NoError(t, err)
		assert.NoError(t, shutdown(ctx))
	})

	t.Run("installs a provider for an endpoint", func(t *testing.T) {
		prev := otel.GetTracerProvider()
		t.Cleanup(func() { otel.SetTracerProvider(prev) })

		// Non-routable address; nothing is exported before shutdown.
		shutdown, err := Setup(ctx, Options{Enabled: true, Endpoint: "http://192.0.2.1:4318", ServiceName: "wager-test"})
		require.NoError(t, err)
		_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
		assert.True(t, isSDK)
		assert.NoError(t, shutdown(ctx))
	})
}

func TestTracerUsesGlobalProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	_, span := Tracer().Start(context.Background(), "probe")
	span.End()

	require.Len(t, recorder.Ended(), 1)
	assert.Equal(t, "probe", recorder.Ended()[0].Name())
}
