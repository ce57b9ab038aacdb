package tracing_test

import (
	"context"
	"testing"

	"github.com/gatehouse/gatehouse/internal/observability/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_NoopWhenDisabled(t *testing.T) {
	shutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:  false,
		Endpoint: "http://localhost:4318",
	})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := tracing.Setup(context.Background(), tracing.Config{Enabled: true, Endpoint: "  "})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, shutdown(ctx), "noop shutdown ignores cancelled context")
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address so nothing is exported.
	shutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:     true,
		Endpoint:    "http://192.0.2.1:4318",
		ServiceName: "gatehouse-test",
	})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestTracer_NotNil(t *testing.T) {
	assert.NotNil(t, tracing.Tracer())
}
