package otel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"lostfound/internal/platform/otel"
)

func TestSetupNoopWhenDisabled(t *testing.T) {
	shutdown, err := otel.Setup(context.Background(), "lostfound", false, "http://localhost:4318")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := otel.Setup(context.Background(), "lostfound", true, "")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupCreatesProvider(t *testing.T) {
	// non-routable address, nothing is exported before shutdown
	shutdown, err := otel.Setup(context.Background(), "lostfound", true, "http://192.0.2.1:4318")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
