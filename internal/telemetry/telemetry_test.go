package telemetry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lootbox-backend/internal/telemetry"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := telemetry.Setup(t.Context(), "lootbox-backend", "")
	require.NoError(t, err)
	require.NoError(t, shutdown(t.Context()))
}

func TestSetupWithEndpoint(t *testing.T) {
	shutdown, err := telemetry.Setup(t.Context(), "lootbox-backend", "http://127.0.0.1:4318")
	require.NoError(t, err)
	require.NoError(t, shutdown(t.Context()))
}
