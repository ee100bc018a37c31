package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/returns-engine/pkg/config"
	"github.com/angelmondragon/returns-engine/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestBridgeDisabledIsNoOp(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	bridge := NewBridge(config.DispatchConfig{Enabled: false, BaseURL: server.URL}, testLogger())
	assert.False(t, bridge.Enabled())

	bridge.PickupBooked(context.Background(), uuid.New(), "TRK-1")
	assert.Zero(t, calls)
}

func TestBridgePushesAssignment(t *testing.T) {
	var got map[string]any
	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/driver-jobs/assignments", r.URL.Path)
		gotToken = r.Header.Get("x-internal-token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer server.Close()

	bridge := NewBridge(config.DispatchConfig{Enabled: true, BaseURL: server.URL, Token: "dispatch-token"}, testLogger())
	require.True(t, bridge.Enabled())

	returnID := uuid.New()
	bridge.PickupBooked(context.Background(), returnID, "TRK-9")

	assert.Equal(t, "dispatch-token", gotToken)
	assert.Equal(t, returnID.String(), got["return_id"])
	assert.Equal(t, "TRK-9", got["tracking_number"])
	assert.Equal(t, "pickup_booked", got["kind"])
}

func TestBridgeSurvivesUnreachableService(t *testing.T) {
	bridge := NewBridge(config.DispatchConfig{Enabled: true, BaseURL: "http://127.0.0.1:1"}, testLogger())

	// Must not panic or block beyond the timeout.
	bridge.PickupBooked(context.Background(), uuid.New(), "TRK-2")
}
