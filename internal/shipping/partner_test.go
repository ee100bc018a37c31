package shipping

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/returns-engine/pkg/config"
	pkgerrors "github.com/angelmondragon/returns-engine/pkg/errors"
	"github.com/angelmondragon/returns-engine/pkg/logger"
	"github.com/angelmondragon/returns-engine/pkg/types"
)

func partnerTestClient(t *testing.T, baseURL string, maxRetries int) *Client {
	t.Helper()
	client, err := NewClient(config.ShippingConfig{
		BaseURL:       baseURL,
		InternalToken: "secret-token",
		Partner:       "swiftship",
		Timeout:       2 * time.Second,
		MaxRetries:    maxRetries,
	}, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}), nil)
	require.NoError(t, err)
	return client
}

func bookingRequest() BookingRequest {
	return BookingRequest{
		IdempotencyKey: "return:abc:partner:swiftship:attempt:1",
		ReturnNumber:   "RET-2001",
		OrderNumber:    "ORD-9001",
		PickupAddress: types.Address{
			Name:       "Warehouse A",
			Line1:      "500 Dock St",
			City:       "Oakland",
			PostalCode: "94607",
		},
		ParcelCount: 1,
	}
}

func TestBookPickupSendsTokenAndPayload(t *testing.T) {
	var got BookingRequest
	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/shipments/book", r.URL.Path)
		gotToken = r.Header.Get("x-internal-token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(BookingResponse{TrackingNumber: "TRK-77", ShipmentID: "SHP-77"})
	}))
	defer server.Close()

	client := partnerTestClient(t, server.URL, 0)
	resp, err := client.BookPickup(context.Background(), bookingRequest())
	require.NoError(t, err)

	assert.Equal(t, "TRK-77", resp.TrackingNumber)
	assert.Equal(t, "SHP-77", resp.ShipmentID)
	assert.Equal(t, "secret-token", gotToken)
	assert.Equal(t, "return:abc:partner:swiftship:attempt:1", got.IdempotencyKey)
	assert.Equal(t, "Oakland", got.PickupAddress.City)
}

func TestBookPickupRetriesTransient5xx(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(BookingResponse{TrackingNumber: "TRK-88", ShipmentID: "SHP-88"})
	}))
	defer server.Close()

	client := partnerTestClient(t, server.URL, 2)
	resp, err := client.BookPickup(context.Background(), bookingRequest())
	require.NoError(t, err)
	assert.Equal(t, "TRK-88", resp.TrackingNumber)
	assert.Equal(t, 2, calls)
}

func TestBookPickupTerminal4xxNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"zone not served"}`))
	}))
	defer server.Close()

	client := partnerTestClient(t, server.URL, 3)
	_, err := client.BookPickup(context.Background(), bookingRequest())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUpstream))
	assert.Equal(t, 1, calls)

	snapshot := ResponseSnapshot(err)
	require.NotEmpty(t, snapshot)
	assert.JSONEq(t, `{"error":"zone not served"}`, string(snapshot))
}

func TestBookPickupUnreachableHost(t *testing.T) {
	client := partnerTestClient(t, "http://127.0.0.1:1", 0)
	_, err := client.BookPickup(context.Background(), bookingRequest())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUpstream))
}

func TestBookPickupMissingTrackingNumber(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := partnerTestClient(t, server.URL, 0)
	_, err := client.BookPickup(context.Background(), bookingRequest())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUpstream))
}

func TestBookPickupValidatesInput(t *testing.T) {
	client := partnerTestClient(t, "http://localhost:0", 0)

	req := bookingRequest()
	req.IdempotencyKey = ""
	_, err := client.BookPickup(context.Background(), req)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	req = bookingRequest()
	req.PickupAddress.City = ""
	_, err = client.BookPickup(context.Background(), req)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestNewClientValidatesConfig(t *testing.T) {
	log := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	_, err := NewClient(config.ShippingConfig{InternalToken: "x"}, log, nil)
	require.Error(t, err)

	_, err = NewClient(config.ShippingConfig{BaseURL: "http://partner"}, log, nil)
	require.Error(t, err)

	_, err = NewClient(config.ShippingConfig{BaseURL: "http://partner", InternalToken: "x"}, nil, nil)
	require.Error(t, err)
}
