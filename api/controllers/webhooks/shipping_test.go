package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalreturns "github.com/angelmondragon/returns-engine/internal/returns"
	pkgerrors "github.com/angelmondragon/returns-engine/pkg/errors"
)

type fakeShippingService struct {
	calls []internalreturns.ShippingEventInput
	err   error
}

func (f *fakeShippingService) ApplyShippingEvent(_ context.Context, input internalreturns.ShippingEventInput) (*internalreturns.TransitionResult, error) {
	f.calls = append(f.calls, input)
	if f.err != nil {
		return nil, f.err
	}
	return &internalreturns.TransitionResult{}, nil
}

type fakeGuard struct {
	seen    map[string]bool
	deleted []string
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{seen: map[string]bool{}}
}

func (f *fakeGuard) CheckAndMarkProcessed(_ context.Context, consumer, eventID string) (bool, error) {
	key := consumer + ":" + eventID
	if f.seen[key] {
		return true, nil
	}
	f.seen[key] = true
	return false, nil
}

func (f *fakeGuard) Delete(_ context.Context, consumer, eventID string) error {
	key := consumer + ":" + eventID
	delete(f.seen, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func postShippingEvent(t *testing.T, handler http.HandlerFunc, payload map[string]any, secret string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/shipping", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(shippingSignatureHeader, secret)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestShippingWebhookAppliesEvent(t *testing.T) {
	svc := &fakeShippingService{}
	handler := ShippingWebhook(svc, newFakeGuard(), "", nil)

	returnID := uuid.New()
	occurred := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	rec := postShippingEvent(t, handler, map[string]any{
		"event_id":        "evt-1",
		"event_type":      internalreturns.ShippingEventPickedUp,
		"return_id":       returnID.String(),
		"tracking_number": "TRK-100",
		"occurred_at":     occurred.Format(time.RFC3339),
	}, "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, svc.calls, 1)
	call := svc.calls[0]
	assert.Equal(t, returnID, call.ReturnID)
	assert.Equal(t, internalreturns.ShippingEventPickedUp, call.EventType)
	require.NotNil(t, call.TrackingNumber)
	assert.Equal(t, "TRK-100", *call.TrackingNumber)
	assert.True(t, call.OccurredAt.Equal(occurred))
	assert.Equal(t, internalreturns.SystemActorID, call.Actor.UserID)
}

func TestShippingWebhookDuplicateEventNotReprocessed(t *testing.T) {
	svc := &fakeShippingService{}
	guard := newFakeGuard()
	handler := ShippingWebhook(svc, guard, "", nil)

	payload := map[string]any{
		"event_id":   "evt-dup",
		"event_type": internalreturns.ShippingEventPickedUp,
		"return_id":  uuid.NewString(),
	}

	first := postShippingEvent(t, handler, payload, "")
	require.Equal(t, http.StatusOK, first.Code)

	second := postShippingEvent(t, handler, payload, "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Len(t, svc.calls, 1)
}

func TestShippingWebhookStaleEventAcknowledged(t *testing.T) {
	svc := &fakeShippingService{err: pkgerrors.New(pkgerrors.CodeIllegalTransition, "no edge from received_at_hub to picked_up")}
	guard := newFakeGuard()
	handler := ShippingWebhook(svc, guard, "", nil)

	rec := postShippingEvent(t, handler, map[string]any{
		"event_id":   "evt-stale",
		"event_type": internalreturns.ShippingEventPickedUp,
		"return_id":  uuid.NewString(),
	}, "")

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, guard.deleted)
}

func TestShippingWebhookFailureReleasesDedupeKey(t *testing.T) {
	svc := &fakeShippingService{err: pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")}
	guard := newFakeGuard()
	handler := ShippingWebhook(svc, guard, "", nil)

	payload := map[string]any{
		"event_id":   "evt-retry",
		"event_type": internalreturns.ShippingEventReceivedAtHub,
		"return_id":  uuid.NewString(),
	}

	first := postShippingEvent(t, handler, payload, "")
	require.Equal(t, http.StatusServiceUnavailable, first.Code)
	require.Len(t, guard.deleted, 1)

	// The partner retries and the event processes this time.
	svc.err = nil
	second := postShippingEvent(t, handler, payload, "")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Len(t, svc.calls, 2)
}

func TestShippingWebhookRejectsBadSignature(t *testing.T) {
	svc := &fakeShippingService{}
	handler := ShippingWebhook(svc, newFakeGuard(), "topsecret", nil)

	rec := postShippingEvent(t, handler, map[string]any{
		"event_id":   "evt-sig",
		"event_type": internalreturns.ShippingEventPickedUp,
		"return_id":  uuid.NewString(),
	}, "wrong")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.calls)
}

func TestShippingWebhookValidatesPayload(t *testing.T) {
	svc := &fakeShippingService{}
	handler := ShippingWebhook(svc, newFakeGuard(), "", nil)

	rec := postShippingEvent(t, handler, map[string]any{
		"event_id":   "evt-bad",
		"event_type": "",
		"return_id":  "not-a-uuid",
	}, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.calls)
}
