package webhooks

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/returns-engine/api/responses"
	"github.com/angelmondragon/returns-engine/api/validators"
	internalreturns "github.com/angelmondragon/returns-engine/internal/returns"
	pkgerrors "github.com/angelmondragon/returns-engine/pkg/errors"
	"github.com/angelmondragon/returns-engine/pkg/logger"
)

const (
	shippingSignatureHeader = "X-Partner-Signature"
	shippingConsumer        = "shipping-webhook"
)

type ShippingEventService interface {
	ApplyShippingEvent(ctx context.Context, input internalreturns.ShippingEventInput) (*internalreturns.TransitionResult, error)
}

type shippingWebhookGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

type shippingEventPayload struct {
	EventID        string  `json:"event_id" validate:"required"`
	EventType      string  `json:"event_type" validate:"required"`
	ReturnID       string  `json:"return_id" validate:"required,uuid"`
	TrackingNumber *string `json:"tracking_number"`
	OccurredAt     *string `json:"occurred_at"`
}

// ShippingWebhook ingests parcel movement events from the shipping partner
// and maps them onto the return lifecycle. Duplicate deliveries of the same
// event id are acknowledged without reprocessing.
func ShippingWebhook(svc ShippingEventService, guard shippingWebhookGuard, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping event service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		if secret != "" {
			provided := r.Header.Get(shippingSignatureHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
				return
			}
		}

		var payload shippingEventPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		returnID, err := uuid.Parse(payload.ReturnID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid return id"))
			return
		}

		occurredAt := time.Now().UTC()
		if payload.OccurredAt != nil {
			parsed, err := time.Parse(time.RFC3339, *payload.OccurredAt)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid occurred_at timestamp"))
				return
			}
			occurredAt = parsed.UTC()
		}

		alreadyProcessed, err := guard.CheckAndMarkProcessed(ctx, shippingConsumer, payload.EventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		result, err := svc.ApplyShippingEvent(ctx, internalreturns.ShippingEventInput{
			ReturnID:       returnID,
			EventType:      payload.EventType,
			TrackingNumber: payload.TrackingNumber,
			OccurredAt:     occurredAt,
			Actor:          internalreturns.SystemActor,
		})
		if err != nil {
			// A replayed stale event lands as a conflict once the return has
			// moved on; acknowledge it so the partner stops retrying.
			if pkgerrors.HasCode(err, pkgerrors.CodeCASConflict) || pkgerrors.HasCode(err, pkgerrors.CodeIllegalTransition) {
				if logg != nil {
					logg.Warn(logg.WithReturnID(ctx, returnID.String()), fmt.Sprintf("shipping event %s ignored: %v", payload.EventType, err))
				}
				responses.WriteSuccess(w, nil)
				return
			}
			_ = guard.Delete(ctx, shippingConsumer, payload.EventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("shipping event %s applied to return %s", payload.EventType, returnID))
		}
		responses.WriteSuccess(w, result)
	}
}
