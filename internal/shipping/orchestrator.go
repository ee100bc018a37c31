package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/returns-engine/internal/returns"
	"github.com/angelmondragon/returns-engine/pkg/db"
	"github.com/angelmondragon/returns-engine/pkg/db/models"
	"github.com/angelmondragon/returns-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/returns-engine/pkg/errors"
	"github.com/angelmondragon/returns-engine/pkg/logger"
	"github.com/angelmondragon/returns-engine/pkg/metrics"
	"github.com/angelmondragon/returns-engine/pkg/types"
)

// txRunner is the unit-of-work boundary. *db.Client satisfies it.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DispatchNotifier pushes last-mile assignment state to the dispatch
// service. Implementations are best effort and never return errors.
type DispatchNotifier interface {
	PickupBooked(ctx context.Context, returnID uuid.UUID, trackingNumber string)
}

// BookingNotifier records customer-facing notification rows. Implementations
// are fire and forget.
type BookingNotifier interface {
	NotifyCustomer(ctx context.Context, customerID, returnID uuid.UUID, topic, body string)
}

// BookPickupInput requests a pickup booking for an approved return.
type BookPickupInput struct {
	ReturnID      uuid.UUID
	PickupAddress types.Address
	Actor         returns.Actor
}

// RescheduleInput requests a replacement booking. Force permits rescheduling
// a pickup that is already scheduled.
type RescheduleInput struct {
	ReturnID      uuid.UUID
	PickupAddress types.Address
	Force         bool
	Actor         returns.Actor
}

// BookingResult reports the booking and the possibly-updated return.
type BookingResult struct {
	Shipment   *models.ReturnShipment `json:"shipment"`
	Return     *models.Return         `json:"return,omitempty"`
	Idempotent bool                   `json:"idempotent"`
}

// Orchestrator coordinates partner bookings with the return lifecycle. The
// partner call runs outside any database transaction; bookings are recorded
// before the call and reconciled after, so a timeout never leaves the return
// in an inconsistent status.
type Orchestrator struct {
	runner      txRunner
	shipments   Repository
	returnsRepo returns.Repository
	executor    *returns.Executor
	partner     PartnerClient
	dispatch    DispatchNotifier
	notifier    BookingNotifier
	log         *logger.Logger
	metrics     *metrics.EngineMetrics
}

// NewOrchestrator wires the pickup orchestrator. dispatch and notifier may
// be nil.
func NewOrchestrator(
	runner txRunner,
	shipments Repository,
	returnsRepo returns.Repository,
	executor *returns.Executor,
	partner PartnerClient,
	dispatch DispatchNotifier,
	notifier BookingNotifier,
	log *logger.Logger,
	m *metrics.EngineMetrics,
) (*Orchestrator, error) {
	switch {
	case runner == nil:
		return nil, errors.New("tx runner required")
	case shipments == nil:
		return nil, errors.New("shipments repository required")
	case returnsRepo == nil:
		return nil, errors.New("returns repository required")
	case executor == nil:
		return nil, errors.New("transition executor required")
	case partner == nil:
		return nil, errors.New("partner client required")
	case log == nil:
		return nil, errors.New("logger required")
	}
	return &Orchestrator{
		runner:      runner,
		shipments:   shipments,
		returnsRepo: returnsRepo,
		executor:    executor,
		partner:     partner,
		dispatch:    dispatch,
		notifier:    notifier,
		log:         log,
		metrics:     m,
	}, nil
}

// BookPickup books the next pickup attempt for an approved return.
func (o *Orchestrator) BookPickup(ctx context.Context, input BookPickupInput) (*BookingResult, error) {
	ret, err := o.loadReturn(ctx, input.ReturnID)
	if err != nil {
		return nil, err
	}
	if ret.Status != enums.ReturnStatusApprovedAwaitingPickup {
		return nil, pkgerrors.New(pkgerrors.CodeIllegalTransition, "pickup can only be booked for approved returns").
			WithDetails(map[string]string{"status": ret.Status.String()})
	}
	return o.book(ctx, ret, input.PickupAddress, input.Actor, true)
}

// Reschedule deactivates the current booking and books a new attempt. It is
// permitted from approved_awaiting_pickup, or from pickup_scheduled with the
// force flag.
func (o *Orchestrator) Reschedule(ctx context.Context, input RescheduleInput) (*BookingResult, error) {
	ret, err := o.loadReturn(ctx, input.ReturnID)
	if err != nil {
		return nil, err
	}

	switch ret.Status {
	case enums.ReturnStatusApprovedAwaitingPickup:
	case enums.ReturnStatusPickupScheduled:
		if !input.Force {
			return nil, pkgerrors.New(pkgerrors.CodePrecondition, "pickup already scheduled, pass force to reschedule")
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeIllegalTransition, "return is not awaiting pickup").
			WithDetails(map[string]string{"status": ret.Status.String()})
	}

	if active, err := o.shipments.FindActiveByReturnID(ctx, ret.ID); err == nil {
		if err := o.shipments.Deactivate(ctx, active.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate previous booking")
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active booking")
	}

	needTransition := ret.Status == enums.ReturnStatusApprovedAwaitingPickup
	return o.book(ctx, ret, input.PickupAddress, input.Actor, needTransition)
}

func (o *Orchestrator) loadReturn(ctx context.Context, returnID uuid.UUID) (*models.Return, error) {
	if returnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}
	ret, err := o.returnsRepo.FindByID(ctx, returnID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return")
	}
	if !ret.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "return is closed")
	}
	return ret, nil
}

// book runs the booking protocol: persist a CREATED row, call the partner
// outside any transaction, then reconcile the outcome.
func (o *Orchestrator) book(ctx context.Context, ret *models.Return, address types.Address, actor returns.Actor, needTransition bool) (*BookingResult, error) {
	address = address.Normalized()
	if err := address.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pickup address")
	}

	// The actor must be allowed on the booking edge before anything leaves
	// this process; a partner booking cannot be rolled back.
	if err := o.executor.Authorize(enums.ReturnStatusApprovedAwaitingPickup, enums.ReturnStatusPickupScheduled, actor); err != nil {
		return nil, err
	}

	// An active row means a prior attempt is in flight or already booked:
	// resume it rather than opening a new one, so the idempotency key stays
	// stable across retries.
	shipment, err := o.shipments.FindActiveByReturnID(ctx, ret.ID)
	switch {
	case err == nil:
		ctx = o.bookingCtx(ctx, shipment)
		if shipment.Status == enums.ShipmentStatusBooked {
			o.log.Info(ctx, "reusing booked shipment for duplicate request")
			return o.finalize(ctx, ret, shipment, actor, needTransition, true)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		shipment, err = o.openAttempt(ctx, ret, address)
		if err != nil {
			return nil, err
		}
		ctx = o.bookingCtx(ctx, shipment)
		if shipment.Status == enums.ShipmentStatusBooked {
			o.log.Info(ctx, "reusing booked shipment for duplicate request")
			return o.finalize(ctx, ret, shipment, actor, needTransition, true)
		}
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active booking")
	}

	resp, err := o.partner.BookPickup(ctx, BookingRequest{
		IdempotencyKey: shipment.IdempotencyKey,
		ReturnNumber:   ret.ReturnNumber,
		OrderNumber:    ret.OrderNumber,
		PickupAddress:  address,
		ZoneHint:       address.ZoneHint,
		ParcelCount:    1,
	})
	if err != nil {
		return nil, o.recordFailure(ctx, ret, shipment, err)
	}

	if err := o.shipments.MarkBooked(ctx, shipment.ID, resp.TrackingNumber, resp.ShipmentID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark shipment booked")
	}
	_ = o.shipments.AppendEvent(ctx, shipment.ID, types.ShipmentEvent{
		Kind:    "booked",
		Payload: fmt.Sprintf("tracking %s", resp.TrackingNumber),
		At:      time.Now().UTC(),
	})
	shipment.Status = enums.ShipmentStatusBooked
	shipment.TrackingNumber = &resp.TrackingNumber
	shipment.PartnerShipmentID = &resp.ShipmentID

	o.metrics.IncBooking(o.partner.Partner(), "booked")
	return o.finalize(ctx, ret, shipment, actor, needTransition, false)
}

// openAttempt persists the next CREATED attempt. The row exists before the
// network call, so a crash mid-call still leaves an auditable attempt. A
// unique-violation on the deterministic key means a concurrent caller opened
// the same attempt; that row is reused.
func (o *Orchestrator) openAttempt(ctx context.Context, ret *models.Return, address types.Address) (*models.ReturnShipment, error) {
	attempt, err := o.shipments.MaxAttempt(ctx, ret.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve attempt counter")
	}
	attempt++

	shipment := &models.ReturnShipment{
		ReturnID:       ret.ID,
		Partner:        o.partner.Partner(),
		Attempt:        attempt,
		IdempotencyKey: BookingIdempotencyKey(ret.ID, o.partner.Partner(), attempt),
		IsActive:       true,
		Status:         enums.ShipmentStatusCreated,
		PickupAddress:  &address,
	}
	if err := o.shipments.Create(ctx, shipment); err != nil {
		if !db.IsUniqueViolation(err, "return_shipments_idempotency_key_key") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record booking attempt")
		}
		existing, findErr := o.shipments.FindByIdempotencyKey(ctx, shipment.IdempotencyKey)
		if findErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load booking after conflict")
		}
		return existing, nil
	}
	return shipment, nil
}

func (o *Orchestrator) bookingCtx(ctx context.Context, shipment *models.ReturnShipment) context.Context {
	return o.log.WithFields(ctx, map[string]any{
		"return_id":       shipment.ReturnID.String(),
		"attempt":         shipment.Attempt,
		"idempotency_key": shipment.IdempotencyKey,
	})
}

// finalize moves the return to pickup_scheduled (when needed) and stamps the
// pickup sub-document. The booking row stays authoritative: if the CAS step
// fails after a confirmed partner booking, a retry reconciles without
// re-booking.
func (o *Orchestrator) finalize(ctx context.Context, ret *models.Return, shipment *models.ReturnShipment, actor returns.Actor, needTransition, idempotent bool) (*BookingResult, error) {
	pickup := types.PickupInfo{
		ActiveShipmentID: &shipment.ID,
		TrackingNumber:   shipment.TrackingNumber,
		Attempts:         shipment.Attempt,
	}
	pickupJSON, err := json.Marshal(pickup)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal pickup info")
	}
	pickupExpr := gorm.Expr("?::jsonb", string(pickupJSON))

	result := &BookingResult{Shipment: shipment, Idempotent: idempotent}

	if !needTransition {
		if err := o.returnsRepo.UpdateFields(ctx, ret.ID, map[string]any{"pickup": pickupExpr}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp pickup info")
		}
		updated, err := o.returnsRepo.FindByID(ctx, ret.ID)
		if err == nil {
			result.Return = updated
		}
		o.notifyDispatch(ctx, ret.ID, shipment)
		o.notifyBooked(ctx, ret, shipment, result.Idempotent)
		return result, nil
	}

	err = o.runner.WithTx(ctx, func(tx *gorm.DB) error {
		transition, txErr := o.executor.Transition(ctx, o.returnsRepo.WithTx(tx), returns.TransitionInput{
			ReturnID: ret.ID,
			Expected: enums.ReturnStatusApprovedAwaitingPickup,
			Next:     enums.ReturnStatusPickupScheduled,
			Actor:    actor,
			Extra:    map[string]any{"pickup": pickupExpr},
		})
		if txErr != nil {
			return txErr
		}
		result.Return = transition.Return
		result.Idempotent = result.Idempotent || transition.Idempotent
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.notifyDispatch(ctx, ret.ID, shipment)
	o.notifyBooked(ctx, ret, shipment, result.Idempotent)
	return result, nil
}

// recordFailure marks the attempt failed and appends the triage record. The
// return status is left unchanged so the caller can retry with a fresh
// attempt.
func (o *Orchestrator) recordFailure(ctx context.Context, ret *models.Return, shipment *models.ReturnShipment, cause error) error {
	o.metrics.IncBooking(o.partner.Partner(), "failed")

	msg := cause.Error()
	if err := o.shipments.MarkFailed(ctx, shipment.ID, msg); err != nil {
		o.log.Error(ctx, "failed to mark shipment failed", err)
	}
	if err := o.shipments.RecordFailure(ctx, &models.BookingFailure{
		ReturnID:   ret.ID,
		ShipmentID: shipment.ID,
		Partner:    shipment.Partner,
		Attempt:    shipment.Attempt,
		Error:      msg,
		Response:   ResponseSnapshot(cause),
	}); err != nil {
		o.log.Error(ctx, "failed to record booking failure", err)
	}

	now := time.Now().UTC()
	pickup := types.PickupInfo{
		Attempts:      shipment.Attempt,
		LastFailureAt: &now,
		LastError:     &msg,
	}
	if pickupJSON, err := json.Marshal(pickup); err == nil {
		if err := o.returnsRepo.UpdateFields(ctx, ret.ID, map[string]any{
			"pickup": gorm.Expr("?::jsonb", string(pickupJSON)),
		}); err != nil {
			o.log.Error(ctx, "failed to stamp pickup failure", err)
		}
	}

	return cause
}

func (o *Orchestrator) notifyBooked(ctx context.Context, ret *models.Return, shipment *models.ReturnShipment, idempotent bool) {
	if o.notifier == nil || idempotent || shipment.TrackingNumber == nil {
		return
	}
	o.notifier.NotifyCustomer(ctx, ret.CustomerID, ret.ID, "pickup.booked",
		fmt.Sprintf("pickup booked, tracking %s", *shipment.TrackingNumber))
}

func (o *Orchestrator) notifyDispatch(ctx context.Context, returnID uuid.UUID, shipment *models.ReturnShipment) {
	if o.dispatch == nil || shipment.TrackingNumber == nil {
		return
	}
	o.dispatch.PickupBooked(ctx, returnID, *shipment.TrackingNumber)
}

// BookingIdempotencyKey derives the deterministic per-attempt key.
func BookingIdempotencyKey(returnID uuid.UUID, partner string, attempt int) string {
	return fmt.Sprintf("return:%s:partner:%s:attempt:%d", returnID, partner, attempt)
}

func jsonEvent(event types.ShipmentEvent) (string, error) {
	payload, err := json.Marshal(types.ShipmentEvents{event})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
