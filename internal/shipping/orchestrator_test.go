package shipping

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/returns-engine/internal/returns"
	"github.com/angelmondragon/returns-engine/pkg/db/models"
	"github.com/angelmondragon/returns-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/returns-engine/pkg/errors"
	"github.com/angelmondragon/returns-engine/pkg/logger"
	"github.com/angelmondragon/returns-engine/pkg/types"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeShipmentsRepo struct {
	byKey    map[string]*models.ReturnShipment
	failures []*models.BookingFailure
}

func newFakeShipmentsRepo() *fakeShipmentsRepo {
	return &fakeShipmentsRepo{byKey: map[string]*models.ReturnShipment{}}
}

func (f *fakeShipmentsRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeShipmentsRepo) Create(ctx context.Context, shipment *models.ReturnShipment) error {
	if _, ok := f.byKey[shipment.IdempotencyKey]; ok {
		return fmt.Errorf(`duplicate key value violates unique constraint "return_shipments_idempotency_key_key"`)
	}
	shipment.ID = uuid.New()
	copied := *shipment
	f.byKey[shipment.IdempotencyKey] = &copied
	return nil
}

func (f *fakeShipmentsRepo) FindByIdempotencyKey(ctx context.Context, key string) (*models.ReturnShipment, error) {
	shipment, ok := f.byKey[key]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *shipment
	return &copied, nil
}

func (f *fakeShipmentsRepo) FindActiveByReturnID(ctx context.Context, returnID uuid.UUID) (*models.ReturnShipment, error) {
	for _, shipment := range f.byKey {
		if shipment.ReturnID == returnID && shipment.IsActive {
			copied := *shipment
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeShipmentsRepo) MaxAttempt(ctx context.Context, returnID uuid.UUID) (int, error) {
	max := 0
	for _, shipment := range f.byKey {
		if shipment.ReturnID == returnID && shipment.Attempt > max {
			max = shipment.Attempt
		}
	}
	return max, nil
}

func (f *fakeShipmentsRepo) find(id uuid.UUID) *models.ReturnShipment {
	for _, shipment := range f.byKey {
		if shipment.ID == id {
			return shipment
		}
	}
	return nil
}

func (f *fakeShipmentsRepo) MarkBooked(ctx context.Context, shipmentID uuid.UUID, trackingNumber, partnerShipmentID string) error {
	if shipment := f.find(shipmentID); shipment != nil {
		shipment.Status = enums.ShipmentStatusBooked
		shipment.TrackingNumber = &trackingNumber
		shipment.PartnerShipmentID = &partnerShipmentID
	}
	return nil
}

func (f *fakeShipmentsRepo) MarkFailed(ctx context.Context, shipmentID uuid.UUID, failure string) error {
	if shipment := f.find(shipmentID); shipment != nil {
		shipment.Status = enums.ShipmentStatusFailed
		shipment.IsActive = false
		shipment.LastError = &failure
	}
	return nil
}

func (f *fakeShipmentsRepo) Deactivate(ctx context.Context, shipmentID uuid.UUID) error {
	if shipment := f.find(shipmentID); shipment != nil {
		shipment.IsActive = false
	}
	return nil
}

func (f *fakeShipmentsRepo) AppendEvent(ctx context.Context, shipmentID uuid.UUID, event types.ShipmentEvent) error {
	if shipment := f.find(shipmentID); shipment != nil {
		shipment.Events = append(shipment.Events, event)
	}
	return nil
}

func (f *fakeShipmentsRepo) RecordFailure(ctx context.Context, failure *models.BookingFailure) error {
	f.failures = append(f.failures, failure)
	return nil
}

// fakeReturnsRepo mirrors the conditional-update behavior the orchestrator
// relies on.
type fakeReturnsRepo struct {
	ret     *models.Return
	updates []map[string]any
}

func (f *fakeReturnsRepo) WithTx(tx *gorm.DB) returns.Repository { return f }

func (f *fakeReturnsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Return, error) {
	if f.ret == nil || f.ret.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *f.ret
	return &copied, nil
}

func (f *fakeReturnsRepo) FindByIDWithItems(ctx context.Context, id uuid.UUID) (*models.Return, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeReturnsRepo) ApplyStatusUpdate(ctx context.Context, params returns.StatusUpdateParams) (int64, error) {
	if f.ret == nil || f.ret.ID != params.ReturnID || f.ret.Status.String() != params.Expected || !f.ret.IsActive {
		return 0, nil
	}
	f.ret.Status = enums.ReturnStatus(params.Next)
	f.ret.Version++
	f.ret.History = append(f.ret.History, params.Entry)
	return 1, nil
}

func (f *fakeReturnsRepo) UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	f.updates = append(f.updates, updates)
	return nil
}

func (f *fakeReturnsRepo) UpdateItemApproval(ctx context.Context, itemID uuid.UUID, qtyApproved int, snapshotAt time.Time) error {
	return nil
}

type scriptedPartner struct {
	calls     int
	responses []*BookingResponse
	errs      []error
}

func (s *scriptedPartner) Partner() string { return "swiftship" }

func (s *scriptedPartner) BookPickup(ctx context.Context, req BookingRequest) (*BookingResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return &BookingResponse{TrackingNumber: "TRK-DEFAULT", ShipmentID: "SHP-DEFAULT"}, nil
}

type recordingDispatch struct {
	booked []string
}

func (r *recordingDispatch) PickupBooked(ctx context.Context, returnID uuid.UUID, trackingNumber string) {
	r.booked = append(r.booked, trackingNumber)
}

type recordingNotifier struct {
	topics []string
}

func (r *recordingNotifier) NotifyCustomer(ctx context.Context, customerID, returnID uuid.UUID, topic, body string) {
	r.topics = append(r.topics, topic)
}

func approvedReturn() *models.Return {
	return &models.Return{
		ID:           uuid.New(),
		ReturnNumber: "RET-2001",
		OrderNumber:  "ORD-9001",
		SellerID:     uuid.New(),
		CustomerID:   uuid.New(),
		Status:       enums.ReturnStatusApprovedAwaitingPickup,
		Currency:     "USD",
		IsActive:     true,
	}
}

func pickupAddress() types.Address {
	return types.Address{
		Name:       "Warehouse A",
		Line1:      "500 Dock St",
		City:       "Oakland",
		State:      "CA",
		PostalCode: "94607",
	}
}

type orchestratorFixture struct {
	orch      *Orchestrator
	shipments *fakeShipmentsRepo
	returns   *fakeReturnsRepo
	partner   *scriptedPartner
	dispatch  *recordingDispatch
	notifier  *recordingNotifier
}

func newOrchestratorFixture(t *testing.T, ret *models.Return, partner *scriptedPartner) *orchestratorFixture {
	t.Helper()

	shipments := newFakeShipmentsRepo()
	returnsRepo := &fakeReturnsRepo{ret: ret}
	dispatch := &recordingDispatch{}
	notifier := &recordingNotifier{}

	executor, err := returns.NewExecutor(returns.NewRegistry(), nil)
	require.NoError(t, err)

	log := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	orch, err := NewOrchestrator(fakeTxRunner{}, shipments, returnsRepo, executor, partner, dispatch, notifier, log, nil)
	require.NoError(t, err)

	return &orchestratorFixture{
		orch:      orch,
		shipments: shipments,
		returns:   returnsRepo,
		partner:   partner,
		dispatch:  dispatch,
		notifier:  notifier,
	}
}

func systemActor() returns.Actor {
	return returns.Actor{Role: enums.ActorRoleSystem, UserID: uuid.New()}
}

func TestBookPickupSuccess(t *testing.T) {
	ret := approvedReturn()
	partner := &scriptedPartner{responses: []*BookingResponse{{TrackingNumber: "TRK-1", ShipmentID: "SHP-1"}}}
	fx := newOrchestratorFixture(t, ret, partner)

	result, err := fx.orch.BookPickup(context.Background(), BookPickupInput{
		ReturnID:      ret.ID,
		PickupAddress: pickupAddress(),
		Actor:         systemActor(),
	})
	require.NoError(t, err)

	assert.Equal(t, enums.ShipmentStatusBooked, result.Shipment.Status)
	assert.Equal(t, 1, result.Shipment.Attempt)
	require.NotNil(t, result.Shipment.TrackingNumber)
	assert.Equal(t, "TRK-1", *result.Shipment.TrackingNumber)
	assert.Equal(t, enums.ReturnStatusPickupScheduled, result.Return.Status)
	assert.Equal(t, []string{"TRK-1"}, fx.dispatch.booked)
	assert.Equal(t, []string{"pickup.booked"}, fx.notifier.topics)

	key := BookingIdempotencyKey(ret.ID, "swiftship", 1)
	stored, err := fx.shipments.FindByIdempotencyKey(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, enums.ShipmentStatusBooked, stored.Status)
}

func TestBookPickupPartnerFailureLeavesStatusUnchanged(t *testing.T) {
	ret := approvedReturn()
	upstream := pkgerrors.Wrap(pkgerrors.CodeUpstream, &PartnerError{StatusCode: 504, Body: []byte(`{"error":"gateway timeout"}`)}, "shipping partner unreachable")
	partner := &scriptedPartner{errs: []error{upstream}}
	fx := newOrchestratorFixture(t, ret, partner)

	_, err := fx.orch.BookPickup(context.Background(), BookPickupInput{
		ReturnID:      ret.ID,
		PickupAddress: pickupAddress(),
		Actor:         systemActor(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUpstream))

	assert.Equal(t, enums.ReturnStatusApprovedAwaitingPickup, fx.returns.ret.Status)

	key := BookingIdempotencyKey(ret.ID, "swiftship", 1)
	stored, findErr := fx.shipments.FindByIdempotencyKey(context.Background(), key)
	require.NoError(t, findErr)
	assert.Equal(t, enums.ShipmentStatusFailed, stored.Status)
	assert.False(t, stored.IsActive)

	require.Len(t, fx.shipments.failures, 1)
	assert.Equal(t, 1, fx.shipments.failures[0].Attempt)
	assert.NotEmpty(t, fx.shipments.failures[0].Response)
	assert.Empty(t, fx.dispatch.booked)
	assert.Empty(t, fx.notifier.topics)
}

func TestBookPickupRetryAfterFailureUsesNewAttempt(t *testing.T) {
	ret := approvedReturn()
	upstream := pkgerrors.New(pkgerrors.CodeUpstream, "shipping partner unreachable")
	partner := &scriptedPartner{
		errs:      []error{upstream, nil},
		responses: []*BookingResponse{nil, {TrackingNumber: "TRK-2", ShipmentID: "SHP-2"}},
	}
	fx := newOrchestratorFixture(t, ret, partner)

	input := BookPickupInput{ReturnID: ret.ID, PickupAddress: pickupAddress(), Actor: systemActor()}

	_, err := fx.orch.BookPickup(context.Background(), input)
	require.Error(t, err)

	result, err := fx.orch.BookPickup(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Shipment.Attempt)
	assert.Equal(t, enums.ReturnStatusPickupScheduled, result.Return.Status)
}

func TestBookPickupDuplicateKeySkipsPartnerCall(t *testing.T) {
	ret := approvedReturn()
	partner := &scriptedPartner{}
	fx := newOrchestratorFixture(t, ret, partner)

	key := BookingIdempotencyKey(ret.ID, "swiftship", 1)
	tracking := "TRK-EXISTING"
	fx.shipments.byKey[key] = &models.ReturnShipment{
		ID:             uuid.New(),
		ReturnID:       ret.ID,
		Partner:        "swiftship",
		Attempt:        1,
		IdempotencyKey: key,
		IsActive:       true,
		Status:         enums.ShipmentStatusBooked,
		TrackingNumber: &tracking,
	}

	result, err := fx.orch.BookPickup(context.Background(), BookPickupInput{
		ReturnID:      ret.ID,
		PickupAddress: pickupAddress(),
		Actor:         systemActor(),
	})
	require.NoError(t, err)
	assert.True(t, result.Idempotent)
	assert.Zero(t, partner.calls)
	assert.Equal(t, enums.ReturnStatusPickupScheduled, result.Return.Status)
	assert.Empty(t, fx.notifier.topics)
}

func TestBookPickupUnauthorizedRoleNeverCallsPartner(t *testing.T) {
	ret := approvedReturn()
	fx := newOrchestratorFixture(t, ret, &scriptedPartner{})

	_, err := fx.orch.BookPickup(context.Background(), BookPickupInput{
		ReturnID:      ret.ID,
		PickupAddress: pickupAddress(),
		Actor:         returns.Actor{Role: enums.ActorRoleCustomer, UserID: uuid.New()},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeIllegalTransition))

	assert.Zero(t, fx.partner.calls)
	assert.Empty(t, fx.shipments.byKey)
	assert.Equal(t, enums.ReturnStatusApprovedAwaitingPickup, fx.returns.ret.Status)
}

func TestBookPickupWrongStatus(t *testing.T) {
	ret := approvedReturn()
	ret.Status = enums.ReturnStatusUnderReview
	fx := newOrchestratorFixture(t, ret, &scriptedPartner{})

	_, err := fx.orch.BookPickup(context.Background(), BookPickupInput{
		ReturnID:      ret.ID,
		PickupAddress: pickupAddress(),
		Actor:         systemActor(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeIllegalTransition))
	assert.Zero(t, fx.partner.calls)
}

func TestRescheduleRequiresForceWhenScheduled(t *testing.T) {
	ret := approvedReturn()
	ret.Status = enums.ReturnStatusPickupScheduled
	fx := newOrchestratorFixture(t, ret, &scriptedPartner{})

	_, err := fx.orch.Reschedule(context.Background(), RescheduleInput{
		ReturnID:      ret.ID,
		PickupAddress: pickupAddress(),
		Actor:         systemActor(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePrecondition))
}

func TestRescheduleWithForceDeactivatesPrevious(t *testing.T) {
	ret := approvedReturn()
	ret.Status = enums.ReturnStatusPickupScheduled
	partner := &scriptedPartner{responses: []*BookingResponse{{TrackingNumber: "TRK-3", ShipmentID: "SHP-3"}}}
	fx := newOrchestratorFixture(t, ret, partner)

	oldKey := BookingIdempotencyKey(ret.ID, "swiftship", 1)
	fx.shipments.byKey[oldKey] = &models.ReturnShipment{
		ID:             uuid.New(),
		ReturnID:       ret.ID,
		Partner:        "swiftship",
		Attempt:        1,
		IdempotencyKey: oldKey,
		IsActive:       true,
		Status:         enums.ShipmentStatusBooked,
	}

	result, err := fx.orch.Reschedule(context.Background(), RescheduleInput{
		ReturnID:      ret.ID,
		PickupAddress: pickupAddress(),
		Force:         true,
		Actor:         systemActor(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Shipment.Attempt)
	assert.False(t, fx.shipments.byKey[oldKey].IsActive)

	// Status stays pickup_scheduled; only the pickup sub-document moves.
	assert.Equal(t, enums.ReturnStatusPickupScheduled, fx.returns.ret.Status)
	require.NotEmpty(t, fx.returns.updates)
}

func TestRescheduleFromClosedReturn(t *testing.T) {
	ret := approvedReturn()
	ret.IsActive = false
	fx := newOrchestratorFixture(t, ret, &scriptedPartner{})

	_, err := fx.orch.Reschedule(context.Background(), RescheduleInput{
		ReturnID:      ret.ID,
		PickupAddress: pickupAddress(),
		Actor:         systemActor(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePrecondition))
}
