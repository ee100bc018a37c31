package returns

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/returns-engine/internal/refunds"
	"github.com/angelmondragon/returns-engine/pkg/db/models"
	"github.com/angelmondragon/returns-engine/pkg/enums"
)

// Decision is the reviewer's verdict on a return request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// IsValid reports whether the decision is a known verdict.
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// ItemApproval sets the approved quantity for one return item.
type ItemApproval struct {
	ItemID      uuid.UUID `json:"item_id" validate:"required"`
	QtyApproved int       `json:"qty_approved" validate:"gte=0"`
}

// DecideInput resolves a return under review into approved or rejected.
type DecideInput struct {
	ReturnID  uuid.UUID
	Decision  Decision
	Approvals []ItemApproval
	Note      *string
	Actor     Actor
}

// ConfirmReceiptInput records seller-receipt evidence on a return.
type ConfirmReceiptInput struct {
	ReturnID uuid.UUID
	Note     *string
	Actor    Actor
}

// InspectionInput records the seller's post-receipt inspection verdict.
type InspectionInput struct {
	ReturnID uuid.UUID
	Decision Decision
	Notes    *string
	Actor    Actor
}

// IssueRefundInput queues the refund for an inspection-approved return.
type IssueRefundInput struct {
	ReturnID        uuid.UUID
	WalletRequested bool
	Actor           Actor
}

// CompleteRefundInput finalizes a queued refund.
type CompleteRefundInput struct {
	ReturnID uuid.UUID
	Actor    Actor
}

// ShippingEventInput is one partner webhook event mapped onto the lifecycle.
type ShippingEventInput struct {
	ReturnID       uuid.UUID
	EventType      string
	TrackingNumber *string
	OccurredAt     time.Time
	Actor          Actor
}

// Partner webhook event types the engine understands.
const (
	ShippingEventPickedUp          = "picked_up"
	ShippingEventReceivedAtHub     = "received_at_hub"
	ShippingEventDeliveredToSeller = "delivered_to_seller"
)

// IssueRefundResult carries the queued refund alongside the updated return.
// Idempotent is set when the refund already existed for this return.
type IssueRefundResult struct {
	Return     *models.Return  `json:"return"`
	Refund     *models.Refund  `json:"refund"`
	Idempotent bool            `json:"idempotent"`
	Amounts    refunds.Amounts `json:"amounts"`
}

// GetResult is the read view of a return with its refund, when one exists.
type GetResult struct {
	Return *models.Return `json:"return"`
	Refund *models.Refund `json:"refund,omitempty"`
}

// SystemActorID identifies transitions triggered by the engine itself
// (webhooks, orchestration) in the audit history.
var SystemActorID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("returns-engine/system"))

// SystemActor is the actor used for webhook driven transitions.
var SystemActor = Actor{Role: enums.ActorRoleSystem, UserID: SystemActorID}
