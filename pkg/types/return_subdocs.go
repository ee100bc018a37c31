package types

import (
	"time"

	"github.com/google/uuid"
)

// PickupInfo is the jsonb pickup sub-document on a return.
type PickupInfo struct {
	ActiveShipmentID *uuid.UUID `json:"active_shipment_id,omitempty"`
	TrackingNumber   *string    `json:"tracking_number,omitempty"`
	Attempts         int        `json:"attempts"`
	LastFailureAt    *time.Time `json:"last_failure_at,omitempty"`
	LastError        *string    `json:"last_error,omitempty"`
}

// RefundInfo is the jsonb refund sub-document on a return.
type RefundInfo struct {
	RefundID *uuid.UUID `json:"refund_id,omitempty"`
	Method   string     `json:"method,omitempty"`
	IssuedAt *time.Time `json:"issued_at,omitempty"`
}

// ReceiptInfo records the seller-receipt evidence a refund is gated on.
type ReceiptInfo struct {
	ConfirmedBy uuid.UUID `json:"confirmed_by"`
	Source      string    `json:"source"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// InspectionInfo is the jsonb inspection sub-document on a return.
type InspectionInfo struct {
	Result      string    `json:"result"`
	Notes       *string   `json:"notes,omitempty"`
	InspectedBy uuid.UUID `json:"inspected_by"`
	InspectedAt time.Time `json:"inspected_at"`
}

// DisputeInfo is the jsonb dispute sub-document on a return.
type DisputeInfo struct {
	OpenedBy uuid.UUID  `json:"opened_by"`
	Reason   string     `json:"reason"`
	OpenedAt time.Time  `json:"opened_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

// SLAInfo stamps the deadline for the current stage of a return.
type SLAInfo struct {
	Stage     string    `json:"stage"`
	DueAt     time.Time `json:"due_at"`
	StampedAt time.Time `json:"stamped_at"`
}

// HistoryEntry is one append-only audit line on a return.
type HistoryEntry struct {
	From        string    `json:"from"`
	To          string    `json:"to"`
	ActorRole   string    `json:"actor_role"`
	ActorUserID uuid.UUID `json:"actor_user_id"`
	Note        *string   `json:"note,omitempty"`
	At          time.Time `json:"at"`
}

// HistoryEntries is the jsonb history array on a return.
type HistoryEntries []HistoryEntry

// ShipmentEvent logs a partner callback or local status change on a shipment.
type ShipmentEvent struct {
	Kind    string    `json:"kind"`
	Payload string    `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// ShipmentEvents is the jsonb events array on a shipment.
type ShipmentEvents []ShipmentEvent

// UUIDList serializes a list of ids as a jsonb array.
type UUIDList []uuid.UUID
