package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/returns-engine/pkg/enums"
	"github.com/angelmondragon/returns-engine/pkg/types"
)

// ReturnShipment is one pickup booking attempt with a shipping partner.
// At most one row per return has is_active=true; failed attempts stay for audit.
type ReturnShipment struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReturnID uuid.UUID `gorm:"column:return_id;type:uuid;not null;index"`

	Partner        string               `gorm:"column:partner;not null"`
	Attempt        int                  `gorm:"column:attempt;not null"`
	IdempotencyKey string               `gorm:"column:idempotency_key;not null;uniqueIndex:return_shipments_idempotency_key_key"`
	IsActive       bool                 `gorm:"column:is_active;not null;default:true"`
	Status         enums.ShipmentStatus `gorm:"column:status;type:shipment_status;not null;default:'created'"`

	PickupAddress     *types.Address       `gorm:"column:pickup_address;type:jsonb;serializer:json"`
	TrackingNumber    *string              `gorm:"column:tracking_number"`
	PartnerShipmentID *string              `gorm:"column:partner_shipment_id"`
	Events            types.ShipmentEvents `gorm:"column:events;type:jsonb;serializer:json"`
	LastError         *string              `gorm:"column:last_error"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralization.
func (ReturnShipment) TableName() string { return "return_shipments" }

// BookingFailure is an append-only triage record for a failed partner call.
type BookingFailure struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReturnID   uuid.UUID       `gorm:"column:return_id;type:uuid;not null;index"`
	ShipmentID uuid.UUID       `gorm:"column:shipment_id;type:uuid;not null"`
	Partner    string          `gorm:"column:partner;not null"`
	Attempt    int             `gorm:"column:attempt;not null"`
	Error      string          `gorm:"column:error;not null"`
	Response   json.RawMessage `gorm:"column:response;type:jsonb"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides the default pluralization.
func (BookingFailure) TableName() string { return "booking_failures" }
