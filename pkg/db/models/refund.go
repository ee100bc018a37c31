package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/returns-engine/pkg/enums"
	"github.com/angelmondragon/returns-engine/pkg/types"
)

// Refund is the single financial refund for a return. The unique idempotency
// key (refund:return:<returnID>) enforces the 1:1 relationship.
type Refund struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReturnID       uuid.UUID `gorm:"column:return_id;type:uuid;not null;uniqueIndex:refunds_return_id_key"`
	IdempotencyKey string    `gorm:"column:idempotency_key;not null;uniqueIndex:refunds_idempotency_key_key"`

	ItemsSubtotalCents    int `gorm:"column:items_subtotal_cents;not null"`
	ShippingRefundCents   int `gorm:"column:shipping_refund_cents;not null;default:0"`
	TaxRefundCents        int `gorm:"column:tax_refund_cents;not null;default:0"`
	DiscountReversalCents int `gorm:"column:discount_reversal_cents;not null;default:0"`
	TotalCents            int `gorm:"column:total_cents;not null"`

	CommissionReversalCents int     `gorm:"column:commission_reversal_cents;not null;default:0"`
	CommissionNote          *string `gorm:"column:commission_note"`

	Currency string               `gorm:"column:currency;type:text;not null;default:'USD'"`
	Method   enums.RefundMethod   `gorm:"column:method;type:refund_method;not null"`
	Strategy enums.RefundStrategy `gorm:"column:strategy;type:refund_strategy;not null"`
	Status   enums.RefundState    `gorm:"column:status;type:refund_state;not null;default:'queued'"`

	PaymentContext json.RawMessage `gorm:"column:payment_context;type:jsonb"`
	LedgerEntryIDs types.UUIDList  `gorm:"column:ledger_entry_ids;type:jsonb;serializer:json"`

	IssuedAt    time.Time  `gorm:"column:issued_at;not null"`
	CompletedAt *time.Time `gorm:"column:completed_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralization.
func (Refund) TableName() string { return "refunds" }
