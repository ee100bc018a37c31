package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/returns-engine/pkg/enums"
)

// Invoice is the read model for the sale invoice. The commission snapshot
// captured here at sale time drives later reversals regardless of rate
// changes since.
type Invoice struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID  uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	SellerID uuid.UUID `gorm:"column:seller_id;type:uuid;not null;index"`

	SubtotalCents int `gorm:"column:subtotal_cents;not null"`

	CommissionRateType    enums.CommissionRateType `gorm:"column:commission_rate_type;type:commission_rate_type"`
	CommissionRate        decimal.Decimal          `gorm:"column:commission_rate;type:numeric(12,4)"`
	CommissionAmountCents int                      `gorm:"column:commission_amount_cents;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides the default pluralization.
func (Invoice) TableName() string { return "invoices" }

// HasCommissionSnapshot reports whether the invoice captured commission data.
func (i Invoice) HasCommissionSnapshot() bool {
	return i.CommissionRateType.IsValid()
}
