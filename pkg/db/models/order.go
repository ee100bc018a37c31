package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/returns-engine/pkg/enums"
)

// Order is the read model for the original sale. The returns engine only
// consumes it; order lifecycle lives elsewhere.
type Order struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber string    `gorm:"column:order_number;not null"`
	CustomerID  uuid.UUID `gorm:"column:customer_id;type:uuid;not null"`
	SellerID    uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`

	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null"`
	Currency      string              `gorm:"column:currency;type:text;not null;default:'USD'"`
	TotalCents    int                 `gorm:"column:total_cents;not null"`

	// CODSettled reports whether collected COD funds were already paid out
	// to the seller; it decides which adjustment entry a COD refund posts.
	CODSettled bool `gorm:"column:cod_settled;not null;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides the default pluralization.
func (Order) TableName() string { return "orders" }
