package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/returns-engine/pkg/enums"
	"github.com/angelmondragon/returns-engine/pkg/types"
)

// Return is one customer return request. Status moves forward only, through
// the CAS executor; the row is never deleted.
type Return struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReturnNumber string    `gorm:"column:return_number;not null;uniqueIndex"`
	OrderID      uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	OrderNumber  string    `gorm:"column:order_number;not null"`
	SellerID     uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`
	CustomerID   uuid.UUID `gorm:"column:customer_id;type:uuid;not null"`

	Status  enums.ReturnStatus `gorm:"column:status;type:return_status;not null;default:'pending'"`
	Version int64              `gorm:"column:version;not null;default:0"`

	Currency      string              `gorm:"column:currency;type:text;not null;default:'USD'"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null;default:'prepaid'"`

	Pickup     *types.PickupInfo     `gorm:"column:pickup;type:jsonb;serializer:json"`
	Refund     *types.RefundInfo     `gorm:"column:refund;type:jsonb;serializer:json"`
	Receipt    *types.ReceiptInfo    `gorm:"column:receipt;type:jsonb;serializer:json"`
	Inspection *types.InspectionInfo `gorm:"column:inspection;type:jsonb;serializer:json"`
	Dispute    *types.DisputeInfo    `gorm:"column:dispute;type:jsonb;serializer:json"`
	SLA        *types.SLAInfo        `gorm:"column:sla;type:jsonb;serializer:json"`
	History    types.HistoryEntries  `gorm:"column:history;type:jsonb;serializer:json"`

	IsActive bool       `gorm:"column:is_active;not null;default:true"`
	ClosedAt *time.Time `gorm:"column:closed_at"`

	Items []ReturnItem `gorm:"foreignKey:ReturnID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralization.
func (Return) TableName() string { return "returns" }

// ReturnItem snapshots one returned order line, with the prices paid at
// approval time. Refund math reads this snapshot, never the live catalog.
type ReturnItem struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReturnID    uuid.UUID `gorm:"column:return_id;type:uuid;not null;index"`
	OrderItemID uuid.UUID `gorm:"column:order_item_id;type:uuid;not null"`
	ProductName string    `gorm:"column:product_name;not null"`

	QtyRequested int `gorm:"column:qty_requested;not null"`
	QtyApproved  int `gorm:"column:qty_approved;not null;default:0"`

	UnitPriceCents     int        `gorm:"column:unit_price_cents;not null"`
	PaidSubtotalCents  int        `gorm:"column:paid_subtotal_cents;not null;default:0"`
	ShippingAllocCents int        `gorm:"column:shipping_alloc_cents;not null;default:0"`
	TaxCents           int        `gorm:"column:tax_cents;not null;default:0"`
	DiscountCents      int        `gorm:"column:discount_cents;not null;default:0"`
	PriceSnapshotAt    *time.Time `gorm:"column:price_snapshot_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralization.
func (ReturnItem) TableName() string { return "return_items" }
