package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/returns-engine/pkg/enums"
)

// LedgerEntry records one immutable accounting line. Corrections are new
// entries, never edits.
type LedgerEntry struct {
	ID   uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Type enums.LedgerEntryType `gorm:"column:type;type:ledger_entry_type_enum;not null"`

	DebitCents        int `gorm:"column:debit_cents;not null;default:0"`
	CreditCents       int `gorm:"column:credit_cents;not null;default:0"`
	SellerImpactCents int `gorm:"column:seller_impact_cents;not null;default:0"`

	SellerID   uuid.UUID `gorm:"column:seller_id;type:uuid;not null;index"`
	SourceType string    `gorm:"column:source_type;not null"`
	SourceID   uuid.UUID `gorm:"column:source_id;type:uuid;not null;index"`

	Currency string          `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status   string          `gorm:"column:status;not null;default:'posted'"`
	Metadata json.RawMessage `gorm:"column:metadata;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides the default pluralization.
func (LedgerEntry) TableName() string { return "ledger_entries" }
