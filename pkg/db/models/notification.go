package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification is a fire-and-forget message row for customers and sellers.
type Notification struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RecipientType string     `gorm:"column:recipient_type;not null"`
	RecipientID   uuid.UUID  `gorm:"column:recipient_id;type:uuid;not null;index"`
	ReturnID      uuid.UUID  `gorm:"column:return_id;type:uuid;not null"`
	Topic         string     `gorm:"column:topic;not null"`
	Body          string     `gorm:"column:body;not null"`
	ReadAt        *time.Time `gorm:"column:read_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides the default pluralization.
func (Notification) TableName() string { return "notifications" }
