package notify

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/returns-engine/pkg/db/models"
)

// Repository persists notification rows.
type Repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a notification repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}
