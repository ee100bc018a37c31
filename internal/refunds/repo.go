package refunds

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/returns-engine/pkg/db/models"
)

// Repository defines refund persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, refund *models.Refund) error
	FindByReturnID(ctx context.Context, returnID uuid.UUID) (*models.Refund, error)
	UpdateLedgerEntryIDs(ctx context.Context, refundID uuid.UUID, ids []uuid.UUID) error
	MarkCompleted(ctx context.Context, refundID uuid.UUID, completedAt time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a refunds repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *repository) FindByReturnID(ctx context.Context, returnID uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	err := r.db.WithContext(ctx).Where("return_id = ?", returnID).First(&refund).Error
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *repository) UpdateLedgerEntryIDs(ctx context.Context, refundID uuid.UUID, ids []uuid.UUID) error {
	payload, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ?", refundID).
		Update("ledger_entry_ids", gorm.Expr("?::jsonb", string(payload))).Error
}

func (r *repository) MarkCompleted(ctx context.Context, refundID uuid.UUID, completedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ?", refundID).
		Updates(map[string]any{
			"status":       "completed",
			"completed_at": completedAt,
		}).Error
}
