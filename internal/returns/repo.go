package returns

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/returns-engine/pkg/db/models"
	"github.com/angelmondragon/returns-engine/pkg/types"
)

// StatusUpdateParams drive the single conditional write behind every
// transition. The WHERE clause on (id, status, is_active) is the CAS guard.
type StatusUpdateParams struct {
	ReturnID uuid.UUID
	Expected string
	Next     string
	Entry    types.HistoryEntry
	Extra    map[string]any
	CloseOut bool
}

// Repository defines the persistence surface of the return aggregate.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Return, error)
	FindByIDWithItems(ctx context.Context, id uuid.UUID) (*models.Return, error)
	ApplyStatusUpdate(ctx context.Context, params StatusUpdateParams) (int64, error)
	UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateItemApproval(ctx context.Context, itemID uuid.UUID, qtyApproved int, snapshotAt time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a returns repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Return, error) {
	var ret models.Return
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&ret).Error
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *repository) FindByIDWithItems(ctx context.Context, id uuid.UUID) (*models.Return, error) {
	var ret models.Return
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&ret).Error
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *repository) ApplyStatusUpdate(ctx context.Context, params StatusUpdateParams) (int64, error) {
	entryJSON, err := json.Marshal(types.HistoryEntries{params.Entry})
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"status":     params.Next,
		"version":    gorm.Expr("version + 1"),
		"history":    gorm.Expr("coalesce(history, '[]'::jsonb) || ?::jsonb", string(entryJSON)),
		"updated_at": now,
	}
	for column, value := range params.Extra {
		updates[column] = value
	}
	if params.CloseOut {
		updates["is_active"] = false
		updates["closed_at"] = now
	}

	res := r.db.WithContext(ctx).
		Model(&models.Return{}).
		Where("id = ? AND status = ? AND is_active = true", params.ReturnID, params.Expected).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repository) UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Return{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) UpdateItemApproval(ctx context.Context, itemID uuid.UUID, qtyApproved int, snapshotAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ReturnItem{}).
		Where("id = ?", itemID).
		Updates(map[string]any{
			"qty_approved":      qtyApproved,
			"price_snapshot_at": snapshotAt,
		}).Error
}
