package invoices

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/returns-engine/pkg/db/models"
)

// Repository reads invoice commission snapshots. Invoice lifecycle is owned
// by billing; the returns engine only consumes it.
type Repository interface {
	LatestByOrderSeller(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Invoice, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an invoice repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) LatestByOrderSeller(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND seller_id = ?", orderID, sellerID).
		Order("created_at DESC").
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}
