package shipping

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/returns-engine/pkg/db/models"
	"github.com/angelmondragon/returns-engine/pkg/enums"
	"github.com/angelmondragon/returns-engine/pkg/types"
)

// Repository defines shipment booking persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, shipment *models.ReturnShipment) error
	FindByIdempotencyKey(ctx context.Context, key string) (*models.ReturnShipment, error)
	FindActiveByReturnID(ctx context.Context, returnID uuid.UUID) (*models.ReturnShipment, error)
	MaxAttempt(ctx context.Context, returnID uuid.UUID) (int, error)
	MarkBooked(ctx context.Context, shipmentID uuid.UUID, trackingNumber, partnerShipmentID string) error
	MarkFailed(ctx context.Context, shipmentID uuid.UUID, failure string) error
	Deactivate(ctx context.Context, shipmentID uuid.UUID) error
	AppendEvent(ctx context.Context, shipmentID uuid.UUID, event types.ShipmentEvent) error
	RecordFailure(ctx context.Context, failure *models.BookingFailure) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a shipments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, shipment *models.ReturnShipment) error {
	return r.db.WithContext(ctx).Create(shipment).Error
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.ReturnShipment, error) {
	var shipment models.ReturnShipment
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&shipment).Error
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (r *repository) FindActiveByReturnID(ctx context.Context, returnID uuid.UUID) (*models.ReturnShipment, error) {
	var shipment models.ReturnShipment
	err := r.db.WithContext(ctx).
		Where("return_id = ? AND is_active = true", returnID).
		First(&shipment).Error
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (r *repository) MaxAttempt(ctx context.Context, returnID uuid.UUID) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).
		Model(&models.ReturnShipment{}).
		Where("return_id = ?", returnID).
		Select("max(attempt)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *repository) MarkBooked(ctx context.Context, shipmentID uuid.UUID, trackingNumber, partnerShipmentID string) error {
	return r.db.WithContext(ctx).
		Model(&models.ReturnShipment{}).
		Where("id = ?", shipmentID).
		Updates(map[string]any{
			"status":              enums.ShipmentStatusBooked.String(),
			"tracking_number":     trackingNumber,
			"partner_shipment_id": partnerShipmentID,
			"updated_at":          time.Now().UTC(),
		}).Error
}

func (r *repository) MarkFailed(ctx context.Context, shipmentID uuid.UUID, failure string) error {
	return r.db.WithContext(ctx).
		Model(&models.ReturnShipment{}).
		Where("id = ?", shipmentID).
		Updates(map[string]any{
			"status":     enums.ShipmentStatusFailed.String(),
			"is_active":  false,
			"last_error": failure,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) Deactivate(ctx context.Context, shipmentID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.ReturnShipment{}).
		Where("id = ?", shipmentID).
		Update("is_active", false).Error
}

func (r *repository) AppendEvent(ctx context.Context, shipmentID uuid.UUID, event types.ShipmentEvent) error {
	payload, err := jsonEvent(event)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.ReturnShipment{}).
		Where("id = ?", shipmentID).
		Update("events", gorm.Expr("coalesce(events, '[]'::jsonb) || ?::jsonb", payload)).Error
}

func (r *repository) RecordFailure(ctx context.Context, failure *models.BookingFailure) error {
	return r.db.WithContext(ctx).Create(failure).Error
}
