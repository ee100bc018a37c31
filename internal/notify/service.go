package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/returns-engine/pkg/db/models"
	"github.com/angelmondragon/returns-engine/pkg/logger"
)

const (
	recipientCustomer = "customer"
	recipientSeller   = "seller"
)

// Service delivers return lifecycle notifications. Delivery is best effort:
// failures are logged, never propagated to the caller.
type Service interface {
	NotifyCustomer(ctx context.Context, customerID, returnID uuid.UUID, topic, body string)
	NotifySeller(ctx context.Context, sellerID, returnID uuid.UUID, topic, body string)
}

type service struct {
	repo Repository
	log  *logger.Logger
}

// NewService wires a notification service.
func NewService(repo Repository, log *logger.Logger) Service {
	return &service{repo: repo, log: log}
}

func (s *service) NotifyCustomer(ctx context.Context, customerID, returnID uuid.UUID, topic, body string) {
	s.record(ctx, recipientCustomer, customerID, returnID, topic, body)
}

func (s *service) NotifySeller(ctx context.Context, sellerID, returnID uuid.UUID, topic, body string) {
	s.record(ctx, recipientSeller, sellerID, returnID, topic, body)
}

func (s *service) record(ctx context.Context, recipientType string, recipientID, returnID uuid.UUID, topic, body string) {
	ctx = s.log.WithFields(ctx, map[string]any{
		"recipient_type": recipientType,
		"recipient_id":   recipientID.String(),
		"return_id":      returnID.String(),
		"topic":          topic,
	})

	if recipientID == uuid.Nil || returnID == uuid.Nil || topic == "" {
		s.log.Warn(ctx, "skipping notification with missing fields")
		return
	}

	notification := &models.Notification{
		RecipientType: recipientType,
		RecipientID:   recipientID,
		ReturnID:      returnID,
		Topic:         topic,
		Body:          body,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		s.log.Error(ctx, "failed to record notification", err)
	}
}
