package ledger

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/returns-engine/pkg/db/models"
	"github.com/angelmondragon/returns-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/returns-engine/pkg/errors"
)

// SourceTypeRefund tags ledger lines produced by refund posting.
const SourceTypeRefund = "refund"

// Service posts balanced ledger entry sets for refunds. Entries are written
// inside whatever transaction the caller hands in via WithTx.
type Service interface {
	WithTx(tx *gorm.DB) Service
	PostRefundEntries(ctx context.Context, input PostRefundEntriesInput) ([]models.LedgerEntry, error)
	HasEntries(ctx context.Context, sourceID uuid.UUID) (bool, error)
}

type service struct {
	repo Repository
}

// PostRefundEntriesInput carries the refund amounts and payment context the
// poster needs to derive the full entry set.
type PostRefundEntriesInput struct {
	RefundID                uuid.UUID
	ReturnID                uuid.UUID
	SellerID                uuid.UUID
	Currency                string
	TotalCents              int
	CommissionReversalCents int
	Method                  enums.RefundMethod
	PaymentMethod           enums.PaymentMethod
	CODSettled              bool
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) PostRefundEntries(ctx context.Context, input PostRefundEntriesInput) ([]models.LedgerEntry, error) {
	if err := validatePostInput(input); err != nil {
		return nil, err
	}

	meta, err := json.Marshal(map[string]any{
		"return_id": input.ReturnID.String(),
		"refund_id": input.RefundID.String(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal ledger metadata")
	}

	base := models.LedgerEntry{
		SellerID:   input.SellerID,
		SourceType: SourceTypeRefund,
		SourceID:   input.RefundID,
		Currency:   input.Currency,
		Metadata:   meta,
	}

	refund := base
	refund.Type = enums.LedgerEntryTypeRefund
	refund.DebitCents = input.TotalCents
	refund.SellerImpactCents = -input.TotalCents

	reversal := base
	reversal.Type = enums.LedgerEntryTypeCommissionReversal
	reversal.CreditCents = input.CommissionReversalCents
	reversal.SellerImpactCents = input.CommissionReversalCents

	entries := []models.LedgerEntry{refund, reversal}

	switch {
	case input.PaymentMethod == enums.PaymentMethodCOD:
		adjustment := base
		adjustment.CreditCents = input.TotalCents
		adjustment.SellerImpactCents = 0
		if input.CODSettled {
			// Funds already paid out; claw back from the next payout.
			adjustment.Type = enums.LedgerEntryTypeSellerPayoutAdjustment
			adjustment.SellerImpactCents = -input.TotalCents
		} else {
			adjustment.Type = enums.LedgerEntryTypeCODAdjustment
		}
		entries = append(entries, adjustment)
	case input.Method == enums.RefundMethodWallet:
		credit := base
		credit.Type = enums.LedgerEntryTypeWalletCredit
		credit.CreditCents = input.TotalCents
		entries = append(entries, credit)
	}

	return s.repo.CreateBatch(ctx, entries)
}

func (s *service) HasEntries(ctx context.Context, sourceID uuid.UUID) (bool, error) {
	if sourceID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "source id is required")
	}
	entries, err := s.repo.ListBySource(ctx, SourceTypeRefund, sourceID)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

func validatePostInput(input PostRefundEntriesInput) error {
	var errs error
	if input.RefundID == uuid.Nil {
		errs = multierr.Append(errs, pkgerrors.New(pkgerrors.CodeValidation, "refund id is required"))
	}
	if input.ReturnID == uuid.Nil {
		errs = multierr.Append(errs, pkgerrors.New(pkgerrors.CodeValidation, "return id is required"))
	}
	if input.SellerID == uuid.Nil {
		errs = multierr.Append(errs, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required"))
	}
	if input.TotalCents <= 0 {
		errs = multierr.Append(errs, pkgerrors.New(pkgerrors.CodeValidation, "refund total must be positive"))
	}
	if input.CommissionReversalCents < 0 {
		errs = multierr.Append(errs, pkgerrors.New(pkgerrors.CodeValidation, "commission reversal must not be negative"))
	}
	if !input.Method.IsValid() {
		errs = multierr.Append(errs, pkgerrors.New(pkgerrors.CodeValidation, "invalid refund method"))
	}
	if !input.PaymentMethod.IsValid() {
		errs = multierr.Append(errs, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method"))
	}
	if errs != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, errs, "invalid ledger posting input")
	}
	return nil
}
