package refunds

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/returns-engine/pkg/db/models"
	"github.com/angelmondragon/returns-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/returns-engine/pkg/errors"
)

// InvoiceReader looks up the sale invoice carrying the commission snapshot.
type InvoiceReader interface {
	LatestByOrderSeller(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Invoice, error)
}

// Reversal is the commission to hand back to the seller when a sale is
// partially or fully refunded. A zero amount with a note means the snapshot
// was missing; the calculator never guesses.
type Reversal struct {
	AmountCents int        `json:"amount_cents"`
	Note        *string    `json:"note,omitempty"`
	InvoiceID   *uuid.UUID `json:"invoice_id,omitempty"`
}

// Reverser computes proportional commission reversals from invoice snapshots.
type Reverser struct {
	invoices InvoiceReader
}

// NewReverser wires a commission reverser.
func NewReverser(invoices InvoiceReader) (*Reverser, error) {
	if invoices == nil {
		return nil, errors.New("invoice reader required")
	}
	return &Reverser{invoices: invoices}, nil
}

// ComputeReversal derives the commission to reverse for the refunded base
// amount. Multiple invoices per (order, seller) are resolved to the most
// recent one; the chosen invoice id is recorded so that case stays auditable.
func (r *Reverser) ComputeReversal(ctx context.Context, orderID, sellerID uuid.UUID, baseCents int) (Reversal, error) {
	if orderID == uuid.Nil || sellerID == uuid.Nil {
		return Reversal{}, pkgerrors.New(pkgerrors.CodeValidation, "order and seller ids required")
	}
	if baseCents <= 0 {
		return Reversal{Note: strPtr("non-positive refund base, nothing to reverse")}, nil
	}

	invoice, err := r.invoices.LatestByOrderSeller(ctx, orderID, sellerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Reversal{Note: strPtr("no invoice found for order/seller, commission reversal skipped")}, nil
		}
		return Reversal{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	if !invoice.HasCommissionSnapshot() {
		note := fmt.Sprintf("invoice %s has no commission snapshot, reversal skipped", invoice.ID)
		return Reversal{Note: &note, InvoiceID: &invoice.ID}, nil
	}

	amount := reversalCents(invoice, baseCents)
	return Reversal{AmountCents: amount, InvoiceID: &invoice.ID}, nil
}

func reversalCents(invoice *models.Invoice, baseCents int) int {
	base := decimal.NewFromInt(int64(baseCents))

	switch invoice.CommissionRateType {
	case enums.CommissionRateTypePercentage:
		// round half-up to the cent
		return int(base.Mul(invoice.CommissionRate).Div(decimal.NewFromInt(100)).Round(0).IntPart())

	case enums.CommissionRateTypeFlat:
		flat := decimal.NewFromInt(int64(invoice.CommissionAmountCents))
		if flat.IsZero() {
			flat = invoice.CommissionRate
		}
		if invoice.SubtotalCents <= 0 {
			return int(flat.Round(0).IntPart())
		}
		ratio := base.Div(decimal.NewFromInt(int64(invoice.SubtotalCents)))
		if ratio.GreaterThan(decimal.NewFromInt(1)) {
			ratio = decimal.NewFromInt(1)
		}
		return int(flat.Mul(ratio).Round(0).IntPart())

	default:
		return 0
	}
}

func strPtr(s string) *string { return &s }
