package refunds

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/returns-engine/pkg/db/models"
	"github.com/angelmondragon/returns-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/returns-engine/pkg/errors"
)

type stubInvoiceReader struct {
	invoice *models.Invoice
	err     error
}

func (s *stubInvoiceReader) LatestByOrderSeller(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Invoice, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.invoice, nil
}

func percentageInvoice(rate int64, subtotal int) *models.Invoice {
	return &models.Invoice{
		ID:                 uuid.New(),
		SubtotalCents:      subtotal,
		CommissionRateType: enums.CommissionRateTypePercentage,
		CommissionRate:     decimal.NewFromInt(rate),
	}
}

func TestComputeReversalPercentage(t *testing.T) {
	reverser, err := NewReverser(&stubInvoiceReader{invoice: percentageInvoice(10, 5000)})
	require.NoError(t, err)

	reversal, err := reverser.ComputeReversal(context.Background(), uuid.New(), uuid.New(), 1150)
	require.NoError(t, err)
	assert.Equal(t, 115, reversal.AmountCents)
	assert.Nil(t, reversal.Note)
	require.NotNil(t, reversal.InvoiceID)
}

func TestComputeReversalPercentageRounding(t *testing.T) {
	// 2.5% of 1990 = 49.75, rounds half-up to 50.
	invoice := percentageInvoice(0, 5000)
	invoice.CommissionRate = decimal.RequireFromString("2.5")
	reverser, err := NewReverser(&stubInvoiceReader{invoice: invoice})
	require.NoError(t, err)

	reversal, err := reverser.ComputeReversal(context.Background(), uuid.New(), uuid.New(), 1990)
	require.NoError(t, err)
	assert.Equal(t, 50, reversal.AmountCents)
}

func TestComputeReversalFlatProrated(t *testing.T) {
	invoice := &models.Invoice{
		ID:                    uuid.New(),
		SubtotalCents:         2000,
		CommissionRateType:    enums.CommissionRateTypeFlat,
		CommissionAmountCents: 300,
	}
	reverser, err := NewReverser(&stubInvoiceReader{invoice: invoice})
	require.NoError(t, err)

	// Half the invoice refunded reverses half the flat commission.
	reversal, err := reverser.ComputeReversal(context.Background(), uuid.New(), uuid.New(), 1000)
	require.NoError(t, err)
	assert.Equal(t, 150, reversal.AmountCents)
}

func TestComputeReversalFlatCappedAtFull(t *testing.T) {
	invoice := &models.Invoice{
		ID:                    uuid.New(),
		SubtotalCents:         2000,
		CommissionRateType:    enums.CommissionRateTypeFlat,
		CommissionAmountCents: 300,
	}
	reverser, err := NewReverser(&stubInvoiceReader{invoice: invoice})
	require.NoError(t, err)

	// Refund base above the invoice subtotal never reverses more than the
	// commission actually charged.
	reversal, err := reverser.ComputeReversal(context.Background(), uuid.New(), uuid.New(), 5000)
	require.NoError(t, err)
	assert.Equal(t, 300, reversal.AmountCents)
}

func TestComputeReversalNoInvoiceNeverFails(t *testing.T) {
	reverser, err := NewReverser(&stubInvoiceReader{err: gorm.ErrRecordNotFound})
	require.NoError(t, err)

	reversal, err := reverser.ComputeReversal(context.Background(), uuid.New(), uuid.New(), 1150)
	require.NoError(t, err)
	assert.Equal(t, 0, reversal.AmountCents)
	require.NotNil(t, reversal.Note)
	assert.Contains(t, *reversal.Note, "no invoice found")
}

func TestComputeReversalMissingSnapshot(t *testing.T) {
	invoice := &models.Invoice{ID: uuid.New(), SubtotalCents: 2000}
	reverser, err := NewReverser(&stubInvoiceReader{invoice: invoice})
	require.NoError(t, err)

	reversal, err := reverser.ComputeReversal(context.Background(), uuid.New(), uuid.New(), 1150)
	require.NoError(t, err)
	assert.Equal(t, 0, reversal.AmountCents)
	require.NotNil(t, reversal.Note)
	assert.Contains(t, *reversal.Note, "no commission snapshot")
}

func TestComputeReversalZeroBase(t *testing.T) {
	reverser, err := NewReverser(&stubInvoiceReader{invoice: percentageInvoice(10, 5000)})
	require.NoError(t, err)

	reversal, err := reverser.ComputeReversal(context.Background(), uuid.New(), uuid.New(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, reversal.AmountCents)
	require.NotNil(t, reversal.Note)
}

func TestComputeReversalDependencyError(t *testing.T) {
	reverser, err := NewReverser(&stubInvoiceReader{err: errors.New("connection reset")})
	require.NoError(t, err)

	_, err = reverser.ComputeReversal(context.Background(), uuid.New(), uuid.New(), 1150)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
}

func TestComputeReversalValidatesIDs(t *testing.T) {
	reverser, err := NewReverser(&stubInvoiceReader{})
	require.NoError(t, err)

	_, err = reverser.ComputeReversal(context.Background(), uuid.Nil, uuid.New(), 1150)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
