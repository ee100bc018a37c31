package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/returns-engine/pkg/db/models"
	"github.com/angelmondragon/returns-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/returns-engine/pkg/errors"
)

type fakeLedgerRepo struct {
	created []models.LedgerEntry
	listErr error
}

func (f *fakeLedgerRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeLedgerRepo) CreateBatch(ctx context.Context, entries []models.LedgerEntry) ([]models.LedgerEntry, error) {
	for i := range entries {
		entries[i].ID = uuid.New()
	}
	f.created = append(f.created, entries...)
	return entries, nil
}

func (f *fakeLedgerRepo) ListBySource(ctx context.Context, sourceType string, sourceID uuid.UUID) ([]models.LedgerEntry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.LedgerEntry
	for _, entry := range f.created {
		if entry.SourceType == sourceType && entry.SourceID == sourceID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func validInput() PostRefundEntriesInput {
	return PostRefundEntriesInput{
		RefundID:                uuid.New(),
		ReturnID:                uuid.New(),
		SellerID:                uuid.New(),
		Currency:                "USD",
		TotalCents:              1150,
		CommissionReversalCents: 100,
		Method:                  enums.RefundMethodCard,
		PaymentMethod:           enums.PaymentMethodPrepaid,
	}
}

func TestPostRefundEntriesPrepaidCard(t *testing.T) {
	repo := &fakeLedgerRepo{}
	svc, err := NewService(repo)
	require.NoError(t, err)

	input := validInput()
	entries, err := svc.PostRefundEntries(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, enums.LedgerEntryTypeRefund, entries[0].Type)
	assert.Equal(t, 1150, entries[0].DebitCents)
	assert.Equal(t, -1150, entries[0].SellerImpactCents)

	assert.Equal(t, enums.LedgerEntryTypeCommissionReversal, entries[1].Type)
	assert.Equal(t, 100, entries[1].CreditCents)
	assert.Equal(t, 100, entries[1].SellerImpactCents)

	for _, entry := range entries {
		assert.Equal(t, SourceTypeRefund, entry.SourceType)
		assert.Equal(t, input.RefundID, entry.SourceID)
		assert.Equal(t, input.SellerID, entry.SellerID)
	}
}

func TestPostRefundEntriesCODUnsettled(t *testing.T) {
	repo := &fakeLedgerRepo{}
	svc, err := NewService(repo)
	require.NoError(t, err)

	input := validInput()
	input.Method = enums.RefundMethodCODSettlement
	input.PaymentMethod = enums.PaymentMethodCOD
	input.CODSettled = false

	entries, err := svc.PostRefundEntries(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, enums.LedgerEntryTypeCODAdjustment, entries[2].Type)
	assert.Equal(t, 1150, entries[2].CreditCents)
	assert.Equal(t, 0, entries[2].SellerImpactCents)
}

func TestPostRefundEntriesCODSettled(t *testing.T) {
	repo := &fakeLedgerRepo{}
	svc, err := NewService(repo)
	require.NoError(t, err)

	input := validInput()
	input.Method = enums.RefundMethodCODSettlement
	input.PaymentMethod = enums.PaymentMethodCOD
	input.CODSettled = true

	entries, err := svc.PostRefundEntries(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, enums.LedgerEntryTypeSellerPayoutAdjustment, entries[2].Type)
	assert.Equal(t, -1150, entries[2].SellerImpactCents)
}

func TestPostRefundEntriesWalletCredit(t *testing.T) {
	repo := &fakeLedgerRepo{}
	svc, err := NewService(repo)
	require.NoError(t, err)

	input := validInput()
	input.Method = enums.RefundMethodWallet

	entries, err := svc.PostRefundEntries(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, enums.LedgerEntryTypeWalletCredit, entries[2].Type)
	assert.Equal(t, 1150, entries[2].CreditCents)
}

func TestPostRefundEntriesValidation(t *testing.T) {
	repo := &fakeLedgerRepo{}
	svc, err := NewService(repo)
	require.NoError(t, err)

	input := validInput()
	input.RefundID = uuid.Nil
	input.TotalCents = 0

	_, err = svc.PostRefundEntries(context.Background(), input)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, repo.created)
}

func TestHasEntries(t *testing.T) {
	repo := &fakeLedgerRepo{}
	svc, err := NewService(repo)
	require.NoError(t, err)

	input := validInput()
	ok, err := svc.HasEntries(context.Background(), input.RefundID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.PostRefundEntries(context.Background(), input)
	require.NoError(t, err)

	ok, err = svc.HasEntries(context.Background(), input.RefundID)
	require.NoError(t, err)
	assert.True(t, ok)
}
