package enums

import "fmt"

// LedgerEntryType maps to the ledger_entry_type_enum enum in Postgres.
type LedgerEntryType string

const (
	LedgerEntryTypeRefund                 LedgerEntryType = "refund"
	LedgerEntryTypeCommissionReversal     LedgerEntryType = "commission_reversal"
	LedgerEntryTypeCODAdjustment          LedgerEntryType = "cod_adjustment"
	LedgerEntryTypeSellerPayoutAdjustment LedgerEntryType = "seller_payout_adjustment"
	LedgerEntryTypeWalletCredit           LedgerEntryType = "wallet_credit"
	LedgerEntryTypePayout                 LedgerEntryType = "payout"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryTypeRefund,
	LedgerEntryTypeCommissionReversal,
	LedgerEntryTypeCODAdjustment,
	LedgerEntryTypeSellerPayoutAdjustment,
	LedgerEntryTypeWalletCredit,
	LedgerEntryTypePayout,
}

// IsValid reports whether the value matches the canonical ledger entry enum.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}
