package enums

import "fmt"

// CommissionRateType is how the invoice captured the sale commission.
type CommissionRateType string

const (
	CommissionRateTypePercentage CommissionRateType = "percentage"
	CommissionRateTypeFlat       CommissionRateType = "flat"
)

// String implements fmt.Stringer.
func (t CommissionRateType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known CommissionRateType.
func (t CommissionRateType) IsValid() bool {
	return t == CommissionRateTypePercentage || t == CommissionRateTypeFlat
}

// ParseCommissionRateType converts raw input into a CommissionRateType.
func ParseCommissionRateType(value string) (CommissionRateType, error) {
	switch CommissionRateType(value) {
	case CommissionRateTypePercentage:
		return CommissionRateTypePercentage, nil
	case CommissionRateTypeFlat:
		return CommissionRateTypeFlat, nil
	default:
		return "", fmt.Errorf("invalid commission rate type %q", value)
	}
}
