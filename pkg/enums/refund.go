package enums

import "fmt"

// RefundMethod is the channel the refund is paid out through.
type RefundMethod string

const (
	RefundMethodCard          RefundMethod = "card"
	RefundMethodWallet        RefundMethod = "wallet"
	RefundMethodCODSettlement RefundMethod = "cod_settlement"
)

var validRefundMethods = []RefundMethod{
	RefundMethodCard,
	RefundMethodWallet,
	RefundMethodCODSettlement,
}

// String implements fmt.Stringer.
func (m RefundMethod) String() string {
	return string(m)
}

// IsValid reports whether the value is a known RefundMethod.
func (m RefundMethod) IsValid() bool {
	for _, candidate := range validRefundMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseRefundMethod converts raw input into a RefundMethod.
func ParseRefundMethod(value string) (RefundMethod, error) {
	for _, candidate := range validRefundMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund method %q", value)
}

// RefundStrategy labels how the refund amount is reconciled downstream.
type RefundStrategy string

const (
	RefundStrategyCardRefund              RefundStrategy = "card_refund"
	RefundStrategyCODSettlementAdjustment RefundStrategy = "cod_settlement_adjustment"
)

// String implements fmt.Stringer.
func (s RefundStrategy) String() string {
	return string(s)
}

// IsValid reports whether the value is a known RefundStrategy.
func (s RefundStrategy) IsValid() bool {
	return s == RefundStrategyCardRefund || s == RefundStrategyCODSettlementAdjustment
}

// RefundState tracks the refund record lifecycle.
type RefundState string

const (
	RefundStateQueued    RefundState = "queued"
	RefundStateCompleted RefundState = "completed"
)

// String implements fmt.Stringer.
func (s RefundState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known RefundState.
func (s RefundState) IsValid() bool {
	return s == RefundStateQueued || s == RefundStateCompleted
}
