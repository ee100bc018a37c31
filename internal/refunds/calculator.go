package refunds

import (
	"github.com/angelmondragon/returns-engine/pkg/db/models"
	"github.com/angelmondragon/returns-engine/pkg/enums"
)

// Amounts is the refund breakdown derived from the approved item snapshot.
type Amounts struct {
	ItemsSubtotalCents    int                  `json:"items_subtotal_cents"`
	ShippingRefundCents   int                  `json:"shipping_refund_cents"`
	TaxRefundCents        int                  `json:"tax_refund_cents"`
	DiscountReversalCents int                  `json:"discount_reversal_cents"`
	TotalCents            int                  `json:"total_cents"`
	Strategy              enums.RefundStrategy `json:"strategy"`
}

// ComputeAmounts sums the refundable money per approved item from the price
// snapshot captured at approval time. Current catalog prices are never
// consulted; they may have changed since purchase. The result is a plain sum
// per item, so item order never affects the total.
func ComputeAmounts(items []models.ReturnItem, paymentMethod enums.PaymentMethod) Amounts {
	var out Amounts
	for _, item := range items {
		if item.QtyApproved <= 0 {
			continue
		}
		out.ItemsSubtotalCents += itemSubtotalCents(item)
		out.ShippingRefundCents += prorated(item.ShippingAllocCents, item)
		out.TaxRefundCents += prorated(item.TaxCents, item)
		out.DiscountReversalCents += prorated(item.DiscountCents, item)
	}

	out.TotalCents = out.ItemsSubtotalCents + out.ShippingRefundCents + out.TaxRefundCents - out.DiscountReversalCents

	if paymentMethod == enums.PaymentMethodCOD {
		out.Strategy = enums.RefundStrategyCODSettlementAdjustment
	} else {
		out.Strategy = enums.RefundStrategyCardRefund
	}
	return out
}

// itemSubtotalCents prefers the structured snapshot prorated to the approved
// quantity; legacy rows without one fall back to qty x unit price.
func itemSubtotalCents(item models.ReturnItem) int {
	if item.PriceSnapshotAt != nil {
		return prorated(item.PaidSubtotalCents, item)
	}
	return item.QtyApproved * item.UnitPriceCents
}

// prorated scales a full-line snapshot amount down to the approved share of
// the requested quantity, rounding half up to the cent. Full approvals pass
// through untouched.
func prorated(amountCents int, item models.ReturnItem) int {
	if item.QtyRequested <= 0 || item.QtyApproved >= item.QtyRequested {
		return amountCents
	}
	return (amountCents*item.QtyApproved + item.QtyRequested/2) / item.QtyRequested
}

// MethodForStrategy picks the payout channel implied by the refund strategy.
func MethodForStrategy(strategy enums.RefundStrategy, walletRequested bool) enums.RefundMethod {
	if walletRequested {
		return enums.RefundMethodWallet
	}
	if strategy == enums.RefundStrategyCODSettlementAdjustment {
		return enums.RefundMethodCODSettlement
	}
	return enums.RefundMethodCard
}
