package enums

import "fmt"

// ReturnStatus tracks the lifecycle of a customer return request.
type ReturnStatus string

const (
	ReturnStatusPending                ReturnStatus = "pending"
	ReturnStatusUnderReview            ReturnStatus = "under_review"
	ReturnStatusApprovedAwaitingPickup ReturnStatus = "approved_awaiting_pickup"
	ReturnStatusRejected               ReturnStatus = "rejected"
	ReturnStatusPickupScheduled        ReturnStatus = "pickup_scheduled"
	ReturnStatusPickedUp               ReturnStatus = "picked_up"
	ReturnStatusReceivedAtHub          ReturnStatus = "received_at_hub"
	ReturnStatusDeliveredToSeller      ReturnStatus = "delivered_to_seller"
	ReturnStatusReceivedBySeller       ReturnStatus = "received_by_seller"
	ReturnStatusInspectionApproved     ReturnStatus = "inspection_approved"
	ReturnStatusInspectionRejected     ReturnStatus = "inspection_rejected"
	ReturnStatusRefundQueued           ReturnStatus = "refund_queued"
	ReturnStatusRefunded               ReturnStatus = "refunded"
)

var validReturnStatuses = []ReturnStatus{
	ReturnStatusPending,
	ReturnStatusUnderReview,
	ReturnStatusApprovedAwaitingPickup,
	ReturnStatusRejected,
	ReturnStatusPickupScheduled,
	ReturnStatusPickedUp,
	ReturnStatusReceivedAtHub,
	ReturnStatusDeliveredToSeller,
	ReturnStatusReceivedBySeller,
	ReturnStatusInspectionApproved,
	ReturnStatusInspectionRejected,
	ReturnStatusRefundQueued,
	ReturnStatusRefunded,
}

// String implements fmt.Stringer.
func (s ReturnStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ReturnStatus.
func (s ReturnStatus) IsValid() bool {
	for _, candidate := range validReturnStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further business transition exists.
func (s ReturnStatus) IsTerminal() bool {
	switch s {
	case ReturnStatusRejected, ReturnStatusInspectionRejected, ReturnStatusRefunded:
		return true
	default:
		return false
	}
}

// ParseReturnStatus converts raw input into a ReturnStatus.
func ParseReturnStatus(value string) (ReturnStatus, error) {
	for _, candidate := range validReturnStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return status %q", value)
}
