package enums

import "fmt"

// ShipmentStatus tracks a single pickup booking attempt with a partner.
type ShipmentStatus string

const (
	ShipmentStatusCreated ShipmentStatus = "created"
	ShipmentStatusBooked  ShipmentStatus = "booked"
	ShipmentStatusFailed  ShipmentStatus = "failed"
)

var validShipmentStatuses = []ShipmentStatus{
	ShipmentStatusCreated,
	ShipmentStatusBooked,
	ShipmentStatusFailed,
}

// String implements fmt.Stringer.
func (s ShipmentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ShipmentStatus.
func (s ShipmentStatus) IsValid() bool {
	for _, candidate := range validShipmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseShipmentStatus converts raw input into a ShipmentStatus.
func ParseShipmentStatus(value string) (ShipmentStatus, error) {
	for _, candidate := range validShipmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shipment status %q", value)
}
