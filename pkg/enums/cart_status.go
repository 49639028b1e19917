package enums

import "fmt"

// CartStatus tracks where a cart sits in its lifecycle.
type CartStatus string

const (
	CartStatusActive    CartStatus = "ACTIVE"
	CartStatusExpired   CartStatus = "EXPIRED"
	CartStatusAbandoned CartStatus = "ABANDONED"
	CartStatusConverted CartStatus = "CONVERTED"
)

var validCartStatuses = []CartStatus{
	CartStatusActive,
	CartStatusExpired,
	CartStatusAbandoned,
	CartStatusConverted,
}

// CartStatuses returns every known status in display order.
func CartStatuses() []CartStatus {
	out := make([]CartStatus, len(validCartStatuses))
	copy(out, validCartStatuses)
	return out
}

// String implements fmt.Stringer.
func (c CartStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CartStatus.
func (c CartStatus) IsValid() bool {
	for _, candidate := range validCartStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCartStatus converts raw input into a CartStatus.
func ParseCartStatus(value string) (CartStatus, error) {
	for _, candidate := range validCartStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart status %q", value)
}
