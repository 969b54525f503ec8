package enums

import "fmt"

// PaymentStatus tracks a payments row through settlement.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusOpen       PaymentStatus = "open"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusPaid       PaymentStatus = "paid"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusDisputed   PaymentStatus = "disputed"
	PaymentStatusVoid       PaymentStatus = "void"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusOpen,
	PaymentStatusAuthorized,
	PaymentStatusPaid,
	PaymentStatusRefunded,
	PaymentStatusDisputed,
	PaymentStatusVoid,
}

// paymentTransitions lists the statuses reachable from each status. Anything
// not listed is a stale or out-of-order event and must not be applied.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusOpen, PaymentStatusAuthorized, PaymentStatusPaid, PaymentStatusVoid},
	PaymentStatusOpen:       {PaymentStatusAuthorized, PaymentStatusPaid, PaymentStatusVoid},
	PaymentStatusAuthorized: {PaymentStatusPaid, PaymentStatusVoid},
	PaymentStatusPaid:       {PaymentStatusRefunded, PaymentStatusDisputed},
	PaymentStatusDisputed:   {PaymentStatusPaid, PaymentStatusRefunded},
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// CanTransition reports whether p may move to next. Staying put is allowed.
func (p PaymentStatus) CanTransition(next PaymentStatus) bool {
	if p == next {
		return true
	}
	for _, candidate := range paymentTransitions[p] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
