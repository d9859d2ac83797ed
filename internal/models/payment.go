package models

import (
	"errors"
	"fmt"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var ErrIllegalTransition = errors.New("illegal payment status transition")

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentFailed},
	PaymentPaid:    {PaymentRefunded},
}

// CanTransition reports whether from -> to is an edge of the payment state machine.
func (from PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrIllegalTransition wrapped with both states.
func CheckTransition(from, to PaymentStatus) error {
	if from.CanTransition(to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

// OrderStatusFor is the lifecycle status an order takes alongside a payment status.
func OrderStatusFor(p PaymentStatus) OrderStatus {
	switch p {
	case PaymentPaid:
		return OrderConfirmed
	case PaymentFailed:
		return OrderCancelled
	case PaymentRefunded:
		return OrderRefunded
	default:
		return OrderPending
	}
}
