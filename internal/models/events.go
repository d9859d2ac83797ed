package models

import "time"

// Domain event types published after the pipeline changes state.
const (
	EventOrderConfirmed      = "order.confirmed"
	EventOrderCancelled      = "order.cancelled"
	EventSubscriptionUpdated = "subscription.updated"
)

type OrderEvent struct {
	Type            string        `json:"type"`
	OrderID         string        `json:"orderId"`
	PaymentIntentID string        `json:"paymentIntentId,omitempty"`
	BuyerID         string        `json:"buyerId,omitempty"`
	SellerID        string        `json:"sellerId,omitempty"`
	TotalAmount     int64         `json:"totalAmount"`
	Currency        string        `json:"currency,omitempty"`
	Status          OrderStatus   `json:"status"`
	PaymentStatus   PaymentStatus `json:"paymentStatus"`
	Tickets         []string      `json:"tickets"`
	OccurredAt      time.Time     `json:"occurredAt"`
}

func NewOrderEvent(eventType string, o *Order, at time.Time) *OrderEvent {
	tickets := o.Tickets
	if tickets == nil {
		tickets = []string{}
	}
	return &OrderEvent{
		Type:            eventType,
		OrderID:         o.ID,
		PaymentIntentID: o.PaymentIntentID,
		BuyerID:         o.BuyerID,
		SellerID:        o.SellerID,
		TotalAmount:     o.TotalAmount,
		Currency:        o.Currency,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		Tickets:         tickets,
		OccurredAt:      at,
	}
}

type SubscriptionEvent struct {
	Type                 string    `json:"type"`
	UserID               string    `json:"userId"`
	StripeSubscriptionID string    `json:"stripeSubscriptionId,omitempty"`
	Status               string    `json:"status"`
	Source               string    `json:"source"`
	OccurredAt           time.Time `json:"occurredAt"`
}
