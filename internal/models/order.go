package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

// ViewTokenYears is how many calendar years a public order-view token stays valid.
const ViewTokenYears = 2

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID                 string        `json:"id" bun:"id,pk"`
	BuyerID            string        `json:"buyerId" bun:"buyer_id"`
	SellerID           string        `json:"sellerId" bun:"seller_id"`
	ProductionID       string        `json:"productionId" bun:"production_id"`
	PerformanceID      string        `json:"performanceId" bun:"performance_id"`
	TotalAmount        int64         `json:"totalAmount" bun:"total_amount"`
	Currency           string        `json:"currency" bun:"currency"`
	Status             OrderStatus   `json:"status" bun:"status"`
	PaymentStatus      PaymentStatus `json:"paymentStatus" bun:"payment_status"`
	PaymentMethod      string        `json:"paymentMethod" bun:"payment_method"`
	Email              string        `json:"email,omitempty" bun:"email"`
	Tickets            []string      `json:"tickets" bun:"tickets,type:json"`
	ViewToken          string        `json:"viewToken" bun:"view_token"`
	ViewTokenExpiresAt time.Time     `json:"viewTokenExpiresAt" bun:"view_token_expires_at"`
	ProductionName     string        `json:"productionName,omitempty" bun:"production_name"`
	VenueName          string        `json:"venueName,omitempty" bun:"venue_name"`
	VenueAddress       string        `json:"venueAddress,omitempty" bun:"venue_address"`
	PerformanceDate    string        `json:"performanceDate,omitempty" bun:"performance_date"`
	PerformanceTime    string        `json:"performanceTime,omitempty" bun:"performance_time"`
	PaymentIntentID    string        `json:"paymentIntentId" bun:"payment_intent_id"`
	StripeAccountID    string        `json:"stripeAccountId,omitempty" bun:"stripe_account_id"`
	CreatedAt          time.Time     `json:"createdAt" bun:"created_at"`
	UpdatedAt          time.Time     `json:"updatedAt" bun:"updated_at"`
}

// IssueViewToken sets the token and its expiry relative to issuedAt.
func (o *Order) IssueViewToken(token string, issuedAt time.Time) {
	o.ViewToken = token
	o.ViewTokenExpiresAt = issuedAt.AddDate(ViewTokenYears, 0, 0)
}
