package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Subscription is the local projection of a provider subscription, one per user.
type Subscription struct {
	bun.BaseModel `bun:"table:subscriptions"`

	UserID               string     `json:"userId" bun:"user_id,pk"`
	PlanID               string     `json:"planId" bun:"plan_id"`
	PlanName             string     `json:"planName" bun:"plan_name"`
	StripeSubscriptionID string     `json:"stripeSubscriptionId" bun:"stripe_subscription_id"`
	StripeCustomerID     string     `json:"stripeCustomerId" bun:"stripe_customer_id"`
	Status               string     `json:"status" bun:"status"`
	CurrentPeriodStart   *time.Time `json:"currentPeriodStart,omitempty" bun:"current_period_start,nullzero"`
	CurrentPeriodEnd     *time.Time `json:"currentPeriodEnd,omitempty" bun:"current_period_end,nullzero"`
	CancelAtPeriodEnd    bool       `json:"cancelAtPeriodEnd" bun:"cancel_at_period_end"`
	LastPaymentAt        *time.Time `json:"lastPaymentAt,omitempty" bun:"last_payment_at,nullzero"`
	LastPaymentFailedAt  *time.Time `json:"lastPaymentFailedAt,omitempty" bun:"last_payment_failed_at,nullzero"`
	UpdatedAt            time.Time  `json:"updatedAt" bun:"updated_at"`
}
