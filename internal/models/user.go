package models

import "github.com/uptrace/bun"

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID               string `json:"id" bun:"id,pk"`
	Email            string `json:"email" bun:"email"`
	Name             string `json:"name" bun:"name"`
	StripeCustomerID string `json:"stripeCustomerId" bun:"stripe_customer_id"`
}
