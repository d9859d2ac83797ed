package services

import (
	"context"
	"errors"
	"fmt"

	"payment-reconciler/internal/logger"
	"payment-reconciler/internal/models"
	"payment-reconciler/internal/storage"
)

// CustomerResolver maps a Stripe customer id to a local user id.
type CustomerResolver struct {
	provider PaymentProvider
	users    storage.UserStore
	log      *logger.Logger
}

func NewCustomerResolver(provider PaymentProvider, users storage.UserStore, log *logger.Logger) *CustomerResolver {
	return &CustomerResolver{provider: provider, users: users, log: log}
}

// Resolve checks the customer's own metadata first, then users whose stored
// customer id matches. It returns "" when neither source knows the customer;
// provider and store errors are logged and treated as unresolved.
func (r *CustomerResolver) Resolve(ctx context.Context, customerID string) string {
	if customerID == "" {
		return ""
	}

	cus, err := r.provider.GetCustomer(ctx, customerID)
	switch {
	case err == nil && !cus.Deleted && cus.Metadata[models.MetaUserID] != "":
		return cus.Metadata[models.MetaUserID]
	case err != nil && !errors.Is(err, ErrProviderNotConfigured):
		r.log.Warn("RESOLVER", fmt.Sprintf("Customer lookup failed for %s: %v", customerID, err))
	}

	users, err := r.users.FindUsersByStripeCustomerID(ctx, customerID)
	if err != nil {
		r.log.Warn("RESOLVER", fmt.Sprintf("User search failed for customer %s: %v", customerID, err))
		return ""
	}
	if len(users) == 0 {
		return ""
	}
	if len(users) > 1 {
		r.log.Warn("RESOLVER", fmt.Sprintf("%d users share customer %s, using %s", len(users), customerID, users[0].ID))
	}
	return users[0].ID
}
