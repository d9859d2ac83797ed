package services

import (
	"context"
	"errors"
	"fmt"

	"payment-reconciler/internal/config"
	"payment-reconciler/internal/logger"
	"payment-reconciler/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var (
	ErrStripeAPIError         = errors.New("stripe API error")
	ErrProviderNotConfigured  = errors.New("payment provider not configured")
	ErrProviderObjectNotFound = errors.New("payment provider object not found")
)

// Customer is the part of a provider customer the resolver needs.
type Customer struct {
	ID       string
	Email    string
	Deleted  bool
	Metadata map[string]string
}

// PaymentProvider is the slice of the Stripe API the pipeline consumes. An
// empty account means the platform account; otherwise the call is made on
// behalf of that connected account.
type PaymentProvider interface {
	GetPaymentIntent(ctx context.Context, id, account string) (*models.PaymentIntentPayload, error)
	UpdatePaymentIntentMetadata(ctx context.Context, id, account string, metadata map[string]string) error
	GetCustomer(ctx context.Context, id string) (*Customer, error)
}

// NewPaymentProvider builds the Stripe-backed provider, or the no-op provider
// when no secret key is configured.
func NewPaymentProvider(cfg config.StripeConfig, log *logger.Logger) PaymentProvider {
	if cfg.SecretKey == "" {
		log.Warn("STRIPE", "STRIPE_SECRET_KEY not set, provider calls are disabled")
		return NoopProvider{}
	}
	log.Info("STRIPE", "Stripe client initialized successfully")
	return NewStripeProvider(client.New(cfg.SecretKey, nil), log)
}

type StripeProvider struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeProvider(sc *client.API, log *logger.Logger) *StripeProvider {
	return &StripeProvider{client: sc, log: log}
}

func (s *StripeProvider) GetPaymentIntent(ctx context.Context, id, account string) (*models.PaymentIntentPayload, error) {
	s.log.LogPayment("GET", id, "Retrieving live payment intent from Stripe")

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if account != "" {
		params.SetStripeAccount(account)
	}

	pi, err := s.client.PaymentIntents.Get(id, params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to retrieve payment intent %s: %v", id, err))
		return nil, wrapStripeError(err)
	}

	payload := &models.PaymentIntentPayload{
		ID:                 pi.ID,
		Amount:             pi.Amount,
		Currency:           string(pi.Currency),
		Metadata:           pi.Metadata,
		PaymentMethodTypes: pi.PaymentMethodTypes,
		ReceiptEmail:       pi.ReceiptEmail,
	}
	if pi.Customer != nil {
		payload.Customer = models.ExpandableID(pi.Customer.ID)
	}
	return payload, nil
}

func (s *StripeProvider) UpdatePaymentIntentMetadata(ctx context.Context, id, account string, metadata map[string]string) error {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if account != "" {
		params.SetStripeAccount(account)
	}

	if _, err := s.client.PaymentIntents.Update(id, params); err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to update metadata on payment intent %s: %v", id, err))
		return wrapStripeError(err)
	}
	s.log.LogPayment("UPDATE", id, fmt.Sprintf("Payment intent metadata updated (%d keys)", len(metadata)))
	return nil
}

func (s *StripeProvider) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	cus, err := s.client.Customers.Get(id, params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to retrieve customer %s: %v", id, err))
		return nil, wrapStripeError(err)
	}
	return &Customer{
		ID:       cus.ID,
		Email:    cus.Email,
		Deleted:  cus.Deleted,
		Metadata: cus.Metadata,
	}, nil
}

func wrapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return fmt.Errorf("%w: %v", ErrProviderObjectNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrStripeAPIError, err)
}

// NoopProvider stands in when Stripe is not configured. Reads fail with
// ErrProviderNotConfigured; metadata writes do the same so callers log them as
// skipped side effects.
type NoopProvider struct{}

func (NoopProvider) GetPaymentIntent(context.Context, string, string) (*models.PaymentIntentPayload, error) {
	return nil, ErrProviderNotConfigured
}

func (NoopProvider) UpdatePaymentIntentMetadata(context.Context, string, string, map[string]string) error {
	return ErrProviderNotConfigured
}

func (NoopProvider) GetCustomer(context.Context, string) (*Customer, error) {
	return nil, ErrProviderNotConfigured
}
