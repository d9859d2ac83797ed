package storage

import (
	"context"
	"errors"

	"payment-reconciler/internal/models"
)

var ErrNotFound = errors.New("record not found")

type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	UpsertOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	UpdatePaymentStatus(ctx context.Context, orderID string, status models.PaymentStatus) error
	UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) error
}

type TicketStore interface {
	UpsertTicket(ctx context.Context, orderID string, ticket *models.Ticket) (*models.Ticket, error)
	ListTickets(ctx context.Context, orderID string) ([]*models.Ticket, error)
}

type SubscriptionStore interface {
	GetSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, userID string, sub *models.Subscription) (*models.Subscription, error)
}

type UserStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	FindUsersByStripeCustomerID(ctx context.Context, customerID string) ([]*models.User, error)
}

type Store interface {
	OrderStore
	TicketStore
	SubscriptionStore
	UserStore
	Close() error
}
