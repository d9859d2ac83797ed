package services

import (
	"context"
	"fmt"

	"payment-reconciler/internal/logger"
	"payment-reconciler/internal/models"
	"payment-reconciler/internal/monitoring"
)

// Notifier delivers the two pipeline messages.
type Notifier interface {
	SendReceipt(ctx context.Context, to string, order *models.Order) error
	SendTickets(ctx context.Context, to string, order *models.Order, tickets []*models.Ticket) error
}

// NotificationDispatcher sends the receipt and then, independently, the
// consolidated tickets message. Failures are reported back but never touch
// order state.
type NotificationDispatcher struct {
	notifier Notifier
	log      *logger.Logger
}

func NewNotificationDispatcher(notifier Notifier, log *logger.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{notifier: notifier, log: log}
}

func (d *NotificationDispatcher) Dispatch(ctx context.Context, to string, order *models.Order, tickets []*models.Ticket) []error {
	var failures []error

	if err := d.notifier.SendReceipt(ctx, to, order); err != nil {
		d.log.Error("NOTIFY", fmt.Sprintf("Receipt for order %s to %s failed: %v", order.ID, to, err))
		monitoring.TrackNotification("receipt", "failed")
		failures = append(failures, fmt.Errorf("receipt: %w", err))
	} else {
		d.log.Info("NOTIFY", fmt.Sprintf("Receipt for order %s sent to %s", order.ID, to))
		monitoring.TrackNotification("receipt", "sent")
	}

	if len(tickets) == 0 {
		return failures
	}

	if err := d.notifier.SendTickets(ctx, to, order, tickets); err != nil {
		d.log.Error("NOTIFY", fmt.Sprintf("Tickets for order %s to %s failed: %v", order.ID, to, err))
		monitoring.TrackNotification("tickets", "failed")
		failures = append(failures, fmt.Errorf("tickets: %w", err))
	} else {
		d.log.Info("NOTIFY", fmt.Sprintf("%d tickets for order %s sent to %s", len(tickets), order.ID, to))
		monitoring.TrackNotification("tickets", "sent")
	}
	return failures
}
