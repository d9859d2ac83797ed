package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"payment-reconciler/internal/logger"
	"payment-reconciler/internal/models"
	"payment-reconciler/internal/monitoring"

	"github.com/stripe/stripe-go/v82"
)

var ErrEmptyPayload = errors.New("event has no data object")

// EventLedger suppresses repeated deliveries of one provider event.
type EventLedger interface {
	ClaimEvent(ctx context.Context, eventID string) (bool, error)
	ReleaseEvent(ctx context.Context, eventID string) error
}

// Dispatcher routes a verified event to its handler. Handler errors and panics
// stop at Dispatch; they are logged, counted and returned as a Result.
type Dispatcher struct {
	reconciler *OrderReconciler
	projector  *SubscriptionProjector
	ledger     EventLedger
	log        *logger.Logger
}

func NewDispatcher(reconciler *OrderReconciler, projector *SubscriptionProjector, ledger EventLedger, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		reconciler: reconciler,
		projector:  projector,
		ledger:     ledger,
		log:        log,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event *stripe.Event) (res Result) {
	eventType := string(event.Type)
	start := time.Now()
	claimed := false

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("DISPATCH", fmt.Sprintf("Handler for %s (%s) panicked: %v", event.ID, eventType, r))
			res = fail(OutcomeFailed, res.OrderID, newError(KindInternal, "dispatch "+eventType, fmt.Errorf("panic: %v", r)))
		}
		if claimed && KindOf(res.Err) == KindInternal {
			d.release(event.ID)
		}
		d.record(event, res, time.Since(start))
	}()

	if d.ledger != nil && event.ID != "" {
		first, err := d.ledger.ClaimEvent(ctx, event.ID)
		switch {
		case err != nil:
			d.log.Warn("DISPATCH", fmt.Sprintf("Event ledger unavailable for %s, processing anyway: %v", event.ID, err))
		case !first:
			d.log.LogWebhook("DUPLICATE", event.ID, "Event already processed, skipping")
			return Result{Outcome: OutcomeDuplicate}
		default:
			claimed = true
		}
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var pi models.PaymentIntentPayload
		if err := decodeObject(event, &pi); err != nil {
			return fail(OutcomeDropped, "", newError(KindMissingData, "decode payment intent", err))
		}
		return d.reconciler.HandleSucceeded(ctx, &pi, event.Account)

	case stripe.EventTypePaymentIntentPaymentFailed:
		var pi models.PaymentIntentPayload
		if err := decodeObject(event, &pi); err != nil {
			return fail(OutcomeDropped, "", newError(KindMissingData, "decode payment intent", err))
		}
		return d.reconciler.HandleFailed(ctx, &pi)

	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var sub models.SubscriptionPayload
		if err := decodeObject(event, &sub); err != nil {
			return fail(OutcomeDropped, "", newError(KindMissingData, "decode subscription", err))
		}
		return d.projector.HandleSubscription(ctx, &sub)

	case stripe.EventTypeInvoicePaymentSucceeded,
		stripe.EventTypeInvoicePaid,
		stripe.EventTypeInvoicePaymentFailed:
		var inv models.InvoicePayload
		if err := decodeObject(event, &inv); err != nil {
			return fail(OutcomeDropped, "", newError(KindMissingData, "decode invoice", err))
		}
		return d.projector.HandleInvoice(ctx, &inv, event.Type != stripe.EventTypeInvoicePaymentFailed)

	default:
		d.log.Debug("DISPATCH", fmt.Sprintf("Ignoring event type %s", eventType))
		return Result{Outcome: OutcomeIgnored}
	}
}

func decodeObject(event *stripe.Event, v interface{}) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return ErrEmptyPayload
	}
	return json.Unmarshal(event.Data.Raw, v)
}

func (d *Dispatcher) release(eventID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.ledger.ReleaseEvent(ctx, eventID); err != nil {
		d.log.Warn("DISPATCH", fmt.Sprintf("Failed to release event %s: %v", eventID, err))
	}
}

func (d *Dispatcher) record(event *stripe.Event, res Result, elapsed time.Duration) {
	eventType := string(event.Type)
	monitoring.TrackEvent(eventType, string(res.Outcome))
	monitoring.ObserveDispatch(eventType, elapsed)

	for _, w := range res.Warnings {
		monitoring.TrackError(string(KindOf(w)))
		d.log.Warn("DISPATCH", fmt.Sprintf("%s (%s): %v", event.ID, eventType, w))
	}

	msg := fmt.Sprintf("%s -> %s", eventType, res.Outcome)
	if res.OrderID != "" {
		msg += " order=" + res.OrderID
	}
	if res.Err != nil {
		monitoring.TrackError(string(KindOf(res.Err)))
		d.log.Error("DISPATCH", fmt.Sprintf("%s (%s) failed [%s]: %v", event.ID, eventType, KindOf(res.Err), res.Err))
		return
	}
	d.log.LogWebhook("PROCESSED", event.ID, fmt.Sprintf("%s in %s", msg, elapsed.Round(time.Millisecond)))
}
