package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"payment-reconciler/internal/logger"
	"payment-reconciler/internal/models"
	"payment-reconciler/internal/storage"
	"payment-reconciler/internal/utils"
)

var ErrMissingMetadata = errors.New("required payment metadata missing")

// SynthesisLedger narrows the window in which two deliveries of the same
// payment intent can both synthesize an order.
type SynthesisLedger interface {
	ClaimPaymentIntent(ctx context.Context, paymentIntentID, orderID string) (owner string, claimed bool, err error)
	ReleasePaymentIntent(ctx context.Context, paymentIntentID, orderID string) error
}

// EventPublisher receives domain events after state changes.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error
	PublishSubscriptionEvent(ctx context.Context, event *models.SubscriptionEvent) error
}

type OrderReconciler struct {
	orders       storage.OrderStore
	tickets      storage.TicketStore
	users        storage.UserStore
	provider     PaymentProvider
	materializer *TicketMaterializer
	notifier     *NotificationDispatcher
	ledger       SynthesisLedger
	publisher    EventPublisher
	log          *logger.Logger
	now          func() time.Time
}

type OrderReconcilerDeps struct {
	Orders       storage.OrderStore
	Tickets      storage.TicketStore
	Users        storage.UserStore
	Provider     PaymentProvider
	Materializer *TicketMaterializer
	Notifier     *NotificationDispatcher
	Ledger       SynthesisLedger // optional
	Publisher    EventPublisher  // optional
}

func NewOrderReconciler(deps OrderReconcilerDeps, log *logger.Logger) *OrderReconciler {
	provider := deps.Provider
	if provider == nil {
		provider = NoopProvider{}
	}
	return &OrderReconciler{
		orders:       deps.Orders,
		tickets:      deps.Tickets,
		users:        deps.Users,
		provider:     provider,
		materializer: deps.Materializer,
		notifier:     deps.Notifier,
		ledger:       deps.Ledger,
		publisher:    deps.Publisher,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// HandleSucceeded confirms the order named in the payment metadata, or
// synthesizes one when the payment never got an order.
func (r *OrderReconciler) HandleSucceeded(ctx context.Context, pi *models.PaymentIntentPayload, account string) Result {
	orderID := pi.Meta(models.MetaOrderID)

	if orderID == "" && pi.ID != "" {
		// The event is a snapshot; a write-back made after it was created only
		// shows on the live object.
		live, err := r.provider.GetPaymentIntent(ctx, pi.ID, account)
		switch {
		case err == nil:
			if id := live.Meta(models.MetaOrderID); id != "" {
				r.log.LogPayment("RESOLVE", pi.ID, fmt.Sprintf("Live payment intent already points at order %s", id))
				orderID = id
			}
		case !errors.Is(err, ErrProviderNotConfigured):
			r.log.Warn("RECONCILER", fmt.Sprintf("Could not re-read payment intent %s, using event snapshot: %v", pi.ID, err))
		}
	}

	if orderID != "" {
		return r.confirm(ctx, orderID)
	}
	return r.synthesize(ctx, pi, account)
}

// HandleFailed cancels the order named in the metadata. A failed payment never
// produces a new order.
func (r *OrderReconciler) HandleFailed(ctx context.Context, pi *models.PaymentIntentPayload) Result {
	orderID := pi.Meta(models.MetaOrderID)
	if orderID == "" {
		r.log.LogPayment("DROP", pi.ID, "Payment failed without an order id, nothing to cancel")
		return Result{Outcome: OutcomeDropped}
	}

	order, res, done := r.load(ctx, orderID, "cancel order")
	if done {
		return res
	}
	if order.PaymentStatus == models.PaymentFailed {
		r.log.LogPayment("NOOP", pi.ID, fmt.Sprintf("Order %s already failed", orderID))
		return Result{Outcome: OutcomeNoop, OrderID: orderID}
	}
	if res, done := r.transition(ctx, order, models.PaymentFailed); done {
		return res
	}

	r.log.LogPayment("FAILED", pi.ID, fmt.Sprintf("Order %s cancelled after failed payment", orderID))
	res = Result{Outcome: OutcomeUpdated, OrderID: orderID}
	r.publish(ctx, models.EventOrderCancelled, order, &res)
	return res
}

func (r *OrderReconciler) confirm(ctx context.Context, orderID string) Result {
	order, res, done := r.load(ctx, orderID, "confirm order")
	if done {
		return res
	}
	if order.PaymentStatus == models.PaymentPaid {
		r.log.LogPayment("NOOP", order.PaymentIntentID, fmt.Sprintf("Order %s already paid", orderID))
		return Result{Outcome: OutcomeNoop, OrderID: orderID}
	}
	if res, done := r.transition(ctx, order, models.PaymentPaid); done {
		return res
	}

	res = Result{Outcome: OutcomeUpdated, OrderID: orderID}
	tickets, err := r.tickets.ListTickets(ctx, orderID)
	if err != nil {
		r.log.Error("RECONCILER", fmt.Sprintf("Failed to list tickets for order %s: %v", orderID, err))
		res.warn(KindSideEffect, "list tickets", err)
	}

	r.log.LogPayment("CONFIRMED", order.PaymentIntentID, fmt.Sprintf("Order %s confirmed with %d tickets", orderID, len(tickets)))
	r.publish(ctx, models.EventOrderConfirmed, order, &res)
	r.notify(ctx, order, tickets, &res)
	return res
}

func (r *OrderReconciler) synthesize(ctx context.Context, pi *models.PaymentIntentPayload, account string) Result {
	if missing := missingFields(pi, models.MetaSellerID, models.MetaProductionID, models.MetaPerformanceID); len(missing) > 0 {
		err := fmt.Errorf("%w: %s", ErrMissingMetadata, strings.Join(missing, ", "))
		r.log.Warn("RECONCILER", fmt.Sprintf("Cannot synthesize order for payment %s: %v", pi.ID, err))
		return fail(OutcomeDropped, "", newError(KindMissingData, "synthesize order", err))
	}

	var res Result
	specs, err := ParseTicketSpecs(pi.Meta(models.MetaTickets))
	if err != nil {
		r.log.Warn("RECONCILER", fmt.Sprintf("Ignoring tickets metadata on payment %s: %v", pi.ID, err))
		res.warn(KindMissingData, "parse tickets", err)
	}

	orderID := utils.GenerateOrderID()
	claimed := false
	if r.ledger != nil && pi.ID != "" {
		owner, won, err := r.ledger.ClaimPaymentIntent(ctx, pi.ID, orderID)
		switch {
		case err != nil:
			r.log.Warn("RECONCILER", fmt.Sprintf("Synthesis ledger unavailable for %s: %v", pi.ID, err))
		case !won:
			r.log.LogPayment("DUPLICATE", pi.ID, fmt.Sprintf("Order %s is already being synthesized for this payment", owner))
			return Result{Outcome: OutcomeDuplicate, OrderID: owner}
		default:
			claimed = true
		}
	}

	token, err := utils.GenerateViewToken()
	if err != nil {
		r.releaseClaim(ctx, claimed, pi.ID, orderID)
		return fail(OutcomeFailed, "", newError(KindInternal, "generate view token", err))
	}

	issuedAt := r.now()
	order := &models.Order{
		ID:              orderID,
		BuyerID:         pi.Meta(models.MetaBuyerID),
		SellerID:        pi.Meta(models.MetaSellerID),
		ProductionID:    pi.Meta(models.MetaProductionID),
		PerformanceID:   pi.Meta(models.MetaPerformanceID),
		TotalAmount:     pi.Amount,
		Currency:        pi.Currency,
		Status:          models.OrderConfirmed,
		PaymentStatus:   models.PaymentPaid,
		PaymentMethod:   pi.PaymentMethodLabel(),
		Email:           firstNonEmpty(pi.Meta(models.MetaEmail), pi.Meta(models.MetaBuyerEmail), pi.ReceiptEmail),
		Tickets:         []string{},
		ProductionName:  pi.Meta(models.MetaProductionName),
		VenueName:       pi.Meta(models.MetaVenueName),
		VenueAddress:    venueAddress(pi),
		PerformanceDate: pi.Meta(models.MetaPerformanceDate),
		PerformanceTime: pi.Meta(models.MetaPerformanceTime),
		PaymentIntentID: pi.ID,
		StripeAccountID: account,
		CreatedAt:       issuedAt,
	}
	order.IssueViewToken(token, issuedAt)

	if _, err := r.orders.UpsertOrder(ctx, order); err != nil {
		r.log.Error("RECONCILER", fmt.Sprintf("Failed to persist synthesized order for payment %s: %v", pi.ID, err))
		r.releaseClaim(ctx, claimed, pi.ID, orderID)
		return fail(OutcomeFailed, "", newError(KindInternal, "persist order", err))
	}
	r.log.LogPayment("SYNTHESIZED", pi.ID, fmt.Sprintf("Order %s created from payment (amount=%d %s)", orderID, pi.Amount, pi.Currency))

	res.Outcome, res.OrderID = OutcomeCreated, orderID

	if pi.ID != "" {
		err := r.provider.UpdatePaymentIntentMetadata(ctx, pi.ID, account, map[string]string{models.MetaOrderID: orderID})
		if err != nil {
			r.log.Warn("RECONCILER", fmt.Sprintf("Order id write-back to %s failed: %v", pi.ID, err))
			res.warn(KindSideEffect, "write back order id", err)
		}
	}

	var tickets []*models.Ticket
	if len(specs) > 0 {
		var failures []error
		tickets, failures = r.materializer.Materialize(ctx, orderID, token, specs)
		for _, f := range failures {
			res.warn(KindPartial, "materialize tickets", f)
		}
		order.Tickets = make([]string, 0, len(tickets))
		for _, t := range tickets {
			order.Tickets = append(order.Tickets, t.ID)
		}
	}

	r.publish(ctx, models.EventOrderConfirmed, order, &res)
	r.notify(ctx, order, tickets, &res)
	return res
}

// load fetches an order; done is true when res should be returned as-is.
func (r *OrderReconciler) load(ctx context.Context, orderID, op string) (order *models.Order, res Result, done bool) {
	order, err := r.orders.GetOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		r.log.Error("RECONCILER", fmt.Sprintf("Order %s referenced by payment does not exist", orderID))
		return nil, fail(OutcomeFailed, orderID, newError(KindNotFound, op, err)), true
	}
	if err != nil {
		return nil, fail(OutcomeFailed, orderID, newError(KindInternal, op, err)), true
	}
	return order, Result{}, false
}

func (r *OrderReconciler) transition(ctx context.Context, order *models.Order, to models.PaymentStatus) (Result, bool) {
	if err := models.CheckTransition(order.PaymentStatus, to); err != nil {
		r.log.Warn("RECONCILER", fmt.Sprintf("Rejected transition on order %s: %v", order.ID, err))
		return fail(OutcomeFailed, order.ID, newError(KindIllegalTransition, "transition order", err)), true
	}
	if err := r.orders.UpdatePaymentStatus(ctx, order.ID, to); err != nil {
		return fail(OutcomeFailed, order.ID, newError(KindInternal, "update payment status", err)), true
	}
	status := models.OrderStatusFor(to)
	if err := r.orders.UpdateOrderStatus(ctx, order.ID, status); err != nil {
		return fail(OutcomeFailed, order.ID, newError(KindInternal, "update order status", err)), true
	}
	order.PaymentStatus, order.Status = to, status
	return Result{}, false
}

func (r *OrderReconciler) notify(ctx context.Context, order *models.Order, tickets []*models.Ticket, res *Result) {
	if r.notifier == nil {
		return
	}
	to := r.recipient(ctx, order)
	if to == "" {
		r.log.Debug("NOTIFY", fmt.Sprintf("No email for order %s, skipping notifications", order.ID))
		return
	}
	for _, err := range r.notifier.Dispatch(ctx, to, order, tickets) {
		res.warn(KindSideEffect, "notify", err)
	}
}

// recipient prefers the order's own email and falls back to the buyer's.
func (r *OrderReconciler) recipient(ctx context.Context, order *models.Order) string {
	if order.Email != "" {
		return order.Email
	}
	if order.BuyerID == "" || r.users == nil {
		return ""
	}
	user, err := r.users.GetUser(ctx, order.BuyerID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.log.Warn("NOTIFY", fmt.Sprintf("Buyer lookup for order %s failed: %v", order.ID, err))
		}
		return ""
	}
	return user.Email
}

func (r *OrderReconciler) publish(ctx context.Context, eventType string, order *models.Order, res *Result) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishOrderEvent(ctx, models.NewOrderEvent(eventType, order, r.now())); err != nil {
		res.warn(KindSideEffect, "publish "+eventType, err)
	}
}

func (r *OrderReconciler) releaseClaim(ctx context.Context, claimed bool, paymentIntentID, orderID string) {
	if !claimed {
		return
	}
	if err := r.ledger.ReleasePaymentIntent(ctx, paymentIntentID, orderID); err != nil {
		r.log.Warn("RECONCILER", fmt.Sprintf("Failed to release synthesis claim on %s: %v", paymentIntentID, err))
	}
}

func missingFields(pi *models.PaymentIntentPayload, keys ...string) []string {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(pi.Meta(k)) == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

// venueAddress uses the full address when given, else joins whichever parts
// are present ("street, city, state zip").
func venueAddress(pi *models.PaymentIntentPayload) string {
	if addr := pi.Meta(models.MetaVenueAddress); addr != "" {
		return addr
	}
	region := strings.TrimSpace(pi.Meta(models.MetaVenueState) + " " + pi.Meta(models.MetaVenueZip))
	var parts []string
	for _, p := range []string{pi.Meta(models.MetaVenueStreet), pi.Meta(models.MetaVenueCity), region} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
