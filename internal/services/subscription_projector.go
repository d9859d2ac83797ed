package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-reconciler/internal/logger"
	"payment-reconciler/internal/models"
	"payment-reconciler/internal/storage"
	"payment-reconciler/internal/utils"
)

var ErrUnresolvedUser = errors.New("no local user for subscription")

// Invoice events only ever set one of these two statuses.
const (
	SubscriptionActive  = "active"
	SubscriptionPastDue = "past_due"
)

// SubscriptionProjector keeps one subscription projection per user. Writes
// are last-writer-wins.
type SubscriptionProjector struct {
	subs      storage.SubscriptionStore
	resolver  *CustomerResolver
	publisher EventPublisher
	log       *logger.Logger
	now       func() time.Time
}

func NewSubscriptionProjector(subs storage.SubscriptionStore, resolver *CustomerResolver, publisher EventPublisher, log *logger.Logger) *SubscriptionProjector {
	return &SubscriptionProjector{
		subs:      subs,
		resolver:  resolver,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleSubscription applies a customer.subscription.* event. Status, plan,
// period bounds and cancel-at-period-end are copied from the provider object.
func (p *SubscriptionProjector) HandleSubscription(ctx context.Context, sub *models.SubscriptionPayload) Result {
	userID := p.resolveUser(ctx, sub.Customer.String(), sub.Metadata[models.MetaUserID])
	if userID == "" {
		return p.dropUnresolved(sub.ID, sub.Customer.String())
	}

	projection, res, done := p.load(ctx, userID)
	if done {
		return res
	}

	start, end := sub.PeriodBounds()
	planID, planName := sub.Plan()

	projection.StripeSubscriptionID = sub.ID
	projection.StripeCustomerID = sub.Customer.String()
	projection.Status = sub.Status
	projection.PlanID = planID
	projection.PlanName = planName
	projection.CurrentPeriodStart = utils.EpochToTimePtr(start)
	projection.CurrentPeriodEnd = utils.EpochToTimePtr(end)
	projection.CancelAtPeriodEnd = sub.CancelAtPeriodEnd

	return p.save(ctx, userID, projection, "subscription")
}

// HandleInvoice applies an invoice payment outcome. Only the status and the
// matching last-payment timestamp change; period bounds are left alone.
func (p *SubscriptionProjector) HandleInvoice(ctx context.Context, inv *models.InvoicePayload, succeeded bool) Result {
	subscriptionID := inv.SubscriptionID()
	if subscriptionID == "" {
		p.log.Debug("SUBSCRIPTION", fmt.Sprintf("Invoice %s is not a subscription invoice", inv.ID))
		return Result{Outcome: OutcomeIgnored}
	}

	userID := p.resolveUser(ctx, inv.Customer.String(), inv.SubscriptionMeta(models.MetaUserID))
	if userID == "" {
		return p.dropUnresolved(subscriptionID, inv.Customer.String())
	}

	projection, res, done := p.load(ctx, userID)
	if done {
		return res
	}
	if projection.StripeSubscriptionID == "" {
		projection.StripeSubscriptionID = subscriptionID
	}
	if projection.StripeCustomerID == "" {
		projection.StripeCustomerID = inv.Customer.String()
	}

	if succeeded {
		paidAt := p.now()
		if inv.StatusTransitions.PaidAt > 0 {
			paidAt = utils.UnixTimeToTime(inv.StatusTransitions.PaidAt)
		}
		projection.Status = SubscriptionActive
		projection.LastPaymentAt = &paidAt
	} else {
		failedAt := p.now()
		projection.Status = SubscriptionPastDue
		projection.LastPaymentFailedAt = &failedAt
	}

	return p.save(ctx, userID, projection, "invoice")
}

func (p *SubscriptionProjector) resolveUser(ctx context.Context, customerID, metadataUserID string) string {
	if userID := p.resolver.Resolve(ctx, customerID); userID != "" {
		return userID
	}
	return metadataUserID
}

// dropUnresolved logs and drops an event no user can be found for. The caller
// sees no error; the warning is counted.
func (p *SubscriptionProjector) dropUnresolved(subscriptionID, customerID string) Result {
	p.log.Warn("SUBSCRIPTION", fmt.Sprintf("Dropping event for subscription %s: customer %q has no local user", subscriptionID, customerID))
	res := Result{Outcome: OutcomeDropped}
	res.warn(KindMissingData, "resolve user", ErrUnresolvedUser)
	return res
}

func (p *SubscriptionProjector) load(ctx context.Context, userID string) (*models.Subscription, Result, bool) {
	existing, err := p.subs.GetSubscription(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return &models.Subscription{UserID: userID}, Result{}, false
	}
	if err != nil {
		return nil, fail(OutcomeFailed, "", newError(KindInternal, "load subscription", err)), true
	}
	return existing, Result{}, false
}

func (p *SubscriptionProjector) save(ctx context.Context, userID string, projection *models.Subscription, source string) Result {
	saved, err := p.subs.UpsertSubscription(ctx, userID, projection)
	if err != nil {
		p.log.Error("SUBSCRIPTION", fmt.Sprintf("Failed to save projection for user %s: %v", userID, err))
		return fail(OutcomeFailed, "", newError(KindInternal, "save subscription", err))
	}
	p.log.Info("SUBSCRIPTION", fmt.Sprintf("Projection for user %s now %s (from %s)", userID, saved.Status, source))

	res := Result{Outcome: OutcomeUpdated}
	if p.publisher != nil {
		event := &models.SubscriptionEvent{
			Type:                 models.EventSubscriptionUpdated,
			UserID:               userID,
			StripeSubscriptionID: saved.StripeSubscriptionID,
			Status:               saved.Status,
			Source:               source,
			OccurredAt:           p.now(),
		}
		if err := p.publisher.PublishSubscriptionEvent(ctx, event); err != nil {
			res.warn(KindSideEffect, "publish "+models.EventSubscriptionUpdated, err)
		}
	}
	return res
}
