package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	eventKeyPrefix = "stripe_event:"
	synthKeyPrefix = "order_synth:"

	eventProcessing = "processing"
)

// Ledger records which provider events and payment intents have already been
// taken by a worker. Keys expire so the ledger never grows without bound.
type Ledger struct {
	Client   *redis.Client
	eventTTL time.Duration
	claimTTL time.Duration
}

func NewLedger(client *redis.Client, eventTTL, claimTTL time.Duration) *Ledger {
	return &Ledger{Client: client, eventTTL: eventTTL, claimTTL: claimTTL}
}

func EventKey(eventID string) string { return eventKeyPrefix + eventID }

func SynthesisKey(paymentIntentID string) string { return synthKeyPrefix + paymentIntentID }

// ClaimEvent returns false when the event id was already claimed.
func (l *Ledger) ClaimEvent(ctx context.Context, eventID string) (bool, error) {
	ok, err := l.Client.SetNX(ctx, EventKey(eventID), eventProcessing, l.eventTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return ok, nil
}

// ReleaseEvent forgets an event so a later redelivery is processed again.
func (l *Ledger) ReleaseEvent(ctx context.Context, eventID string) error {
	if err := l.Client.Del(ctx, EventKey(eventID)).Err(); err != nil {
		return fmt.Errorf("release event %s: %w", eventID, err)
	}
	return nil
}

// ClaimPaymentIntent reserves orderID as the order synthesized for a payment
// intent. When another worker got there first it returns that worker's order
// id and claimed=false.
func (l *Ledger) ClaimPaymentIntent(ctx context.Context, paymentIntentID, orderID string) (owner string, claimed bool, err error) {
	key := SynthesisKey(paymentIntentID)
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := l.Client.SetNX(ctx, key, orderID, l.claimTTL).Result()
		if err != nil {
			return "", false, fmt.Errorf("claim payment intent %s: %w", paymentIntentID, err)
		}
		if ok {
			return orderID, true, nil
		}

		existing, err := l.Client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue // expired between SETNX and GET
		}
		if err != nil {
			return "", false, fmt.Errorf("read payment intent claim %s: %w", paymentIntentID, err)
		}
		return existing, false, nil
	}
	return "", false, fmt.Errorf("claim payment intent %s: key kept expiring", paymentIntentID)
}

// ReleasePaymentIntent drops the claim, but only when orderID still owns it.
func (l *Ledger) ReleasePaymentIntent(ctx context.Context, paymentIntentID, orderID string) error {
	key := SynthesisKey(paymentIntentID)
	val, err := l.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil // already released
	}
	if err != nil {
		return err
	}
	if val == orderID {
		return l.Client.Del(ctx, key).Err()
	}
	return nil
}

// Ping is used at startup to decide whether the ledger is usable.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.Client.Ping(ctx).Err()
}

func (l *Ledger) Close() error {
	return l.Client.Close()
}
