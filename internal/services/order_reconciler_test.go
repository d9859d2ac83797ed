package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"payment-reconciler/internal/models"
)

func baseIntent(id string) models.PaymentIntentPayload {
	return models.PaymentIntentPayload{
		ID:       id,
		Amount:   5000,
		Currency: "usd",
		Metadata: map[string]string{
			models.MetaSellerID:      "S1",
			models.MetaProductionID:  "P1",
			models.MetaPerformanceID: "PF1",
		},
	}
}

func TestSynthesis_OrderWithoutTickets(t *testing.T) {
	p := newPipeline()
	pi := baseIntent("pi_A")
	p.provider.addIntent(pi)

	res := p.reconciler.HandleSucceeded(context.Background(), &pi, "")

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, 1, p.store.CountOrders())

	order, err := p.store.GetOrder(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, order.PaymentStatus)
	assert.Equal(t, models.OrderConfirmed, order.Status)
	assert.Equal(t, int64(5000), order.TotalAmount)
	assert.NotNil(t, order.Tickets)
	assert.Empty(t, order.Tickets)
	assert.Equal(t, "S1", order.SellerID)
	assert.Equal(t, "pi_A", order.PaymentIntentID)
	assert.Equal(t, "card", order.PaymentMethod)

	// order id written back onto the payment intent
	live, _ := p.provider.GetPaymentIntent(context.Background(), "pi_A", "")
	assert.Equal(t, res.OrderID, live.Meta(models.MetaOrderID))

	// no email anywhere: notifications silently skipped
	p.notifier.AssertNotCalled(t, "SendReceipt", mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, p.publisher.orders, 1)
	assert.Equal(t, models.EventOrderConfirmed, p.publisher.orders[0].Type)
}

func TestSynthesis_MaterializesOneTicket(t *testing.T) {
	p := newPipeline()
	p.allowNotifications()
	pi := baseIntent("pi_B")
	pi.Metadata[models.MetaTickets] = `[{"section":"A","row":"1","seatNumber":"5","price":5000}]`
	pi.Metadata[models.MetaEmail] = "buyer@example.com"
	p.provider.addIntent(pi)

	res := p.reconciler.HandleSucceeded(context.Background(), &pi, "")
	require.NoError(t, res.Err)
	assert.Empty(t, res.Warnings)

	order, err := p.store.GetOrder(context.Background(), res.OrderID)
	require.NoError(t, err)
	tickets, err := p.store.ListTickets(context.Background(), res.OrderID)
	require.NoError(t, err)

	require.Len(t, tickets, 1)
	assert.Equal(t, int64(5000), tickets[0].Price)
	assert.Equal(t, models.TicketValid, tickets[0].Status)
	assert.Equal(t, "A", tickets[0].Section)
	assert.Equal(t, "https://tickets.example.com/orders/"+order.ID+"?token="+order.ViewToken, tickets[0].QRCode)
	assert.Equal(t, []string{tickets[0].ID}, order.Tickets)

	p.notifier.AssertCalled(t, "SendReceipt", mock.Anything, "buyer@example.com", mock.Anything)
	p.notifier.AssertCalled(t, "SendTickets", mock.Anything, "buyer@example.com", mock.Anything, mock.Anything)
}

func TestRedeliveryWithOrderIDIsNoop(t *testing.T) {
	p := newPipeline()
	p.allowNotifications()
	pi := baseIntent("pi_C")
	pi.Metadata[models.MetaEmail] = "buyer@example.com"
	p.provider.addIntent(pi)

	first := p.reconciler.HandleSucceeded(context.Background(), &pi, "")
	require.NoError(t, first.Err)

	redelivered := baseIntent("pi_C")
	redelivered.Metadata[models.MetaOrderID] = first.OrderID
	second := p.reconciler.HandleSucceeded(context.Background(), &redelivered, "")

	require.NoError(t, second.Err)
	assert.Equal(t, OutcomeNoop, second.Outcome)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, 1, p.store.CountOrders())

	order, _ := p.store.GetOrder(context.Background(), first.OrderID)
	assert.Equal(t, models.PaymentPaid, order.PaymentStatus)
	p.notifier.AssertNumberOfCalls(t, "SendReceipt", 1)
}

func TestIdempotence_SnapshotRedeliveryFindsWriteBack(t *testing.T) {
	p := newPipeline(withoutLedger())
	pi := baseIntent("pi_I")
	p.provider.addIntent(pi)

	// both deliveries carry the original snapshot without an order id
	snapshot1, snapshot2 := baseIntent("pi_I"), baseIntent("pi_I")
	first := p.reconciler.HandleSucceeded(context.Background(), &snapshot1, "")
	second := p.reconciler.HandleSucceeded(context.Background(), &snapshot2, "")

	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.Equal(t, OutcomeCreated, first.Outcome)
	assert.Equal(t, OutcomeNoop, second.Outcome)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, 1, p.store.CountOrders())
}

func TestIdempotence_LedgerCoversFailedWriteBack(t *testing.T) {
	p := newPipeline()
	p.provider.updateErr = errors.New("stripe unavailable")
	pi := baseIntent("pi_L")
	p.provider.addIntent(pi)

	snapshot1, snapshot2 := baseIntent("pi_L"), baseIntent("pi_L")
	first := p.reconciler.HandleSucceeded(context.Background(), &snapshot1, "")
	second := p.reconciler.HandleSucceeded(context.Background(), &snapshot2, "")

	require.NoError(t, first.Err)
	require.Len(t, first.Warnings, 1)
	assert.Equal(t, KindSideEffect, KindOf(first.Warnings[0]))

	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, 1, p.store.CountOrders())
}

func TestSynthesis_ViewTokenExpiresAfterTwoYears(t *testing.T) {
	p := newPipeline()
	pi := baseIntent("pi_T")
	p.provider.addIntent(pi)

	res := p.reconciler.HandleSucceeded(context.Background(), &pi, "")
	require.NoError(t, res.Err)

	order, _ := p.store.GetOrder(context.Background(), res.OrderID)
	assert.NotEmpty(t, order.ViewToken)
	assert.Equal(t, fixedNow, order.CreatedAt)
	// 2026-03-01 plus two years crosses 2028-02-29
	assert.Equal(t, time.Date(2028, 3, 1, 12, 0, 0, 0, time.UTC), order.ViewTokenExpiresAt)
}

func TestSynthesis_MissingRequiredMetadataDropsEvent(t *testing.T) {
	p := newPipeline()
	pi := baseIntent("pi_M")
	delete(pi.Metadata, models.MetaProductionID)
	delete(pi.Metadata, models.MetaPerformanceID)
	p.provider.addIntent(pi)

	res := p.reconciler.HandleSucceeded(context.Background(), &pi, "")

	assert.Equal(t, OutcomeDropped, res.Outcome)
	assert.Equal(t, KindMissingData, KindOf(res.Err))
	assert.ErrorIs(t, res.Err, ErrMissingMetadata)
	assert.Contains(t, res.Err.Error(), "productionId, performanceId")
	assert.Zero(t, p.store.CountOrders())
}

func TestSynthesis_DisplayFieldsAndJoinedAddress(t *testing.T) {
	p := newPipeline()
	pi := baseIntent("pi_V")
	pi.Metadata[models.MetaProductionName] = "Hamlet"
	pi.Metadata[models.MetaVenueName] = "Globe"
	pi.Metadata[models.MetaVenueStreet] = "21 New Globe Walk"
	pi.Metadata[models.MetaVenueCity] = "London"
	pi.Metadata[models.MetaVenueZip] = "SE1 9DT"
	pi.Metadata[models.MetaPerformanceDate] = "2026-06-01"
	pi.Metadata[models.MetaBuyerID] = "u_1"
	p.provider.addIntent(pi)

	res := p.reconciler.HandleSucceeded(context.Background(), &pi, "")
	require.NoError(t, res.Err)

	order, _ := p.store.GetOrder(context.Background(), res.OrderID)
	assert.Equal(t, "Hamlet", order.ProductionName)
	assert.Equal(t, "Globe", order.VenueName)
	assert.Equal(t, "21 New Globe Walk, London, SE1 9DT", order.VenueAddress)
	assert.Equal(t, "2026-06-01", order.PerformanceDate)
	assert.Equal(t, "u_1", order.BuyerID)
}

func TestSynthesis_WritesBackOnConnectedAccount(t *testing.T) {
	p := newPipeline()
	pi := baseIntent("pi_ACCT")
	p.provider.addIntent(pi)

	res := p.reconciler.HandleSucceeded(context.Background(), &pi, "acct_seller")
	require.NoError(t, res.Err)

	assert.Equal(t, "acct_seller", p.provider.lastAccount)
	order, _ := p.store.GetOrder(context.Background(), res.OrderID)
	assert.Equal(t, "acct_seller", order.StripeAccountID)
}

func TestSynthesis_PartialTicketFailure(t *testing.T) {
	p := newPipeline()
	p.reconciler.tickets = flakyTickets{p.store}
	p.reconciler.materializer = NewTicketMaterializer(flakyTickets{p.store}, p.store, "https://tickets.example.com", p.reconciler.log)

	pi := baseIntent("pi_P")
	pi.Metadata[models.MetaTickets] = `[
		{"section":"A","row":"1","seatNumber":"1","price":2500},
		{"section":"FAIL","row":"1","seatNumber":"2","price":2500},
		{"section":"A","row":"1","seatNumber":"3","price":-1},
		{"section":"A","row":"1","seatNumber":"4","price":0}
	]`
	p.provider.addIntent(pi)

	res := p.reconciler.HandleSucceeded(context.Background(), &pi, "")

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	require.Len(t, res.Warnings, 2)
	for _, w := range res.Warnings {
		assert.Equal(t, KindPartial, KindOf(w))
	}

	order, _ := p.store.GetOrder(context.Background(), res.OrderID)
	tickets, _ := p.store.ListTickets(context.Background(), res.OrderID)
	assert.Len(t, order.Tickets, 2)
	assert.Len(t, tickets, len(order.Tickets))
	assert.LessOrEqual(t, len(order.Tickets), 4)
}

func TestSynthesis_InvalidTicketsMetadataStillCreatesOrder(t *testing.T) {
	p := newPipeline()
	pi := baseIntent("pi_J")
	pi.Metadata[models.MetaTickets] = `[{"section":`
	p.provider.addIntent(pi)

	res := p.reconciler.HandleSucceeded(context.Background(), &pi, "")

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, KindMissingData, KindOf(res.Warnings[0]))
}

func TestConfirm_PendingOrderBecomesPaidAndNotifies(t *testing.T) {
	p := newPipeline()
	p.allowNotifications()
	ctx := context.Background()

	_, err := p.store.UpsertOrder(ctx, &models.Order{
		ID: "ord_pending", BuyerID: "u_9", Status: models.OrderPending, PaymentStatus: models.PaymentPending,
	})
	require.NoError(t, err)
	_, err = p.store.UpsertTicket(ctx, "ord_pending", &models.Ticket{ID: "tkt_1", Status: models.TicketValid})
	require.NoError(t, err)
	p.store.SaveUser(&models.User{ID: "u_9", Email: "nine@example.com"})

	pi := baseIntent("pi_X")
	pi.Metadata[models.MetaOrderID] = "ord_pending"
	res := p.reconciler.HandleSucceeded(ctx, &pi, "")

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeUpdated, res.Outcome)

	order, _ := p.store.GetOrder(ctx, "ord_pending")
	assert.Equal(t, models.PaymentPaid, order.PaymentStatus)
	assert.Equal(t, models.OrderConfirmed, order.Status)

	p.notifier.AssertCalled(t, "SendReceipt", mock.Anything, "nine@example.com", mock.Anything)
	p.notifier.AssertCalled(t, "SendTickets", mock.Anything, "nine@example.com", mock.Anything,
		mock.MatchedBy(func(ts []*models.Ticket) bool { return len(ts) == 1 && ts[0].ID == "tkt_1" }))
}

func TestConfirm_UnknownOrderIsNotFound(t *testing.T) {
	p := newPipeline()
	pi := baseIntent("pi_N")
	pi.Metadata[models.MetaOrderID] = "ord_missing"

	res := p.reconciler.HandleSucceeded(context.Background(), &pi, "")

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, KindNotFound, KindOf(res.Err))
	assert.Zero(t, p.store.CountOrders())
}

func TestConfirm_FailedOrderCannotBecomePaid(t *testing.T) {
	p := newPipeline()
	ctx := context.Background()
	_, err := p.store.UpsertOrder(ctx, &models.Order{ID: "ord_f", Status: models.OrderCancelled, PaymentStatus: models.PaymentFailed})
	require.NoError(t, err)

	pi := baseIntent("pi_F")
	pi.Metadata[models.MetaOrderID] = "ord_f"
	res := p.reconciler.HandleSucceeded(ctx, &pi, "")

	assert.Equal(t, KindIllegalTransition, KindOf(res.Err))
	assert.ErrorIs(t, res.Err, models.ErrIllegalTransition)
	order, _ := p.store.GetOrder(ctx, "ord_f")
	assert.Equal(t, models.PaymentFailed, order.PaymentStatus)
}

func TestNotificationFailureLeavesOrderPaid(t *testing.T) {
	p := newPipeline()
	p.notifier.On("SendReceipt", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	p.notifier.On("SendTickets", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	pi := baseIntent("pi_E")
	pi.Metadata[models.MetaEmail] = "buyer@example.com"
	pi.Metadata[models.MetaTickets] = `[{"section":"A","row":"1","seatNumber":"1","price":100}]`
	p.provider.addIntent(pi)

	res := p.reconciler.HandleSucceeded(context.Background(), &pi, "")

	require.NoError(t, res.Err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, KindSideEffect, KindOf(res.Warnings[0]))
	// the tickets message is still attempted after the receipt failed
	p.notifier.AssertNumberOfCalls(t, "SendTickets", 1)

	order, _ := p.store.GetOrder(context.Background(), res.OrderID)
	assert.Equal(t, models.PaymentPaid, order.PaymentStatus)
}

func TestPaymentFailedCancelsOrder(t *testing.T) {
	p := newPipeline()
	ctx := context.Background()
	_, err := p.store.UpsertOrder(ctx, &models.Order{ID: "ord_d", Status: models.OrderPending, PaymentStatus: models.PaymentPending})
	require.NoError(t, err)

	pi := baseIntent("pi_D")
	pi.Metadata[models.MetaOrderID] = "ord_d"
	res := p.reconciler.HandleFailed(ctx, &pi)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeUpdated, res.Outcome)
	order, _ := p.store.GetOrder(ctx, "ord_d")
	assert.Equal(t, models.PaymentFailed, order.PaymentStatus)
	assert.Equal(t, models.OrderCancelled, order.Status)

	require.Len(t, p.publisher.orders, 1)
	assert.Equal(t, models.EventOrderCancelled, p.publisher.orders[0].Type)

	again := p.reconciler.HandleFailed(ctx, &pi)
	assert.Equal(t, OutcomeNoop, again.Outcome)
}

func TestPaymentFailedWithoutOrderIDNeverSynthesizes(t *testing.T) {
	p := newPipeline()
	pi := baseIntent("pi_nf")

	res := p.reconciler.HandleFailed(context.Background(), &pi)

	assert.NoError(t, res.Err)
	assert.Equal(t, OutcomeDropped, res.Outcome)
	assert.Zero(t, p.store.CountOrders())
}

func TestPaymentFailedAfterPaidIsRejected(t *testing.T) {
	p := newPipeline()
	ctx := context.Background()
	_, err := p.store.UpsertOrder(ctx, &models.Order{ID: "ord_p", Status: models.OrderConfirmed, PaymentStatus: models.PaymentPaid})
	require.NoError(t, err)

	pi := baseIntent("pi_pf")
	pi.Metadata[models.MetaOrderID] = "ord_p"
	res := p.reconciler.HandleFailed(ctx, &pi)

	assert.Equal(t, KindIllegalTransition, KindOf(res.Err))
	order, _ := p.store.GetOrder(ctx, "ord_p")
	assert.Equal(t, models.PaymentPaid, order.PaymentStatus)
}
