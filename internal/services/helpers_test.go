package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"payment-reconciler/internal/logger"
	"payment-reconciler/internal/models"
	"payment-reconciler/internal/storage"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeProvider keeps payment intents in memory so metadata write-backs are
// visible to later reads, like the live Stripe object.
type fakeProvider struct {
	mu          sync.Mutex
	intents     map[string]*models.PaymentIntentPayload
	customers   map[string]*Customer
	updateErr   error
	updates     int
	lastAccount string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		intents:   make(map[string]*models.PaymentIntentPayload),
		customers: make(map[string]*Customer),
	}
}

func (f *fakeProvider) addIntent(pi models.PaymentIntentPayload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	md := make(map[string]string, len(pi.Metadata))
	for k, v := range pi.Metadata {
		md[k] = v
	}
	pi.Metadata = md
	f.intents[pi.ID] = &pi
}

func (f *fakeProvider) GetPaymentIntent(_ context.Context, id, _ string) (*models.PaymentIntentPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pi, ok := f.intents[id]
	if !ok {
		return nil, ErrProviderObjectNotFound
	}
	cp := *pi
	cp.Metadata = make(map[string]string, len(pi.Metadata))
	for k, v := range pi.Metadata {
		cp.Metadata[k] = v
	}
	return &cp, nil
}

func (f *fakeProvider) UpdatePaymentIntentMetadata(_ context.Context, id, account string, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastAccount = account
	if f.updateErr != nil {
		return f.updateErr
	}
	pi, ok := f.intents[id]
	if !ok {
		return ErrProviderObjectNotFound
	}
	for k, v := range metadata {
		pi.Metadata[k] = v
	}
	f.updates++
	return nil
}

func (f *fakeProvider) GetCustomer(_ context.Context, id string) (*Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[id]
	if !ok {
		return nil, ErrProviderObjectNotFound
	}
	return c, nil
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendReceipt(ctx context.Context, to string, order *models.Order) error {
	args := m.Called(ctx, to, order)
	return args.Error(0)
}

func (m *MockNotifier) SendTickets(ctx context.Context, to string, order *models.Order, tickets []*models.Ticket) error {
	args := m.Called(ctx, to, order, tickets)
	return args.Error(0)
}

// memLedger implements both ledgers over maps.
type memLedger struct {
	mu     sync.Mutex
	events map[string]bool
	claims map[string]string
}

func newMemLedger() *memLedger {
	return &memLedger{events: map[string]bool{}, claims: map[string]string{}}
}

func (l *memLedger) ClaimEvent(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.events[id] {
		return false, nil
	}
	l.events[id] = true
	return true, nil
}

func (l *memLedger) ReleaseEvent(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, id)
	return nil
}

func (l *memLedger) ClaimPaymentIntent(_ context.Context, pi, orderID string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if owner, ok := l.claims[pi]; ok {
		return owner, false, nil
	}
	l.claims[pi] = orderID
	return orderID, true, nil
}

func (l *memLedger) ReleasePaymentIntent(_ context.Context, pi, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claims[pi] == orderID {
		delete(l.claims, pi)
	}
	return nil
}

type recordingPublisher struct {
	mu            sync.Mutex
	orders        []*models.OrderEvent
	subscriptions []*models.SubscriptionEvent
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, e *models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, e)
	return nil
}

func (p *recordingPublisher) PublishSubscriptionEvent(_ context.Context, e *models.SubscriptionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptions = append(p.subscriptions, e)
	return nil
}

// flakyTickets fails UpsertTicket for tickets in section "FAIL".
type flakyTickets struct {
	*storage.InMemoryStore
}

func (f flakyTickets) UpsertTicket(ctx context.Context, orderID string, t *models.Ticket) (*models.Ticket, error) {
	if t.Section == "FAIL" {
		return nil, errors.New("write timeout")
	}
	return f.InMemoryStore.UpsertTicket(ctx, orderID, t)
}

// panickyOrders panics on every read.
type panickyOrders struct {
	*storage.InMemoryStore
}

func (panickyOrders) GetOrder(context.Context, string) (*models.Order, error) {
	panic("driver exploded")
}

type pipeline struct {
	store      *storage.InMemoryStore
	provider   *fakeProvider
	notifier   *MockNotifier
	ledger     *memLedger
	publisher  *recordingPublisher
	reconciler *OrderReconciler
	projector  *SubscriptionProjector
	dispatcher *Dispatcher
}

type pipelineOption func(*OrderReconcilerDeps)

func withTickets(ts storage.TicketStore) pipelineOption {
	return func(d *OrderReconcilerDeps) { d.Tickets = ts }
}

func withOrders(orders storage.OrderStore) pipelineOption {
	return func(d *OrderReconcilerDeps) { d.Orders = orders }
}

func withoutLedger() pipelineOption {
	return func(d *OrderReconcilerDeps) { d.Ledger = nil }
}

func newPipeline(opts ...pipelineOption) *pipeline {
	log := logger.Discard()
	p := &pipeline{
		store:     storage.NewInMemoryStore(),
		provider:  newFakeProvider(),
		notifier:  new(MockNotifier),
		ledger:    newMemLedger(),
		publisher: &recordingPublisher{},
	}

	deps := OrderReconcilerDeps{
		Orders:    p.store,
		Tickets:   p.store,
		Users:     p.store,
		Provider:  p.provider,
		Notifier:  NewNotificationDispatcher(p.notifier, log),
		Ledger:    p.ledger,
		Publisher: p.publisher,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	deps.Materializer = NewTicketMaterializer(deps.Tickets, deps.Orders, "https://tickets.example.com", log)

	p.reconciler = NewOrderReconciler(deps, log)
	p.reconciler.now = func() time.Time { return fixedNow }

	p.projector = NewSubscriptionProjector(p.store, NewCustomerResolver(p.provider, p.store, log), p.publisher, log)
	p.projector.now = func() time.Time { return fixedNow }

	var eventLedger EventLedger
	if deps.Ledger != nil {
		eventLedger = p.ledger
	}
	p.dispatcher = NewDispatcher(p.reconciler, p.projector, eventLedger, log)
	return p
}

// allowNotifications accepts any notification send.
func (p *pipeline) allowNotifications() {
	p.notifier.On("SendReceipt", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	p.notifier.On("SendTickets", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
}
