package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"payment-reconciler/internal/models"
)

// InMemoryStore backs development runs (DB_DRIVER=memory) and tests.
// Values are copied on the way in and out so callers never share state.
type InMemoryStore struct {
	orders        map[string]models.Order
	tickets       map[string]map[string]models.Ticket
	subscriptions map[string]models.Subscription
	users         map[string]models.User
	mutex         sync.RWMutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		orders:        make(map[string]models.Order),
		tickets:       make(map[string]map[string]models.Ticket),
		subscriptions: make(map[string]models.Subscription),
		users:         make(map[string]models.User),
	}
}

func (s *InMemoryStore) GetOrder(_ context.Context, orderID string) (*models.Order, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	order, exists := s.orders[orderID]
	if !exists {
		return nil, ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *InMemoryStore) UpsertOrder(_ context.Context, order *models.Order) (*models.Order, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stored := *cloneOrder(*order)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = time.Now().UTC()
	s.orders[stored.ID] = stored
	return cloneOrder(stored), nil
}

func (s *InMemoryStore) UpdatePaymentStatus(_ context.Context, orderID string, status models.PaymentStatus) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	order, exists := s.orders[orderID]
	if !exists {
		return ErrNotFound
	}
	order.PaymentStatus = status
	order.UpdatedAt = time.Now().UTC()
	s.orders[orderID] = order
	return nil
}

func (s *InMemoryStore) UpdateOrderStatus(_ context.Context, orderID string, status models.OrderStatus) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	order, exists := s.orders[orderID]
	if !exists {
		return ErrNotFound
	}
	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	s.orders[orderID] = order
	return nil
}

// CountOrders is used by tests asserting idempotent synthesis.
func (s *InMemoryStore) CountOrders() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.orders)
}

func (s *InMemoryStore) UpsertTicket(_ context.Context, orderID string, ticket *models.Ticket) (*models.Ticket, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stored := *ticket
	stored.OrderID = orderID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if s.tickets[orderID] == nil {
		s.tickets[orderID] = make(map[string]models.Ticket)
	}
	s.tickets[orderID][stored.ID] = stored
	out := stored
	return &out, nil
}

func (s *InMemoryStore) ListTickets(_ context.Context, orderID string) ([]*models.Ticket, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tickets := make([]*models.Ticket, 0, len(s.tickets[orderID]))
	for _, t := range s.tickets[orderID] {
		t := t
		tickets = append(tickets, &t)
	}
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].ID < tickets[j].ID
		}
		return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
	})
	return tickets, nil
}

func (s *InMemoryStore) GetSubscription(_ context.Context, userID string) (*models.Subscription, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sub, exists := s.subscriptions[userID]
	if !exists {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (s *InMemoryStore) UpsertSubscription(_ context.Context, userID string, sub *models.Subscription) (*models.Subscription, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stored := *sub
	stored.UserID = userID
	stored.UpdatedAt = time.Now().UTC()
	s.subscriptions[userID] = stored
	return &stored, nil
}

func (s *InMemoryStore) GetUser(_ context.Context, userID string) (*models.User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	user, exists := s.users[userID]
	if !exists {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (s *InMemoryStore) FindUsersByStripeCustomerID(_ context.Context, customerID string) ([]*models.User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var users []*models.User
	for _, u := range s.users {
		if customerID != "" && u.StripeCustomerID == customerID {
			u := u
			users = append(users, &u)
		}
	}
	return users, nil
}

// SaveUser seeds a user; users are owned by the CRUD side of the system.
func (s *InMemoryStore) SaveUser(user *models.User) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.users[user.ID] = *user
}

func (s *InMemoryStore) Close() error { return nil }

func cloneOrder(o models.Order) *models.Order {
	if o.Tickets != nil {
		tickets := make([]string, len(o.Tickets))
		copy(tickets, o.Tickets)
		o.Tickets = tickets
	}
	return &o
}
