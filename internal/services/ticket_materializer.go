package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"payment-reconciler/internal/logger"
	"payment-reconciler/internal/models"
	"payment-reconciler/internal/storage"
	"payment-reconciler/internal/utils"
)

var ErrNegativePrice = errors.New("ticket price must not be negative")

// TicketMaterializer turns ticket specs carried in payment metadata into
// Ticket rows for a freshly synthesized order.
type TicketMaterializer struct {
	tickets storage.TicketStore
	orders  storage.OrderStore
	baseURL string
	log     *logger.Logger
}

func NewTicketMaterializer(tickets storage.TicketStore, orders storage.OrderStore, baseURL string, log *logger.Logger) *TicketMaterializer {
	return &TicketMaterializer{
		tickets: tickets,
		orders:  orders,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

// ParseTicketSpecs decodes the JSON list stored under the "tickets" metadata key.
func ParseTicketSpecs(raw string) ([]models.TicketSpec, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var specs []models.TicketSpec
	if err := json.Unmarshal([]byte(raw), &specs); err != nil {
		return nil, fmt.Errorf("invalid tickets metadata: %w", err)
	}
	return specs, nil
}

// Materialize persists one ticket per spec. A spec that fails is logged and
// skipped; the order's ticket list is then set to the ids actually written.
// It returns the persisted tickets and one error per skipped spec.
func (m *TicketMaterializer) Materialize(ctx context.Context, orderID, viewToken string, specs []models.TicketSpec) ([]*models.Ticket, []error) {
	qr := utils.OrderViewURL(m.baseURL, orderID, viewToken)

	var (
		persisted []*models.Ticket
		failures  []error
	)
	for i, spec := range specs {
		if spec.Price < 0 {
			m.log.Warn("TICKETS", fmt.Sprintf("Skipping ticket %d for order %s: price %d", i, orderID, spec.Price))
			failures = append(failures, fmt.Errorf("ticket %d: %w", i, ErrNegativePrice))
			continue
		}

		ticket := &models.Ticket{
			ID:         utils.GenerateTicketID(),
			OrderID:    orderID,
			SeatID:     spec.SeatID,
			Section:    spec.Section,
			Row:        spec.Row,
			SeatNumber: spec.SeatNumber,
			Price:      spec.Price,
			Status:     models.TicketValid,
			QRCode:     qr,
		}
		saved, err := m.tickets.UpsertTicket(ctx, orderID, ticket)
		if err != nil {
			m.log.Error("TICKETS", fmt.Sprintf("Failed to persist ticket %d for order %s: %v", i, orderID, err))
			failures = append(failures, fmt.Errorf("ticket %d: %w", i, err))
			continue
		}
		persisted = append(persisted, saved)
	}

	ids := make([]string, 0, len(persisted))
	for _, t := range persisted {
		ids = append(ids, t.ID)
	}
	if err := m.setOrderTickets(ctx, orderID, ids); err != nil {
		m.log.Error("TICKETS", fmt.Sprintf("Failed to record ticket ids on order %s: %v", orderID, err))
		failures = append(failures, err)
	}

	m.log.Info("TICKETS", fmt.Sprintf("Materialized %d/%d tickets for order %s", len(persisted), len(specs), orderID))
	return persisted, failures
}

func (m *TicketMaterializer) setOrderTickets(ctx context.Context, orderID string, ids []string) error {
	order, err := m.orders.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}
	order.Tickets = ids
	if _, err := m.orders.UpsertOrder(ctx, order); err != nil {
		return fmt.Errorf("save ticket ids on order %s: %w", orderID, err)
	}
	return nil
}
