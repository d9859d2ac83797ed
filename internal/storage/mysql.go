package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"

	"payment-reconciler/internal/config"
	"payment-reconciler/internal/logger"
	"payment-reconciler/internal/models"
)

type MySQLStore struct {
	db  *bun.DB
	log *logger.Logger
}

// DSN builds the go-sql-driver DSN. clientFoundRows makes UPDATE report matched
// rows, so an unchanged status is not mistaken for a missing order.
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}

func NewMySQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*MySQLStore, error) {
	log.LogDatabase("CONNECT", "mysql", fmt.Sprintf("Connecting to MySQL at %s:%s", cfg.Host, cfg.Port))

	sqldb, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		log.Error("DATABASE", "Failed to open MySQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqldb.PingContext(ctx); err != nil {
		log.Error("DATABASE", "Failed to ping MySQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &MySQLStore{
		db:  bun.NewDB(sqldb, mysqldialect.New()),
		log: log,
	}

	if err := store.InitSchema(ctx); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "mysql", "MySQL connection established and tables initialized")
	return store, nil
}

// InitSchema creates the pipeline's tables when missing.
func (s *MySQLStore) InitSchema(ctx context.Context) error {
	tables := []interface{}{
		(*models.Order)(nil),
		(*models.Ticket)(nil),
		(*models.Subscription)(nil),
		(*models.User)(nil),
	}
	for _, model := range tables {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}

	indexes := []struct {
		model  interface{}
		name   string
		column string
	}{
		{(*models.Order)(nil), "idx_orders_payment_intent", "payment_intent_id"},
		{(*models.Ticket)(nil), "idx_tickets_order", "order_id"},
		{(*models.User)(nil), "idx_users_stripe_customer", "stripe_customer_id"},
	}
	for _, idx := range indexes {
		_, err := s.db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.column).Exec(ctx)
		if err != nil && !isDuplicateIndex(err) {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	s.log.LogDatabase("MIGRATE", "mysql", "orders, tickets, subscriptions and users tables ready")
	return nil
}

func (s *MySQLStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	s.log.LogDatabase("SELECT", "mysql", fmt.Sprintf("Fetching order %s", orderID))

	order := new(models.Order)
	err := s.db.NewSelect().Model(order).Where("id = ?", orderID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.log.LogDatabase("NOT_FOUND", "mysql", fmt.Sprintf("Order %s not found", orderID))
			return nil, ErrNotFound
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get order %s: %s", orderID, err.Error()))
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (s *MySQLStore) UpsertOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	s.log.LogDatabase("UPSERT", "mysql", fmt.Sprintf("Saving order %s", order.ID))

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.Tickets == nil {
		order.Tickets = []string{}
	}

	if _, err := s.db.NewInsert().Model(order).On("DUPLICATE KEY UPDATE").Exec(ctx); err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save order %s: %s", order.ID, err.Error()))
		return nil, fmt.Errorf("failed to save order: %w", err)
	}
	return order, nil
}

func (s *MySQLStore) UpdatePaymentStatus(ctx context.Context, orderID string, status models.PaymentStatus) error {
	return s.updateOrderColumn(ctx, orderID, "payment_status", string(status))
}

func (s *MySQLStore) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) error {
	return s.updateOrderColumn(ctx, orderID, "status", string(status))
}

func (s *MySQLStore) updateOrderColumn(ctx context.Context, orderID, column, value string) error {
	s.log.LogDatabase("UPDATE", "mysql", fmt.Sprintf("Setting %s=%s on order %s", column, value, orderID))

	res, err := s.db.NewUpdate().
		Model((*models.Order)(nil)).
		Set("? = ?", bun.Ident(column), value).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", orderID).
		Exec(ctx)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to update order %s: %s", orderID, err.Error()))
		return fmt.Errorf("failed to update order: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MySQLStore) UpsertTicket(ctx context.Context, orderID string, ticket *models.Ticket) (*models.Ticket, error) {
	ticket.OrderID = orderID
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}

	if _, err := s.db.NewInsert().Model(ticket).On("DUPLICATE KEY UPDATE").Exec(ctx); err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save ticket %s for order %s: %s", ticket.ID, orderID, err.Error()))
		return nil, fmt.Errorf("failed to save ticket: %w", err)
	}
	s.log.LogDatabase("UPSERT", "mysql", fmt.Sprintf("Ticket %s saved for order %s", ticket.ID, orderID))
	return ticket, nil
}

func (s *MySQLStore) ListTickets(ctx context.Context, orderID string) ([]*models.Ticket, error) {
	var tickets []*models.Ticket
	err := s.db.NewSelect().
		Model(&tickets).
		Where("order_id = ?", orderID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to list tickets for order %s: %s", orderID, err.Error()))
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	s.log.LogDatabase("SELECT", "mysql", fmt.Sprintf("Listed %d tickets for order %s", len(tickets), orderID))
	return tickets, nil
}

func (s *MySQLStore) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	sub := new(models.Subscription)
	err := s.db.NewSelect().Model(sub).Where("user_id = ?", userID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

func (s *MySQLStore) UpsertSubscription(ctx context.Context, userID string, sub *models.Subscription) (*models.Subscription, error) {
	sub.UserID = userID
	sub.UpdatedAt = time.Now().UTC()

	if _, err := s.db.NewInsert().Model(sub).On("DUPLICATE KEY UPDATE").Exec(ctx); err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save subscription for user %s: %s", userID, err.Error()))
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	s.log.LogDatabase("UPSERT", "mysql", fmt.Sprintf("Subscription projection saved for user %s (status=%s)", userID, sub.Status))
	return sub, nil
}

func (s *MySQLStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user := new(models.User)
	err := s.db.NewSelect().Model(user).Where("id = ?", userID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *MySQLStore) FindUsersByStripeCustomerID(ctx context.Context, customerID string) ([]*models.User, error) {
	var users []*models.User
	err := s.db.NewSelect().Model(&users).Where("stripe_customer_id = ?", customerID).Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to find users by customer: %w", err)
	}
	return users, nil
}

func (s *MySQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "mysql", "Closing MySQL connection")
	return s.db.Close()
}

// isDuplicateIndex reports MySQL error 1061 (duplicate key name).
func isDuplicateIndex(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1061
}
