package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const activeTokenIndex = "idx_orders_active_pickup_token"

const orderColumns = `id, human_order_id, owner_identity, owner_display_name, items, total_amount,
	status, pickup_token, last_notification, version, created_at, updated_at`

type PostgresOrderRepository struct {
	db     *sql.DB
	outbox bool
}

// NewPostgresOrderRepository connects to Postgres. With outbox set, every order
// change also records an order_outbox row in the same transaction.
func NewPostgresOrderRepository(cred *Credentials, outbox bool) (*PostgresOrderRepository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &PostgresOrderRepository{db: db, outbox: outbox}, nil
}

func (r *PostgresOrderRepository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}
	return nil
}

func (r *PostgresOrderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO orders (` + orderColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = tx.ExecContext(ctx, query,
		order.ID,
		order.HumanOrderID,
		order.OwnerIdentity,
		order.OwnerDisplayName,
		itemsJSON,
		order.TotalAmount,
		order.Status,
		nullableToken(order.PickupToken),
		order.LastNotification,
		order.Version,
		order.CreatedAt,
		order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	if err := r.writeOutbox(ctx, tx, order.ID, EventOrderCreated, order); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PostgresOrderRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	return order, nil
}

func (r *PostgresOrderRepository) ListOrdersByOwner(ctx context.Context, ownerIdentity string) ([]*domain.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE owner_identity = $1 ORDER BY created_at DESC`,
		ownerIdentity)
}

func (r *PostgresOrderRepository) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	return r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

func (r *PostgresOrderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

func (r *PostgresOrderRepository) UpdateOrder(ctx context.Context, order *domain.Order, expectedVersion int64, eventType string) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// total_amount is never written after insert and a token, once set, sticks.
	query := `UPDATE orders
	          SET status = $3,
	              pickup_token = COALESCE(pickup_token, $4),
	              items = $5,
	              last_notification = $6,
	              updated_at = $7,
	              version = version + 1
	          WHERE id = $1 AND version = $2 AND status = ANY($8)
	          RETURNING version, pickup_token`

	var (
		version int64
		token   sql.NullString
	)
	err = tx.QueryRowContext(ctx, query,
		order.ID,
		expectedVersion,
		order.Status,
		nullableToken(order.PickupToken),
		itemsJSON,
		order.LastNotification,
		order.UpdatedAt,
		pq.Array(predecessors(order.Status)),
	).Scan(&version, &token)
	if errors.Is(err, sql.ErrNoRows) {
		return r.explainMissedUpdate(ctx, tx, order.ID, expectedVersion)
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == activeTokenIndex {
			return ErrPickupTokenTaken
		}
		return fmt.Errorf("update order: %w", err)
	}

	order.Version = version
	if token.Valid {
		order.PickupToken = &token.String
	}

	if err := r.writeOutbox(ctx, tx, order.ID, eventType, order); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PostgresOrderRepository) explainMissedUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID, expectedVersion int64) error {
	var version int64
	err := tx.QueryRowContext(ctx, `SELECT version FROM orders WHERE id = $1`, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("query order version: %w", err)
	}
	if version != expectedVersion {
		return ErrVersionConflict
	}
	return ErrIllegalStatus
}

func (r *PostgresOrderRepository) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var owner string
	err = tx.QueryRowContext(ctx, `DELETE FROM orders WHERE id = $1 RETURNING owner_identity`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}

	payload := map[string]string{"id": id.String(), "ownerIdentity": owner}
	if err := r.writeOutbox(ctx, tx, id, EventOrderDeleted, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PostgresOrderRepository) writeOutbox(ctx context.Context, tx *sql.Tx, id uuid.UUID, eventType string, payload any) error {
	if !r.outbox {
		return nil
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO order_outbox (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
		id, eventType, payloadJSON)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *PostgresOrderRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, payload, created_at
		 FROM order_outbox WHERE processed_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	events := make([]*OutboxEvent, 0)
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox iteration error: %w", err)
	}
	return events, nil
}

func (r *PostgresOrderRepository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE order_outbox SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event processed: %w", err)
	}
	return nil
}

func (r *PostgresOrderRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order     domain.Order
		itemsJSON []byte
		token     sql.NullString
	)
	err := row.Scan(
		&order.ID,
		&order.HumanOrderID,
		&order.OwnerIdentity,
		&order.OwnerDisplayName,
		&itemsJSON,
		&order.TotalAmount,
		&order.Status,
		&token,
		&order.LastNotification,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if token.Valid {
		order.PickupToken = &token.String
	}
	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	return &order, nil
}

func nullableToken(token *string) sql.NullString {
	if token == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *token, Valid: true}
}

// predecessors lists the statuses a stored order may have before moving to next.
func predecessors(next domain.OrderStatus) []string {
	statuses := []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusAccepted,
		domain.OrderStatusRejected,
		domain.OrderStatusReadyToServe,
		domain.OrderStatusCollected,
	}
	out := []string{string(next)}
	for _, s := range statuses {
		if s.CanTransitionTo(next) {
			out = append(out, string(s))
		}
	}
	return out
}
