package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrItemNotFound     = errors.New("item not found in cart")
	ErrMenuItemNotFound = errors.New("menu item not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrVersionConflict  = errors.New("order was modified concurrently")
	ErrPickupTokenTaken = errors.New("pickup token already in use by an active order")
	ErrIllegalStatus    = errors.New("illegal order status change")
)

// Outbox event types written alongside order changes.
const (
	EventOrderCreated  = "OrderCreated"
	EventOrderAccepted = "OrderAccepted"
	EventOrderRejected = "OrderRejected"
	EventOrderUpdated  = "OrderUpdated"
	EventOrderDeleted  = "OrderDeleted"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// CartRepository defines the interface for cart data operations
type CartRepository interface {
	GetCart(ctx context.Context, ownerID string) (*domain.Cart, error)
	// IncrementItem bumps the line quantity by one, creating cart and line as needed.
	IncrementItem(ctx context.Context, ownerID string, line domain.CartLine) error
	SetItemQuantity(ctx context.Context, ownerID, itemID string, quantity int) error
	RemoveItem(ctx context.Context, ownerID, itemID string) error
	DeleteCart(ctx context.Context, ownerID string) error
}

type MenuRepository interface {
	ListItems(ctx context.Context) ([]*domain.MenuItem, error)
	GetItem(ctx context.Context, id string) (*domain.MenuItem, error)
	CreateItem(ctx context.Context, item *domain.MenuItem) error
	DeleteItem(ctx context.Context, id string) error
}

type DeviceRepository interface {
	SaveToken(ctx context.Context, token domain.DeviceToken) error
	TokensFor(ctx context.Context, ownerIdentity string) ([]string, error)
	RemoveToken(ctx context.Context, token string) error
}

// OrderRepository stores orders. UpdateOrder is a compare-and-swap on Version:
// it fails with ErrVersionConflict unless the stored version equals expectedVersion,
// and on success leaves order.Version incremented.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByOwner(ctx context.Context, ownerIdentity string) ([]*domain.Order, error)
	ListOrders(ctx context.Context) ([]*domain.Order, error)
	UpdateOrder(ctx context.Context, order *domain.Order, expectedVersion int64, eventType string) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	Close() error
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}
