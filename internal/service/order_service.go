package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/fjod/picknpay/internal/keylock"
	"github.com/fjod/picknpay/internal/repository"
	"github.com/google/uuid"
)

// EventDispatcher fans committed order events out to realtime subscribers.
type EventDispatcher interface {
	Dispatch(event domain.OrderEvent)
}

// Notifier sends best-effort push notifications. It must not block.
type Notifier interface {
	Notify(msg domain.PushMessage)
}

// CartSource is the part of the cart store used when placing orders.
type CartSource interface {
	Checkout(ctx context.Context, ownerID string, fn func(cart *domain.Cart) error) error
}

type OrderServiceConfig struct {
	AdminIdentity       string
	PickupTokenAttempts int
}

type PlaceOrderRequest struct {
	OwnerIdentity    string
	OwnerDisplayName string
	// Lines takes precedence over the cart when non-empty. Only item ids and
	// quantities are used, names and prices come from the menu.
	Lines []domain.OrderLine
}

type OrderService struct {
	repo   repository.OrderRepository
	carts  CartSource
	menu   MenuLookup
	events EventDispatcher
	push   Notifier
	locks  *keylock.KeyLock
	cfg    OrderServiceConfig
	logger *slog.Logger

	now      func() time.Time
	newToken func() string
}

func NewOrderService(
	repo repository.OrderRepository,
	carts CartSource,
	menu MenuLookup,
	events EventDispatcher,
	push Notifier,
	cfg OrderServiceConfig,
	logger *slog.Logger,
) *OrderService {
	if cfg.PickupTokenAttempts < 1 {
		cfg.PickupTokenAttempts = 1
	}
	return &OrderService{
		repo:     repo,
		carts:    carts,
		menu:     menu,
		events:   events,
		push:     push,
		locks:    keylock.New(),
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newToken: randomPickupToken,
	}
}

func randomPickupToken() string {
	return fmt.Sprintf("%04d", rand.IntN(10000))
}

// PlaceOrder creates a Pending order from the request lines, or from the owner's cart
// when the request has none. The cart is read, turned into the order and cleared
// under the cart's owner lock.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	if err := requireOwner(req.OwnerIdentity); err != nil {
		return nil, err
	}

	var lines []domain.OrderLine
	if len(req.Lines) > 0 {
		priced, err := s.priceLines(ctx, req.Lines)
		if err != nil {
			return nil, err
		}
		lines = priced
	}

	var (
		order       *domain.Order
		unlockOrder func()
	)
	err := s.carts.Checkout(ctx, req.OwnerIdentity, func(cart *domain.Cart) error {
		orderLines := lines
		if len(orderLines) == 0 {
			if cart.IsEmpty() {
				return fmt.Errorf("%w: no line items and the cart is empty", domain.ErrInvalidArgument)
			}
			orderLines = cart.OrderLines()
		}

		created, err := domain.NewOrder(req.OwnerIdentity, strings.TrimSpace(req.OwnerDisplayName), orderLines, s.now())
		if err != nil {
			return err
		}

		// newOrder must reach the rooms before any transition of this order does
		unlock := s.locks.Lock(created.ID.String())
		if err := s.repo.CreateOrder(ctx, created); err != nil {
			unlock()
			s.logger.ErrorContext(ctx, "failed to create order", "owner", req.OwnerIdentity, "error", err)
			return fmt.Errorf("failed to create order: %w", translate(err))
		}
		order, unlockOrder = created, unlock
		return nil
	})
	if order == nil {
		return nil, err
	}
	defer unlockOrder()
	if err != nil {
		s.logger.WarnContext(ctx, "failed to clear cart after order placement",
			"order_id", order.ID.String(), "owner", order.OwnerIdentity, "error", err)
	}

	s.logger.InfoContext(ctx, "order placed",
		"order_id", order.ID.String(),
		"human_order_id", order.HumanOrderID,
		"owner", order.OwnerIdentity,
		"total", order.TotalAmount.String())

	s.events.Dispatch(domain.OrderCreated{Order: order.Clone()})
	s.notify(s.cfg.AdminIdentity, "New Order",
		fmt.Sprintf("Order %s from %s, total %s", order.HumanOrderID, order.OwnerDisplayName, order.TotalAmount.StringFixed(2)),
		order)

	return order, nil
}

// priceLines resolves request lines against the menu. Client names and prices are ignored.
func (s *OrderService) priceLines(ctx context.Context, lines []domain.OrderLine) ([]domain.OrderLine, error) {
	priced := make([]domain.OrderLine, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line.ItemID) == "" {
			return nil, fmt.Errorf("%w: line %d has no item id", domain.ErrInvalidArgument, i)
		}
		item, err := s.menu.GetItem(ctx, line.ItemID)
		if err != nil {
			return nil, translate(err)
		}
		priced = append(priced, domain.OrderLine{
			ItemID:    item.ID,
			Name:      item.Name,
			UnitPrice: item.Price,
			Quantity:  line.Quantity,
		})
	}
	return priced, nil
}

// Accept moves a Pending order to Accepted and assigns a pickup token unique among active orders.
func (s *OrderService) Accept(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := s.withOrder(ctx, id, func(order *domain.Order) (domain.OrderEvent, error) {
		expected := order.Version
		for attempt := 1; ; attempt++ {
			candidate := order.Clone()
			if err := candidate.Accept(s.newToken(), s.now()); err != nil {
				return nil, err
			}
			err := s.repo.UpdateOrder(ctx, candidate, expected, repository.EventOrderAccepted)
			if errors.Is(err, repository.ErrPickupTokenTaken) && attempt < s.cfg.PickupTokenAttempts {
				s.logger.DebugContext(ctx, "pickup token collision, retrying", "order_id", id.String(), "attempt", attempt)
				continue
			}
			if err != nil {
				return nil, translate(err)
			}
			*order = *candidate
			return domain.OrderAccepted{Order: order.Clone()}, nil
		}
	})
	if err != nil {
		return nil, err
	}

	s.notify(order.OwnerIdentity, "Order Accepted", order.LastNotification, order)
	return order, nil
}

func (s *OrderService) Reject(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := s.transition(ctx, id, repository.EventOrderRejected, (*domain.Order).Reject,
		func(o *domain.Order) domain.OrderEvent { return domain.OrderRejected{Order: o} })
	if err != nil {
		return nil, err
	}

	s.notify(order.OwnerIdentity, "Order Rejected", order.LastNotification, order)
	return order, nil
}

func (s *OrderService) MarkReady(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := s.transition(ctx, id, repository.EventOrderUpdated, (*domain.Order).MarkReady, updated)
	if err != nil {
		return nil, err
	}

	s.notify(order.OwnerIdentity, "Order Ready", order.LastNotification, order)
	return order, nil
}

// ConfirmPickup records the pickup answer for a ReadyToServe order. A negative answer
// keeps the status and only refreshes the customer's reminder.
func (s *OrderService) ConfirmPickup(ctx context.Context, id uuid.UUID, collected bool) (*domain.Order, error) {
	change, title := (*domain.Order).MarkCollected, "Order Collected"
	if !collected {
		change, title = (*domain.Order).RemindPickup, "Pickup Reminder"
	}

	order, err := s.transition(ctx, id, repository.EventOrderUpdated, change, updated)
	if err != nil {
		return nil, err
	}

	s.notify(order.OwnerIdentity, title, order.LastNotification, order)
	return order, nil
}

// SubmitFeedback overwrites the rating and comment of one line of a Collected order.
func (s *OrderService) SubmitFeedback(ctx context.Context, id uuid.UUID, itemID string, rating int, comment string) (*domain.Order, error) {
	return s.transition(ctx, id, repository.EventOrderUpdated,
		func(o *domain.Order, now time.Time) error {
			return o.SetFeedback(itemID, rating, strings.TrimSpace(comment), now)
		},
		updated)
}

// DeleteOrder removes an order in any status and tells both rooms about it.
func (s *OrderService) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return translate(err)
	}
	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete order", "order_id", id.String(), "error", err)
		return translate(err)
	}
	s.logger.InfoContext(ctx, "order deleted", "order_id", id.String(), "owner", order.OwnerIdentity)

	s.events.Dispatch(domain.OrderDeleted{ID: id, OwnerIdentity: order.OwnerIdentity})
	return nil
}

func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return order, nil
}

// ListOrders returns the owner's orders newest first. It always reads committed state.
func (s *OrderService) ListOrders(ctx context.Context, ownerIdentity string) ([]*domain.Order, error) {
	if err := requireOwner(ownerIdentity); err != nil {
		return nil, err
	}
	orders, err := s.repo.ListOrdersByOwner(ctx, ownerIdentity)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) ListAllOrders(ctx context.Context) ([]*domain.Order, error) {
	orders, err := s.repo.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func updated(o *domain.Order) domain.OrderEvent {
	return domain.OrderUpdated{Order: o}
}

// transition applies change to the stored order and saves it with a version check.
func (s *OrderService) transition(
	ctx context.Context,
	id uuid.UUID,
	eventType string,
	change func(*domain.Order, time.Time) error,
	event func(*domain.Order) domain.OrderEvent,
) (*domain.Order, error) {
	return s.withOrder(ctx, id, func(order *domain.Order) (domain.OrderEvent, error) {
		expected := order.Version
		if err := change(order, s.now()); err != nil {
			return nil, err
		}
		if err := s.repo.UpdateOrder(ctx, order, expected, eventType); err != nil {
			return nil, translate(err)
		}
		return event(order.Clone()), nil
	})
}

// withOrder loads the order under its lock, runs fn and dispatches the resulting event
// before releasing the lock, so events for one order go out in commit order.
func (s *OrderService) withOrder(
	ctx context.Context,
	id uuid.UUID,
	fn func(order *domain.Order) (domain.OrderEvent, error),
) (*domain.Order, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}

	from := order.Status
	event, err := fn(order)
	if err != nil {
		s.logger.InfoContext(ctx, "order change refused", "order_id", id.String(), "status", from.String(), "error", err)
		return nil, err
	}
	s.logger.InfoContext(ctx, "order changed",
		"order_id", id.String(),
		"event", domain.EventType(event),
		"from", from.String(),
		"to", order.Status.String(),
		"version", order.Version)

	s.events.Dispatch(event)
	return order, nil
}

func (s *OrderService) notify(target, title, body string, order *domain.Order) {
	if target == "" {
		return
	}
	s.push.Notify(domain.PushMessage{
		TargetIdentity: target,
		Title:          title,
		Body:           body,
		Data: map[string]string{
			"id":      order.ID.String(),
			"orderId": order.HumanOrderID,
			"status":  order.Status.String(),
		},
	})
}
