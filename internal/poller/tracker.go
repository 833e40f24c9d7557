// Package poller keeps a client-side view of a customer's orders converged from
// realtime events, the order event stream and periodic re-fetches.
package poller

import (
	"sync"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/google/uuid"
)

type ChangeKind string

const (
	ChangeUpsert  ChangeKind = "upsert"
	ChangeRemoved ChangeKind = "removed"
)

type Change struct {
	Kind    ChangeKind
	OrderID uuid.UUID
	Order   *domain.Order // nil for ChangeRemoved
}

// Tracker remembers the newest version seen per order. Sources may report the
// same state more than once; only newer versions produce a Change.
type Tracker struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
}

func NewTracker() *Tracker {
	return &Tracker{orders: make(map[uuid.UUID]*domain.Order)}
}

func (t *Tracker) Observe(order *domain.Order) (Change, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.observeLocked(order)
}

func (t *Tracker) observeLocked(order *domain.Order) (Change, bool) {
	if known, ok := t.orders[order.ID]; ok && known.Version >= order.Version {
		return Change{}, false
	}
	t.orders[order.ID] = order.Clone()
	return Change{Kind: ChangeUpsert, OrderID: order.ID, Order: order.Clone()}, true
}

func (t *Tracker) Remove(id uuid.UUID) (Change, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.orders[id]; !ok {
		return Change{}, false
	}
	delete(t.orders, id)
	return Change{Kind: ChangeRemoved, OrderID: id}, true
}

// Sync replaces the view with a full listing and reports what the other sources missed.
func (t *Tracker) Sync(orders []*domain.Order) []Change {
	t.mu.Lock()
	defer t.mu.Unlock()

	var changes []Change
	listed := make(map[uuid.UUID]struct{}, len(orders))
	for _, order := range orders {
		listed[order.ID] = struct{}{}
		if c, ok := t.observeLocked(order); ok {
			changes = append(changes, c)
		}
	}
	for id := range t.orders {
		if _, ok := listed[id]; !ok {
			delete(t.orders, id)
			changes = append(changes, Change{Kind: ChangeRemoved, OrderID: id})
		}
	}
	return changes
}

func (t *Tracker) Get(id uuid.UUID) (*domain.Order, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	order, ok := t.orders[id]
	if !ok {
		return nil, false
	}
	return order.Clone(), true
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.orders)
}
