package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/picknpay/internal/cache"
	"github.com/fjod/picknpay/internal/domain"
	"github.com/fjod/picknpay/internal/realtime"
	"github.com/fjod/picknpay/internal/repository"
	"github.com/shopspring/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockCartRepository struct {
	m     sync.Mutex
	carts map[string]*domain.Cart
	err   error
	gets  int
}

func newMockCartRepository() *mockCartRepository {
	return &mockCartRepository{carts: make(map[string]*domain.Cart)}
}

func (r *mockCartRepository) GetCart(_ context.Context, ownerID string) (*domain.Cart, error) {
	r.m.Lock()
	defer r.m.Unlock()
	r.gets++
	if r.err != nil {
		return nil, r.err
	}
	cart, ok := r.carts[ownerID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	c := *cart
	c.Items = append([]domain.CartLine(nil), cart.Items...)
	return &c, nil
}

func (r *mockCartRepository) IncrementItem(_ context.Context, ownerID string, line domain.CartLine) error {
	r.m.Lock()
	defer r.m.Unlock()
	if r.err != nil {
		return r.err
	}
	cart, ok := r.carts[ownerID]
	if !ok {
		cart = &domain.Cart{OwnerID: ownerID, CreatedAt: time.Now()}
		r.carts[ownerID] = cart
	}
	for i := range cart.Items {
		if cart.Items[i].ItemID == line.ItemID {
			cart.Items[i].Quantity++
			return nil
		}
	}
	line.Quantity = 1
	cart.Items = append(cart.Items, line)
	return nil
}

func (r *mockCartRepository) SetItemQuantity(_ context.Context, ownerID, itemID string, quantity int) error {
	r.m.Lock()
	defer r.m.Unlock()
	if r.err != nil {
		return r.err
	}
	cart, ok := r.carts[ownerID]
	if !ok {
		return repository.ErrItemNotFound
	}
	for i := range cart.Items {
		if cart.Items[i].ItemID == itemID {
			cart.Items[i].Quantity = quantity
			return nil
		}
	}
	return repository.ErrItemNotFound
}

func (r *mockCartRepository) RemoveItem(_ context.Context, ownerID, itemID string) error {
	r.m.Lock()
	defer r.m.Unlock()
	if r.err != nil {
		return r.err
	}
	cart, ok := r.carts[ownerID]
	if !ok {
		return nil
	}
	for i, line := range cart.Items {
		if line.ItemID == itemID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *mockCartRepository) DeleteCart(_ context.Context, ownerID string) error {
	r.m.Lock()
	defer r.m.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.carts[ownerID]; !ok {
		return repository.ErrCartNotFound
	}
	delete(r.carts, ownerID)
	return nil
}

func (r *mockCartRepository) getCount() int {
	r.m.Lock()
	defer r.m.Unlock()
	return r.gets
}

type mockCache struct {
	m      sync.Mutex
	carts  map[string]*domain.Cart
	getErr error
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.Cart)}
}

func (c *mockCache) Get(_ context.Context, ownerID string) (*domain.Cart, error) {
	c.m.Lock()
	defer c.m.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	cart, ok := c.carts[ownerID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart, nil
}

func (c *mockCache) Set(_ context.Context, ownerID string, cart *domain.Cart) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.carts[ownerID] = cart
	return nil
}

func (c *mockCache) Delete(_ context.Context, ownerID string) error {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.carts, ownerID)
	return nil
}

func (c *mockCache) has(ownerID string) bool {
	c.m.Lock()
	defer c.m.Unlock()
	_, ok := c.carts[ownerID]
	return ok
}

type mockMenu struct {
	items map[string]*domain.MenuItem
}

func newMockMenu() *mockMenu {
	return &mockMenu{items: map[string]*domain.MenuItem{
		"burger": {ID: "burger", Name: "Burger", Category: "Mains", Price: decimal.NewFromInt(50)},
		"cola":   {ID: "cola", Name: "Cola", Category: "Drinks", Price: decimal.RequireFromString("1.50")},
	}}
}

func (m *mockMenu) GetItem(_ context.Context, id string) (*domain.MenuItem, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, repository.ErrMenuItemNotFound
	}
	return item, nil
}

type recordingNotifier struct {
	m        sync.Mutex
	messages []domain.PushMessage
}

func (n *recordingNotifier) Notify(msg domain.PushMessage) {
	n.m.Lock()
	defer n.m.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) sent() []domain.PushMessage {
	n.m.Lock()
	defer n.m.Unlock()
	return append([]domain.PushMessage(nil), n.messages...)
}

func (n *recordingNotifier) titlesFor(target string) []string {
	var titles []string
	for _, msg := range n.sent() {
		if msg.TargetIdentity == target {
			titles = append(titles, msg.Title)
		}
	}
	return titles
}

// roomConn records what a room member would receive.
type roomConn struct {
	id       string
	m        sync.Mutex
	messages []realtime.Message
}

func (c *roomConn) ID() string { return c.id }

func (c *roomConn) Send(msg realtime.Message) bool {
	c.m.Lock()
	defer c.m.Unlock()
	c.messages = append(c.messages, msg)
	return true
}

func (c *roomConn) Close() {}

func (c *roomConn) received() []realtime.Message {
	c.m.Lock()
	defer c.m.Unlock()
	return append([]realtime.Message(nil), c.messages...)
}

func (c *roomConn) events() []string {
	var names []string
	for _, msg := range c.received() {
		names = append(names, msg.Event)
	}
	return names
}
