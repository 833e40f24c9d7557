package http

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testMenu = map[string]*domain.MenuItem{
	"burger": {ID: "burger", Name: "Burger", Price: decimal.NewFromInt(50)},
	"cola":   {ID: "cola", Name: "Cola", Price: decimal.RequireFromString("1.50")},
}

type fakeCarts struct {
	m     sync.Mutex
	carts map[string][]domain.CartLine
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{carts: make(map[string][]domain.CartLine)}
}

func (f *fakeCarts) GetCart(_ context.Context, owner string) (*domain.Cart, error) {
	f.m.Lock()
	defer f.m.Unlock()
	return &domain.Cart{OwnerID: owner, Items: append([]domain.CartLine{}, f.carts[owner]...)}, nil
}

func (f *fakeCarts) AddItem(_ context.Context, owner, itemID string) error {
	f.m.Lock()
	defer f.m.Unlock()
	item, ok := testMenu[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	for i := range f.carts[owner] {
		if f.carts[owner][i].ItemID == itemID {
			f.carts[owner][i].Quantity++
			return nil
		}
	}
	f.carts[owner] = append(f.carts[owner], domain.CartLine{ItemID: item.ID, Name: item.Name, UnitPrice: item.Price, Quantity: 1})
	return nil
}

func (f *fakeCarts) SetQuantity(ctx context.Context, owner, itemID string, quantity int) error {
	if quantity < 0 {
		return domain.ErrInvalidArgument
	}
	if quantity == 0 {
		return f.RemoveItem(ctx, owner, itemID)
	}
	f.m.Lock()
	defer f.m.Unlock()
	for i := range f.carts[owner] {
		if f.carts[owner][i].ItemID == itemID {
			f.carts[owner][i].Quantity = quantity
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeCarts) RemoveItem(_ context.Context, owner, itemID string) error {
	f.m.Lock()
	defer f.m.Unlock()
	lines := f.carts[owner]
	for i := range lines {
		if lines[i].ItemID == itemID {
			f.carts[owner] = append(lines[:i], lines[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeCarts) ClearCart(_ context.Context, owner string) error {
	f.m.Lock()
	defer f.m.Unlock()
	delete(f.carts, owner)
	return nil
}

func (f *fakeCarts) Checkout(_ context.Context, owner string, fn func(*domain.Cart) error) error {
	f.m.Lock()
	defer f.m.Unlock()
	cart := &domain.Cart{OwnerID: owner, Items: append([]domain.CartLine{}, f.carts[owner]...)}
	if err := fn(cart); err != nil {
		return err
	}
	delete(f.carts, owner)
	return nil
}

type fakeMenu struct {
	m     sync.Mutex
	items map[string]*domain.MenuItem
}

func (f *fakeMenu) ListItems(context.Context) ([]*domain.MenuItem, error) {
	f.m.Lock()
	defer f.m.Unlock()
	var out []*domain.MenuItem
	for _, item := range f.items {
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeMenu) GetItem(_ context.Context, id string) (*domain.MenuItem, error) {
	f.m.Lock()
	defer f.m.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (f *fakeMenu) CreateItem(_ context.Context, item *domain.MenuItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	f.m.Lock()
	defer f.m.Unlock()
	item.ID = uuid.NewString()
	item.CreatedAt = time.Now()
	f.items[item.ID] = item
	return nil
}

func (f *fakeMenu) DeleteItem(_ context.Context, id string) error {
	f.m.Lock()
	defer f.m.Unlock()
	if _, ok := f.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

type fakeDevices struct {
	m      sync.Mutex
	tokens map[string]string
}

func (f *fakeDevices) RegisterToken(_ context.Context, owner, token string) error {
	if owner == "" || token == "" {
		return domain.ErrInvalidArgument
	}
	f.m.Lock()
	defer f.m.Unlock()
	f.tokens[token] = owner
	return nil
}

func (f *fakeDevices) UnregisterToken(_ context.Context, token string) error {
	f.m.Lock()
	defer f.m.Unlock()
	delete(f.tokens, token)
	return nil
}

func (f *fakeDevices) owner(token string) string {
	f.m.Lock()
	defer f.m.Unlock()
	return f.tokens[token]
}

type nopNotifier struct{}

func (nopNotifier) Notify(domain.PushMessage) {}
