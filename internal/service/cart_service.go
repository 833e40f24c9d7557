package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fjod/picknpay/internal/cache"
	"github.com/fjod/picknpay/internal/domain"
	"github.com/fjod/picknpay/internal/keylock"
	"github.com/fjod/picknpay/internal/repository"
	"golang.org/x/sync/singleflight"
)

const cacheWriteTimeout = time.Second

// MenuLookup resolves catalog entries for items added to a cart.
type MenuLookup interface {
	GetItem(ctx context.Context, id string) (*domain.MenuItem, error)
}

type CartService struct {
	repo   repository.CartRepository
	menu   MenuLookup
	cache  cache.CartCache
	locks  *keylock.KeyLock
	sfg    singleflight.Group // Prevents cache stampede
	logger *slog.Logger
	now    func() time.Time
}

func NewCartService(repo repository.CartRepository, menu MenuLookup, cache cache.CartCache, logger *slog.Logger) *CartService {
	return &CartService{
		repo:   repo,
		menu:   menu,
		cache:  cache,
		locks:  keylock.New(),
		logger: logger,
		now:    time.Now,
	}
}

// GetCart returns the owner's cart. A missing cart is returned as an empty one.
func (s *CartService) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	v, err, _ := s.sfg.Do(ownerID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, ownerID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.WarnContext(ctx, "cart cache get failed", "owner", ownerID, "error", err)
		}

		// the refill happens under the owner lock so a concurrent mutation cannot be overwritten by a stale read
		unlock := s.locks.Lock(ownerID)
		defer unlock()

		cart, err = s.repo.GetCart(ctx, ownerID)
		if errors.Is(err, repository.ErrCartNotFound) {
			now := s.now()
			return &domain.Cart{OwnerID: ownerID, Items: []domain.CartLine{}, CreatedAt: now, UpdatedAt: now}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load cart: %w", err)
		}

		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
		defer cancel()
		if err := s.cache.Set(setCtx, ownerID, cart); err != nil {
			s.logger.WarnContext(ctx, "cart cache set failed", "owner", ownerID, "error", err)
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// AddItem adds one unit of a catalog item to the cart.
func (s *CartService) AddItem(ctx context.Context, ownerID, itemID string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	if strings.TrimSpace(itemID) == "" {
		return fmt.Errorf("%w: item id is required", domain.ErrInvalidArgument)
	}

	item, err := s.menu.GetItem(ctx, itemID)
	if err != nil {
		return translate(err)
	}

	unlock := s.locks.Lock(ownerID)
	defer unlock()

	line := domain.CartLine{
		ItemID:    item.ID,
		Name:      item.Name,
		UnitPrice: item.Price,
		AddedAt:   s.now().UTC(),
	}
	if err := s.repo.IncrementItem(ctx, ownerID, line); err != nil {
		s.logger.ErrorContext(ctx, "repo add item failed", "owner", ownerID, "item_id", itemID, "error", err)
		return translate(err)
	}

	s.invalidateCache(ctx, ownerID)
	return nil
}

// SetQuantity sets an absolute quantity; zero removes the line.
func (s *CartService) SetQuantity(ctx context.Context, ownerID, itemID string, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative, got %d", domain.ErrInvalidArgument, quantity)
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, ownerID, itemID)
	}
	if err := requireOwner(ownerID); err != nil {
		return err
	}

	unlock := s.locks.Lock(ownerID)
	defer unlock()

	if err := s.repo.SetItemQuantity(ctx, ownerID, itemID, quantity); err != nil {
		s.logger.WarnContext(ctx, "repo update item quantity failed", "owner", ownerID, "item_id", itemID, "error", err)
		return translate(err)
	}

	s.invalidateCache(ctx, ownerID)
	return nil
}

// RemoveItem drops a line. Removing a missing line is not an error.
func (s *CartService) RemoveItem(ctx context.Context, ownerID, itemID string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}

	unlock := s.locks.Lock(ownerID)
	defer unlock()

	if err := s.repo.RemoveItem(ctx, ownerID, itemID); err != nil {
		s.logger.ErrorContext(ctx, "repo remove item failed", "owner", ownerID, "item_id", itemID, "error", err)
		return translate(err)
	}

	s.invalidateCache(ctx, ownerID)
	return nil
}

// ClearCart empties the cart. Clearing a cart that does not exist is not an error.
func (s *CartService) ClearCart(ctx context.Context, ownerID string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}

	unlock := s.locks.Lock(ownerID)
	defer unlock()

	err := s.repo.DeleteCart(ctx, ownerID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		s.logger.ErrorContext(ctx, "repo delete cart failed", "owner", ownerID, "error", err)
		return translate(err)
	}

	s.invalidateCache(ctx, ownerID)
	return nil
}

// Checkout hands a snapshot of the owner's cart to fn and deletes the cart once fn
// succeeds. The owner lock is held throughout, so mutations made meanwhile wait and
// land in the next cart. fn must not call back into the cart of the same owner.
func (s *CartService) Checkout(ctx context.Context, ownerID string, fn func(cart *domain.Cart) error) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}

	unlock := s.locks.Lock(ownerID)
	defer unlock()

	cart, err := s.repo.GetCart(ctx, ownerID)
	switch {
	case errors.Is(err, repository.ErrCartNotFound):
		now := s.now()
		cart = &domain.Cart{OwnerID: ownerID, Items: []domain.CartLine{}, CreatedAt: now, UpdatedAt: now}
	case err != nil:
		return fmt.Errorf("failed to load cart: %w", err)
	}

	if err := fn(cart); err != nil {
		return err
	}

	err = s.repo.DeleteCart(ctx, ownerID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		s.logger.ErrorContext(ctx, "repo delete cart after checkout failed", "owner", ownerID, "error", err)
		return fmt.Errorf("%w: %w", ErrCartNotCleared, translate(err))
	}

	s.invalidateCache(ctx, ownerID)
	return nil
}

func (s *CartService) invalidateCache(ctx context.Context, ownerID string) {
	// reads already in flight may predate this write
	s.sfg.Forget(ownerID)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()
	if err := s.cache.Delete(ctx, ownerID); err != nil {
		s.logger.WarnContext(ctx, "cart cache invalidate failed", "owner", ownerID, "error", err)
	}
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("%w: owner identity is required", domain.ErrInvalidArgument)
	}
	return nil
}
