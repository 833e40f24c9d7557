package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/google/uuid"
)

// MemoryOrderRepository implements OrderRepository with in-memory storage
type MemoryOrderRepository struct {
	mu           sync.RWMutex
	orders       map[uuid.UUID]*domain.Order // orderID -> order
	activeTokens map[string]uuid.UUID        // pickup token -> order holding it
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders:       make(map[uuid.UUID]*domain.Order),
		activeTokens: make(map[string]uuid.UUID),
	}
}

func (s *MemoryOrderRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.PickupToken != nil && order.Status.IsActive() {
		if _, taken := s.activeTokens[*order.PickupToken]; taken {
			return ErrPickupTokenTaken
		}
		s.activeTokens[*order.PickupToken] = order.ID
	}
	s.orders[order.ID] = order.Clone()
	return nil
}

func (s *MemoryOrderRepository) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (s *MemoryOrderRepository) ListOrdersByOwner(_ context.Context, ownerIdentity string) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Order, 0)
	for _, order := range s.orders {
		if order.OwnerIdentity == ownerIdentity {
			result = append(result, order.Clone())
		}
	}
	sortNewestFirst(result)
	return result, nil
}

func (s *MemoryOrderRepository) ListOrders(context.Context) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		result = append(result, order.Clone())
	}
	sortNewestFirst(result)
	return result, nil
}

func (s *MemoryOrderRepository) UpdateOrder(_ context.Context, order *domain.Order, expectedVersion int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.orders[order.ID]
	if !exists {
		return ErrOrderNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	if stored.Status != order.Status && !stored.Status.CanTransitionTo(order.Status) {
		return ErrIllegalStatus
	}

	next := order.Clone()
	next.TotalAmount = stored.TotalAmount
	if stored.PickupToken != nil {
		next.PickupToken = stored.PickupToken
	}

	if next.PickupToken != nil {
		token := *next.PickupToken
		holder, taken := s.activeTokens[token]
		switch {
		case next.Status.IsActive() && taken && holder != next.ID:
			return ErrPickupTokenTaken
		case next.Status.IsActive():
			s.activeTokens[token] = next.ID
		case taken && holder == next.ID:
			delete(s.activeTokens, token)
		}
	}

	next.Version = stored.Version + 1
	s.orders[order.ID] = next

	order.Version = next.Version
	order.PickupToken = next.Clone().PickupToken
	return nil
}

func (s *MemoryOrderRepository) DeleteOrder(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[id]
	if !exists {
		return ErrOrderNotFound
	}
	if order.PickupToken != nil && s.activeTokens[*order.PickupToken] == id {
		delete(s.activeTokens, *order.PickupToken)
	}
	delete(s.orders, id)
	return nil
}

func (s *MemoryOrderRepository) Close() error {
	return nil
}

func sortNewestFirst(orders []*domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
