package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/fjod/picknpay/internal/repository"
)

type MenuService struct {
	repo   repository.MenuRepository
	logger *slog.Logger
}

func NewMenuService(repo repository.MenuRepository, logger *slog.Logger) *MenuService {
	return &MenuService{repo: repo, logger: logger}
}

func (s *MenuService) ListItems(ctx context.Context) ([]*domain.MenuItem, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list menu: %w", err)
	}
	return items, nil
}

func (s *MenuService) GetItem(ctx context.Context, id string) (*domain.MenuItem, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return item, nil
}

func (s *MenuService) CreateItem(ctx context.Context, item *domain.MenuItem) error {
	item.Name = strings.TrimSpace(item.Name)
	if err := item.Validate(); err != nil {
		return err
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return fmt.Errorf("failed to create menu item: %w", err)
	}
	s.logger.InfoContext(ctx, "menu item created", "item_id", item.ID, "name", item.Name)
	return nil
}

func (s *MenuService) DeleteItem(ctx context.Context, id string) error {
	if err := s.repo.DeleteItem(ctx, id); err != nil {
		return translate(err)
	}
	s.logger.InfoContext(ctx, "menu item deleted", "item_id", id)
	return nil
}
