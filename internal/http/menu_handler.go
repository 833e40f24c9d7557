package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/go-chi/chi/v5"
)

type MenuService interface {
	ListItems(ctx context.Context) ([]*domain.MenuItem, error)
	GetItem(ctx context.Context, id string) (*domain.MenuItem, error)
	CreateItem(ctx context.Context, item *domain.MenuItem) error
	DeleteItem(ctx context.Context, id string) error
}

type MenuHandler struct {
	menu    MenuService
	timeout time.Duration
	logger  *slog.Logger
}

func NewMenuHandler(menu MenuService, timeout time.Duration, logger *slog.Logger) *MenuHandler {
	return &MenuHandler{
		menu:    menu,
		timeout: timeout,
		logger:  logger,
	}
}

type MenuItemsResponse struct {
	Items []*domain.MenuItem `json:"items"`
}

// GET /api/items
func (h *MenuHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.menu.ListItems(ctx)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []*domain.MenuItem{}
	}

	respondJSON(w, http.StatusOK, &MenuItemsResponse{Items: items})
}

// GET /api/items/{id}
func (h *MenuHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	item, err := h.menu.GetItem(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, item)
}

// POST /api/items
func (h *MenuHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var item domain.MenuItem
	if !decodeJSON(w, r, &item) {
		return
	}
	if err := h.menu.CreateItem(ctx, &item); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, &item)
}

// DELETE /api/items/{id}
func (h *MenuHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.menu.DeleteItem(ctx, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
