package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/go-chi/chi/v5"
)

type CartService interface {
	GetCart(ctx context.Context, ownerID string) (*domain.Cart, error)
	AddItem(ctx context.Context, ownerID, itemID string) error
	SetQuantity(ctx context.Context, ownerID, itemID string, quantity int) error
	RemoveItem(ctx context.Context, ownerID, itemID string) error
	ClearCart(ctx context.Context, ownerID string) error
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
	logger  *slog.Logger
}

func NewCartHandler(carts CartService, timeout time.Duration, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		logger:  logger,
	}
}

type AddItemRequestDTO struct {
	OwnerIdentity string `json:"ownerIdentity"`
	ItemID        string `json:"itemId"`
}

type UpdateQuantityRequestDTO struct {
	OwnerIdentity string `json:"ownerIdentity"`
	ItemID        string `json:"itemId"`
	Quantity      *int   `json:"quantity"`
}

type RemoveItemRequestDTO struct {
	ItemID string `json:"itemId"`
}

// GET /api/cart/{owner}
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner := chi.URLParam(r, "owner")
	if !authorizeOwner(w, r, owner) {
		return
	}

	h.respondCart(ctx, w, r, http.StatusOK, owner)
}

// POST /api/cart
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	owner := ownerOrCaller(r, req.OwnerIdentity)
	if !authorizeOwner(w, r, owner) {
		return
	}
	if req.ItemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "itemId is required")
		return
	}

	if err := h.carts.AddItem(ctx, owner, req.ItemID); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.respondCart(ctx, w, r, http.StatusCreated, owner)
}

// PUT /api/cart/update
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	owner := ownerOrCaller(r, req.OwnerIdentity)
	if !authorizeOwner(w, r, owner) {
		return
	}
	if req.ItemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "itemId is required")
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity is required")
		return
	}

	if err := h.carts.SetQuantity(ctx, owner, req.ItemID, *req.Quantity); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.respondCart(ctx, w, r, http.StatusOK, owner)
}

// DELETE /api/cart/{owner}: with an {"itemId"} body removes that line, otherwise clears the cart.
func (h *CartHandler) DeleteCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner := chi.URLParam(r, "owner")
	if !authorizeOwner(w, r, owner) {
		return
	}

	var req RemoveItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	var err error
	if req.ItemID != "" {
		err = h.carts.RemoveItem(ctx, owner, req.ItemID)
	} else {
		err = h.carts.ClearCart(ctx, owner)
	}
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.respondCart(ctx, w, r, http.StatusOK, owner)
}

// DELETE /api/cart/{owner}/items/{itemId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner := chi.URLParam(r, "owner")
	if !authorizeOwner(w, r, owner) {
		return
	}

	if err := h.carts.RemoveItem(ctx, owner, chi.URLParam(r, "itemId")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.respondCart(ctx, w, r, http.StatusOK, owner)
}

func (h *CartHandler) respondCart(ctx context.Context, w http.ResponseWriter, r *http.Request, status int, owner string) {
	cart, err := h.carts.GetCart(ctx, owner)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, status, cart)
}

func ownerOrCaller(r *http.Request, owner string) string {
	if owner != "" {
		return owner
	}
	caller, _ := callerFromContext(r.Context())
	return caller.Identity
}
