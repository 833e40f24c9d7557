package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/fjod/picknpay/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (*domain.Order, error)
	Accept(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	Reject(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	MarkReady(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ConfirmPickup(ctx context.Context, id uuid.UUID, collected bool) (*domain.Order, error)
	SubmitFeedback(ctx context.Context, id uuid.UUID, itemID string, rating int, comment string) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, ownerIdentity string) ([]*domain.Order, error)
	ListAllOrders(ctx context.Context) ([]*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
	logger  *slog.Logger
}

func NewOrdersHandler(orders OrderService, timeout time.Duration, logger *slog.Logger) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
		logger:  logger,
	}
}

type PlaceOrderRequestDTO struct {
	OwnerIdentity    string             `json:"ownerIdentity"`
	OwnerDisplayName string             `json:"ownerDisplayName"`
	LineItems        []domain.OrderLine `json:"lineItems"`
}

type CollectedRequestDTO struct {
	Collected *bool `json:"collected"`
}

type ReceivedRequestDTO struct {
	IsReceived receivedAnswer `json:"isReceived"`
}

type FeedbackRequestDTO struct {
	ItemID  string `json:"itemId"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// receivedAnswer accepts true/false as well as "yes"/"no".
type receivedAnswer struct {
	value bool
	set   bool
}

func (a *receivedAnswer) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		a.value, a.set = b, true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("isReceived must be a boolean or yes/no")
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true":
		a.value, a.set = true, true
	case "no", "false":
		a.value, a.set = false, true
	default:
		return fmt.Errorf("isReceived must be a boolean or yes/no, got %q", s)
	}
	return nil
}

// POST /api/orders
func (h *OrdersHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PlaceOrderRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	owner := ownerOrCaller(r, req.OwnerIdentity)
	if !authorizeOwner(w, r, owner) {
		return
	}

	order, err := h.orders.PlaceOrder(ctx, service.PlaceOrderRequest{
		OwnerIdentity:    owner,
		OwnerDisplayName: req.OwnerDisplayName,
		Lines:            req.LineItems,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

// GET /api/orders
func (h *OrdersHandler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListAllOrders(ctx)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, nonNil(orders))
}

// GET /api/orders/user/{ownerIdentity}
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner := chi.URLParam(r, "ownerIdentity")
	if !authorizeOwner(w, r, owner) {
		return
	}

	orders, err := h.orders.ListOrders(ctx, owner)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, nonNil(orders))
}

// GET /api/orders/{id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, ok := h.loadOwned(ctx, w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// PUT /api/orders/{id}/accept
func (h *OrdersHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, h.orders.Accept)
}

// PUT /api/orders/{id}/reject, POST /api/reject/{id}
func (h *OrdersHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, h.orders.Reject)
}

// PUT /api/orders/{id}/ready
func (h *OrdersHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, h.orders.MarkReady)
}

// PUT /api/orders/{id}/collected
func (h *OrdersHandler) MarkCollected(w http.ResponseWriter, r *http.Request) {
	var req CollectedRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Collected == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "collected is required")
		return
	}
	h.confirmPickup(w, r, *req.Collected)
}

// PUT /api/orders/{id}/received
func (h *OrdersHandler) MarkReceived(w http.ResponseWriter, r *http.Request) {
	var req ReceivedRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.IsReceived.set {
		respondError(w, http.StatusBadRequest, "invalid_request", "isReceived is required")
		return
	}
	h.confirmPickup(w, r, req.IsReceived.value)
}

func (h *OrdersHandler) confirmPickup(w http.ResponseWriter, r *http.Request, collected bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, ok := h.loadOwned(ctx, w, r)
	if !ok {
		return
	}

	updated, err := h.orders.ConfirmPickup(ctx, order.ID, collected)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// PUT /api/orders/{id}/item/feedback
func (h *OrdersHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req FeedbackRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ItemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "itemId is required")
		return
	}

	order, ok := h.loadOwned(ctx, w, r)
	if !ok {
		return
	}

	updated, err := h.orders.SubmitFeedback(ctx, order.ID, req.ItemID, req.Rating, req.Comment)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// DELETE /api/orders/{id}
func (h *OrdersHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	if err := h.orders.DeleteOrder(ctx, id); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) adminTransition(
	w http.ResponseWriter,
	r *http.Request,
	transition func(context.Context, uuid.UUID) (*domain.Order, error),
) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := transition(ctx, id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// loadOwned fetches the order named in the path and checks the caller may act on it.
func (h *OrdersHandler) loadOwned(ctx context.Context, w http.ResponseWriter, r *http.Request) (*domain.Order, bool) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return nil, false
	}

	order, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return nil, false
	}
	if !authorizeOwner(w, r, order.OwnerIdentity) {
		return nil, false
	}
	return order, true
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order id must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}

func nonNil(orders []*domain.Order) []*domain.Order {
	if orders == nil {
		return []*domain.Order{}
	}
	return orders
}
