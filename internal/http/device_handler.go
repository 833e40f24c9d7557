package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type DeviceService interface {
	RegisterToken(ctx context.Context, ownerIdentity, token string) error
	UnregisterToken(ctx context.Context, token string) error
}

type DeviceHandler struct {
	devices DeviceService
	timeout time.Duration
	logger  *slog.Logger
}

func NewDeviceHandler(devices DeviceService, timeout time.Duration, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{
		devices: devices,
		timeout: timeout,
		logger:  logger,
	}
}

type SaveTokenRequestDTO struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

type RemoveTokenRequestDTO struct {
	Token string `json:"token"`
}

// POST /api/auth/save-fcm-token
func (h *DeviceHandler) SaveToken(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SaveTokenRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	owner := ownerOrCaller(r, req.Email)
	if !authorizeOwner(w, r, owner) {
		return
	}

	if err := h.devices.RegisterToken(ctx, owner, req.Token); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "FCM token saved"})
}

// DELETE /api/auth/fcm-token
func (h *DeviceHandler) RemoveToken(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req RemoveTokenRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.devices.UnregisterToken(ctx, req.Token); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
