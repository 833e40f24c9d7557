package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/fjod/picknpay/internal/repository"
)

// DeviceService keeps the push addresses of each identity.
type DeviceService struct {
	repo   repository.DeviceRepository
	logger *slog.Logger
}

func NewDeviceService(repo repository.DeviceRepository, logger *slog.Logger) *DeviceService {
	return &DeviceService{repo: repo, logger: logger}
}

func (s *DeviceService) RegisterToken(ctx context.Context, ownerIdentity, token string) error {
	ownerIdentity, token = strings.TrimSpace(ownerIdentity), strings.TrimSpace(token)
	if ownerIdentity == "" || token == "" {
		return fmt.Errorf("%w: identity and token are required", domain.ErrInvalidArgument)
	}
	err := s.repo.SaveToken(ctx, domain.DeviceToken{
		Token:         token,
		OwnerIdentity: ownerIdentity,
		UpdatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save device token: %w", err)
	}
	s.logger.InfoContext(ctx, "device token registered", "owner", ownerIdentity)
	return nil
}

func (s *DeviceService) UnregisterToken(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: token is required", domain.ErrInvalidArgument)
	}
	if err := s.repo.RemoveToken(ctx, token); err != nil {
		return fmt.Errorf("failed to remove device token: %w", err)
	}
	return nil
}
