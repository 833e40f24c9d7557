package push

import (
	"context"
	"log/slog"

	"github.com/fjod/picknpay/internal/domain"
)

// LogSender stands in for FCM when no Firebase credentials are configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, _ string, msg domain.PushMessage) error {
	s.logger.InfoContext(ctx, "push notification", "target", msg.TargetIdentity, "title", msg.Title, "body", msg.Body)
	return nil
}
