package push

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSender_LogsMessage(t *testing.T) {
	var buf bytes.Buffer
	sender := NewLogSender(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := sender.Send(context.Background(), "token-1", domain.PushMessage{
		TargetIdentity: "alice",
		Title:          "Order Ready",
		Body:           "Your order is ready",
	})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"target":"alice"`)
	assert.Contains(t, buf.String(), `"title":"Order Ready"`)
}
