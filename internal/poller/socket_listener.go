package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/fjod/picknpay/internal/realtime"
	"github.com/gorilla/websocket"
)

const (
	minReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay = 30 * time.Second
)

// SocketListener follows the owner's realtime room and feeds pushed orders into the tracker.
// The connection is re-dialed with backoff until ctx is done.
type SocketListener struct {
	url     string
	owner   string
	tracker *Tracker
	dialer  *websocket.Dialer
	logger  *slog.Logger
}

// NewSocketListener connects to wsURL (for example ws://host:8080/ws) as owner.
func NewSocketListener(wsURL, owner string, tracker *Tracker, logger *slog.Logger) (*SocketListener, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket url: %w", err)
	}
	q := u.Query()
	q.Set("identity", owner)
	u.RawQuery = q.Encode()

	return &SocketListener{
		url:     u.String(),
		owner:   owner,
		tracker: tracker,
		dialer:  websocket.DefaultDialer,
		logger:  logger,
	}, nil
}

func (l *SocketListener) Run(ctx context.Context, emit func(Change)) {
	delay := minReconnectDelay
	for ctx.Err() == nil {
		connected, err := l.listen(ctx, emit)
		if ctx.Err() != nil {
			return
		}
		if connected {
			delay = minReconnectDelay
		}
		l.logger.WarnContext(ctx, "realtime connection lost", "owner", l.owner, "retry_in", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (l *SocketListener) listen(ctx context.Context, emit func(Change)) (bool, error) {
	conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	l.logger.InfoContext(ctx, "realtime connected", "owner", l.owner)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var msg struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return true, err
		}
		change, ok, err := l.apply(msg.Event, msg.Data)
		if err != nil {
			l.logger.WarnContext(ctx, "skipping malformed realtime message", "event", msg.Event, "error", err)
			continue
		}
		if ok {
			emit(change)
		}
	}
}

func (l *SocketListener) apply(event string, data json.RawMessage) (Change, bool, error) {
	switch event {
	case realtime.EventNewOrder, realtime.EventOrderUpdated:
		var order domain.Order
		if err := json.Unmarshal(data, &order); err != nil {
			return Change{}, false, err
		}
		return l.observe(&order)
	case realtime.EventOrderAccepted:
		var payload realtime.AcceptedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return Change{}, false, err
		}
		return l.observe(payload.Order)
	case realtime.EventOrderRejected:
		var payload realtime.RejectedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return Change{}, false, err
		}
		return l.observe(payload.Order)
	case realtime.EventOrderDeleted:
		var payload realtime.DeletedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return Change{}, false, err
		}
		c, ok := l.tracker.Remove(payload.ID)
		return c, ok, nil
	default:
		return Change{}, false, nil
	}
}

func (l *SocketListener) observe(order *domain.Order) (Change, bool, error) {
	if order == nil {
		return Change{}, false, fmt.Errorf("payload carries no order")
	}
	if order.OwnerIdentity != l.owner {
		return Change{}, false, nil
	}
	c, ok := l.tracker.Observe(order)
	return c, ok, nil
}
