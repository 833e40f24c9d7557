package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/fjod/picknpay/internal/repository"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// EventReader follows the order event topic and feeds one owner's events into a Tracker.
type EventReader struct {
	reader  messageReader
	owner   string
	tracker *Tracker
	logger  *slog.Logger
}

func NewEventReader(owner, topic, groupID string, tracker *Tracker, logger *slog.Logger, brokers ...string) *EventReader {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &EventReader{reader: reader, owner: owner, tracker: tracker, logger: logger}
}

func (r *EventReader) Run(ctx context.Context, emit func(Change)) {
	for {
		if ctx.Err() != nil {
			return
		}
		change, ok, err := r.next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.WarnContext(ctx, "order event skipped", "error", err)
			}
			continue
		}
		if ok {
			emit(change)
		}
	}
}

func (r *EventReader) Close() {
	if err := r.reader.Close(); err != nil {
		r.logger.Warn("error closing event reader", "error", err)
	}
}

func (r *EventReader) next(ctx context.Context) (Change, bool, error) {
	m, err := r.reader.ReadMessage(ctx)
	if err != nil {
		return Change{}, false, fmt.Errorf("error reading message: %w", err)
	}
	return r.apply(m)
}

func (r *EventReader) apply(m kafka.Message) (Change, bool, error) {
	eventType := ""
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			eventType = string(h.Value)
		}
	}

	if eventType == repository.EventOrderDeleted {
		var payload struct {
			ID            uuid.UUID `json:"id"`
			OwnerIdentity string    `json:"ownerIdentity"`
		}
		if err := json.Unmarshal(m.Value, &payload); err != nil {
			return Change{}, false, fmt.Errorf("error parsing %s: %w", eventType, err)
		}
		if payload.OwnerIdentity != r.owner {
			return Change{}, false, nil
		}
		c, ok := r.tracker.Remove(payload.ID)
		return c, ok, nil
	}

	var order domain.Order
	if err := json.Unmarshal(m.Value, &order); err != nil {
		return Change{}, false, fmt.Errorf("error parsing %s: %w", eventType, err)
	}
	if order.ID == uuid.Nil {
		return Change{}, false, errors.New("order event without order id")
	}
	if order.OwnerIdentity != r.owner {
		return Change{}, false, nil
	}
	c, ok := r.tracker.Observe(&order)
	return c, ok, nil
}
