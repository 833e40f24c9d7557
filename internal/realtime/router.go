package realtime

import (
	"log/slog"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/google/uuid"
)

// Event names understood by clients.
const (
	EventNewOrder      = "newOrder"
	EventOrderUpdated  = "orderUpdated"
	EventOrderAccepted = "orderAccepted"
	EventOrderRejected = "orderRejected"
	EventOrderDeleted  = "orderDeleted"
)

type AcceptedPayload struct {
	ID          uuid.UUID     `json:"id"`
	PickupToken string        `json:"token"`
	Status      string        `json:"status"`
	Order       *domain.Order `json:"order"`
}

type RejectedPayload struct {
	ID      uuid.UUID     `json:"id"`
	Message string        `json:"message"`
	Order   *domain.Order `json:"order"`
}

type DeletedPayload struct {
	ID uuid.UUID `json:"id"`
}

type Publisher interface {
	Publish(room string, msg Message) int
}

// Router turns order events into room-addressed messages.
type Router struct {
	pub    Publisher
	logger *slog.Logger
}

func NewRouter(pub Publisher, logger *slog.Logger) *Router {
	return &Router{pub: pub, logger: logger}
}

type delivery struct {
	room string
	msg  Message
}

// route lists the deliveries for an event in the order they are published.
func route(event domain.OrderEvent) []delivery {
	owner := UserRoom(event.Owner())

	switch e := event.(type) {
	case domain.OrderCreated:
		return []delivery{
			{AdminRoom, Message{EventNewOrder, e.Order}},
		}
	case domain.OrderAccepted:
		token := ""
		if e.Order.PickupToken != nil {
			token = *e.Order.PickupToken
		}
		return []delivery{
			{owner, Message{EventOrderAccepted, AcceptedPayload{
				ID:          e.Order.ID,
				PickupToken: token,
				Status:      e.Order.Status.String(),
				Order:       e.Order,
			}}},
			{owner, Message{EventOrderUpdated, e.Order}},
			{AdminRoom, Message{EventOrderUpdated, e.Order}},
		}
	case domain.OrderRejected:
		return []delivery{
			{owner, Message{EventOrderRejected, RejectedPayload{
				ID:      e.Order.ID,
				Message: e.Order.LastNotification,
				Order:   e.Order,
			}}},
			{AdminRoom, Message{EventOrderUpdated, e.Order}},
		}
	case domain.OrderUpdated:
		return []delivery{
			{owner, Message{EventOrderUpdated, e.Order}},
			{AdminRoom, Message{EventOrderUpdated, e.Order}},
		}
	case domain.OrderDeleted:
		payload := DeletedPayload{ID: e.ID}
		return []delivery{
			{owner, Message{EventOrderDeleted, payload}},
			{AdminRoom, Message{EventOrderDeleted, payload}},
		}
	}
	return nil
}

// Dispatch publishes the event. Empty rooms are not an error.
func (r *Router) Dispatch(event domain.OrderEvent) {
	for _, d := range route(event) {
		n := r.pub.Publish(d.room, d.msg)
		r.logger.Debug("realtime event published",
			"event", d.msg.Event,
			"room", d.room,
			"order_id", event.OrderID().String(),
			"delivered", n)
	}
}
