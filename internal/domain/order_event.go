package domain

import "github.com/google/uuid"

// OrderEvent is a committed change to an order. The set of variants is closed.
type OrderEvent interface {
	OrderID() uuid.UUID
	Owner() string
	isOrderEvent()
}

// OrderCreated follows a successful placement.
type OrderCreated struct{ Order *Order }

// OrderUpdated covers readiness, pickup confirmation and feedback.
type OrderUpdated struct{ Order *Order }

type OrderAccepted struct{ Order *Order }

type OrderRejected struct{ Order *Order }

type OrderDeleted struct {
	ID            uuid.UUID
	OwnerIdentity string
}

func (e OrderCreated) OrderID() uuid.UUID  { return e.Order.ID }
func (e OrderUpdated) OrderID() uuid.UUID  { return e.Order.ID }
func (e OrderAccepted) OrderID() uuid.UUID { return e.Order.ID }
func (e OrderRejected) OrderID() uuid.UUID { return e.Order.ID }
func (e OrderDeleted) OrderID() uuid.UUID  { return e.ID }

func (e OrderCreated) Owner() string  { return e.Order.OwnerIdentity }
func (e OrderUpdated) Owner() string  { return e.Order.OwnerIdentity }
func (e OrderAccepted) Owner() string { return e.Order.OwnerIdentity }
func (e OrderRejected) Owner() string { return e.Order.OwnerIdentity }
func (e OrderDeleted) Owner() string  { return e.OwnerIdentity }

func (OrderCreated) isOrderEvent()  {}
func (OrderUpdated) isOrderEvent()  {}
func (OrderAccepted) isOrderEvent() {}
func (OrderRejected) isOrderEvent() {}
func (OrderDeleted) isOrderEvent()  {}

// EventType names the variant for logs and the outbox.
func EventType(e OrderEvent) string {
	switch e.(type) {
	case OrderCreated:
		return "OrderCreated"
	case OrderUpdated:
		return "OrderUpdated"
	case OrderAccepted:
		return "OrderAccepted"
	case OrderRejected:
		return "OrderRejected"
	case OrderDeleted:
		return "OrderDeleted"
	default:
		return "Unknown"
	}
}
