package domain

type OrderStatus string

const (
	OrderStatusPending      OrderStatus = "Pending"
	OrderStatusAccepted     OrderStatus = "Accepted"
	OrderStatusRejected     OrderStatus = "Rejected"
	OrderStatusReadyToServe OrderStatus = "ReadyToServe"
	OrderStatusCollected    OrderStatus = "Collected"
)

var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:      {OrderStatusAccepted, OrderStatusRejected},
	OrderStatusAccepted:     {OrderStatusReadyToServe},
	OrderStatusReadyToServe: {OrderStatusCollected},
	OrderStatusRejected:     {},
	OrderStatusCollected:    {},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusRejected || s == OrderStatusCollected
}

// HoldsPickupToken reports whether an order in this status carries a pickup token.
func (s OrderStatus) HoldsPickupToken() bool {
	return s == OrderStatusAccepted || s == OrderStatusReadyToServe || s == OrderStatusCollected
}

// IsActive is true while the pickup token is still redeemable at the counter.
func (s OrderStatus) IsActive() bool {
	return s == OrderStatusAccepted || s == OrderStatusReadyToServe
}

func (s OrderStatus) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}
