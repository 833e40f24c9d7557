package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MinRating = 1
	MaxRating = 5
)

type OrderLine struct {
	ItemID    string          `json:"itemId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Rating    *int            `json:"rating,omitempty"`
	Comment   *string         `json:"comment,omitempty"`
}

type Order struct {
	ID               uuid.UUID       `json:"id"`
	HumanOrderID     string          `json:"orderId"`
	OwnerIdentity    string          `json:"ownerIdentity"`
	OwnerDisplayName string          `json:"ownerDisplayName"`
	Items            []OrderLine     `json:"lineItems"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	Status           OrderStatus     `json:"status"`
	PickupToken      *string         `json:"pickupToken"`
	LastNotification string          `json:"lastNotification,omitempty"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// NewOrder builds a Pending order and fixes its total from the given lines.
func NewOrder(owner, displayName string, lines []OrderLine, now time.Time) (*Order, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, fmt.Errorf("%w: owner identity is required", ErrInvalidArgument)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: order has no line items", ErrInvalidArgument)
	}

	total := decimal.Zero
	items := make([]OrderLine, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line.ItemID) == "" {
			return nil, fmt.Errorf("%w: line %d has no item id", ErrInvalidArgument, i)
		}
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: line %d quantity must be at least 1", ErrInvalidArgument, i)
		}
		if line.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: line %d price must not be negative", ErrInvalidArgument, i)
		}
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		items = append(items, OrderLine{
			ItemID:    line.ItemID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}

	id := uuid.New()
	if displayName == "" {
		displayName = owner
	}
	return &Order{
		ID:               id,
		HumanOrderID:     HumanOrderID(id),
		OwnerIdentity:    owner,
		OwnerDisplayName: displayName,
		Items:            items,
		TotalAmount:      total,
		Status:           OrderStatusPending,
		LastNotification: "Your order has been placed and is waiting for confirmation.",
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// HumanOrderID derives the short code shown at the counter.
func HumanOrderID(id uuid.UUID) string {
	return "#" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:6])
}

func (o *Order) require(action string, expected OrderStatus) error {
	if o.Status != expected {
		return &TransitionError{
			OrderID:  o.ID.String(),
			Action:   action,
			Current:  o.Status,
			Expected: expected,
		}
	}
	return nil
}

func (o *Order) moveTo(next OrderStatus, message string, now time.Time) {
	o.Status = next
	o.LastNotification = message
	o.UpdatedAt = now
}

// Accept moves a Pending order to Accepted. An already assigned token is kept.
func (o *Order) Accept(token string, now time.Time) error {
	if err := o.require("accept", OrderStatusPending); err != nil {
		return err
	}
	if o.PickupToken == nil {
		if token == "" {
			return fmt.Errorf("%w: pickup token is required", ErrInvalidArgument)
		}
		o.PickupToken = &token
	}
	o.moveTo(OrderStatusAccepted, fmt.Sprintf(
		"Your order %s has been accepted. Collect it from the counter in 10 minutes. Token: %s",
		o.HumanOrderID, *o.PickupToken), now)
	return nil
}

func (o *Order) Reject(now time.Time) error {
	if err := o.require("reject", OrderStatusPending); err != nil {
		return err
	}
	o.moveTo(OrderStatusRejected, fmt.Sprintf("Sorry, your order %s was rejected.", o.HumanOrderID), now)
	return nil
}

func (o *Order) MarkReady(now time.Time) error {
	if err := o.require("mark ready", OrderStatusAccepted); err != nil {
		return err
	}
	o.moveTo(OrderStatusReadyToServe, fmt.Sprintf(
		"Your order %s is ready. Show token %s at the counter.", o.HumanOrderID, o.token()), now)
	return nil
}

func (o *Order) MarkCollected(now time.Time) error {
	if err := o.require("mark collected", OrderStatusReadyToServe); err != nil {
		return err
	}
	o.moveTo(OrderStatusCollected, fmt.Sprintf(
		"Order %s collected. Enjoy your meal and tell us how it was!", o.HumanOrderID), now)
	return nil
}

// RemindPickup records that the customer has not collected a ready order yet.
// The status stays ReadyToServe.
func (o *Order) RemindPickup(now time.Time) error {
	if err := o.require("confirm pickup of", OrderStatusReadyToServe); err != nil {
		return err
	}
	o.LastNotification = fmt.Sprintf(
		"Your order %s is still waiting at the counter. Token: %s", o.HumanOrderID, o.token())
	o.UpdatedAt = now
	return nil
}

// SetFeedback overwrites the rating and comment of one line of a collected order.
// An order that is not collected is rejected before the rating is looked at.
func (o *Order) SetFeedback(itemID string, rating int, comment string, now time.Time) error {
	if err := o.require("leave feedback on", OrderStatusCollected); err != nil {
		return err
	}
	if rating < MinRating || rating > MaxRating {
		return fmt.Errorf("%w: rating must be between %d and %d, got %d",
			ErrInvalidArgument, MinRating, MaxRating, rating)
	}
	for i := range o.Items {
		if o.Items[i].ItemID != itemID {
			continue
		}
		r, c := rating, comment
		o.Items[i].Rating = &r
		o.Items[i].Comment = &c
		o.UpdatedAt = now
		return nil
	}
	return fmt.Errorf("%w: order %s has no line item %s", ErrNotFound, o.ID, itemID)
}

func (o *Order) token() string {
	if o.PickupToken == nil {
		return ""
	}
	return *o.PickupToken
}

// Clone returns a deep copy so stored orders never alias caller memory.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.PickupToken != nil {
		t := *o.PickupToken
		c.PickupToken = &t
	}
	c.Items = make([]OrderLine, len(o.Items))
	for i, line := range o.Items {
		c.Items[i] = line
		if line.Rating != nil {
			r := *line.Rating
			c.Items[i].Rating = &r
		}
		if line.Comment != nil {
			s := *line.Comment
			c.Items[i].Comment = &s
		}
	}
	return &c
}
