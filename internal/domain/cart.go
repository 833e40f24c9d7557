package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart is keyed by its owner; it has no identity of its own.
type Cart struct {
	OwnerID   string     `json:"ownerIdentity"`
	Items     []CartLine `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type CartLine struct {
	ItemID    string          `json:"itemId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"addedAt"`
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

func (c *Cart) Line(itemID string) (CartLine, bool) {
	for _, line := range c.Items {
		if line.ItemID == itemID {
			return line, true
		}
	}
	return CartLine{}, false
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Items {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// OrderLines snapshots the cart into order lines.
func (c *Cart) OrderLines() []OrderLine {
	lines := make([]OrderLine, 0, len(c.Items))
	for _, line := range c.Items {
		lines = append(lines, OrderLine{
			ItemID:    line.ItemID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}
	return lines
}
