package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/picknpay/internal/domain"
)

const DefaultInterval = 10 * time.Second

// OrderLister fetches the committed orders of one owner.
type OrderLister interface {
	ListOrders(ctx context.Context, ownerIdentity string) ([]*domain.Order, error)
}

// OrderPoller periodically re-lists the owner's orders so missed realtime
// events are recovered on the next tick.
type OrderPoller struct {
	lister   OrderLister
	owner    string
	interval time.Duration
	tracker  *Tracker
	logger   *slog.Logger
}

func NewOrderPoller(lister OrderLister, owner string, interval time.Duration, tracker *Tracker, logger *slog.Logger) *OrderPoller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &OrderPoller{
		lister:   lister,
		owner:    owner,
		interval: interval,
		tracker:  tracker,
		logger:   logger,
	}
}

// PollOnce lists the orders and returns the changes not yet seen by the tracker.
func (p *OrderPoller) PollOnce(ctx context.Context) ([]Change, error) {
	orders, err := p.lister.ListOrders(ctx, p.owner)
	if err != nil {
		return nil, err
	}
	return p.tracker.Sync(orders), nil
}

// Run polls immediately and then on every tick until ctx is done. Failed polls are logged and retried on the next tick.
func (p *OrderPoller) Run(ctx context.Context, emit func(Change)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		changes, err := p.PollOnce(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.WarnContext(ctx, "order poll failed", "owner", p.owner, "error", err)
		}
		for _, c := range changes {
			emit(c)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
