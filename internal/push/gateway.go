package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/fjod/picknpay/pkg/circuitbreaker"
	"golang.org/x/time/rate"
)

// ErrTokenUnregistered means the device address is dead and should be forgotten.
var ErrTokenUnregistered = errors.New("device token is no longer registered")

type Sender interface {
	Send(ctx context.Context, token string, msg domain.PushMessage) error
}

type TokenStore interface {
	TokensFor(ctx context.Context, ownerIdentity string) ([]string, error)
	RemoveToken(ctx context.Context, token string) error
}

type Presence interface {
	Online(identity string) bool
}

type Options struct {
	Timeout         time.Duration
	RatePerSecond   float64
	Burst           int
	OnlyWhenOffline bool
}

// Gateway delivers push notifications in the background. Notify never blocks
// on the network and never reports delivery failures to the caller.
type Gateway struct {
	sender   Sender
	tokens   TokenStore
	presence Presence
	limiter  *rate.Limiter
	breaker  *circuitbreaker.Breaker[struct{}]
	opts     Options
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewGateway builds a gateway. presence may be nil.
func NewGateway(sender Sender, tokens TokenStore, presence Presence, opts Options, logger *slog.Logger) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}

	settings := circuitbreaker.DefaultSettings("push-gateway")
	settings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrTokenUnregistered)
	}

	return &Gateway{
		sender:   sender,
		tokens:   tokens,
		presence: presence,
		limiter:  rate.NewLimiter(limit, opts.Burst),
		breaker:  circuitbreaker.New[struct{}](settings, logger),
		opts:     opts,
		logger:   logger,
	}
}

// Notify schedules delivery of msg to every device of msg.TargetIdentity.
func (g *Gateway) Notify(msg domain.PushMessage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		g.logger.Warn("push gateway closed, dropping notification", "target", msg.TargetIdentity)
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.deliver(msg)
	}()
}

func (g *Gateway) deliver(msg domain.PushMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), g.opts.Timeout)
	defer cancel()

	if g.opts.OnlyWhenOffline && g.presence != nil && g.presence.Online(msg.TargetIdentity) {
		g.logger.Debug("push skipped, realtime session online", "target", msg.TargetIdentity)
		return
	}

	tokens, err := g.tokens.TokensFor(ctx, msg.TargetIdentity)
	if err != nil {
		g.logger.Warn("push token lookup failed", "target", msg.TargetIdentity, "error", err)
		return
	}
	if len(tokens) == 0 {
		g.logger.Debug("no registered device", "target", msg.TargetIdentity)
		return
	}

	for _, token := range tokens {
		if err := g.limiter.Wait(ctx); err != nil {
			g.logger.Warn("push abandoned", "target", msg.TargetIdentity, "error", err)
			return
		}

		_, err := g.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, g.sender.Send(ctx, token, msg)
		})
		switch {
		case err == nil:
			g.logger.Debug("push delivered", "target", msg.TargetIdentity, "title", msg.Title)
		case errors.Is(err, ErrTokenUnregistered):
			g.logger.Info("removing unregistered device token", "target", msg.TargetIdentity)
			if err := g.tokens.RemoveToken(ctx, token); err != nil {
				g.logger.Warn("failed to remove device token", "target", msg.TargetIdentity, "error", err)
			}
		default:
			g.logger.Warn("push delivery failed", "target", msg.TargetIdentity, "title", msg.Title, "error", err)
		}
	}
}

// Close stops accepting notifications and waits for in-flight deliveries or ctx.
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
