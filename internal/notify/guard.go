package notify

import (
	"context"

	"github.com/kjstillabower/smart-farm-service/internal/alerting"
	"github.com/kjstillabower/smart-farm-service/internal/circuitbreaker"
)

// Guarded skips a channel while its circuit is open so a dead provider does
// not add its timeout to every ingest.
type Guarded struct {
	next alerting.Notifier
	cb   *circuitbreaker.CircuitBreaker
}

// Guard wraps n with a breaker named after the channel.
func Guard(n alerting.Notifier, cfg circuitbreaker.Config) *Guarded {
	cfg.Name = n.Name()
	return &Guarded{next: n, cb: circuitbreaker.New(cfg)}
}

func (g *Guarded) Name() string { return g.next.Name() }

// Notify returns circuitbreaker.ErrOpen without calling the channel while open.
func (g *Guarded) Notify(ctx context.Context, message string) error {
	return g.cb.Call(ctx, func(ctx context.Context) error {
		return g.next.Notify(ctx, message)
	})
}

// State reports the breaker state.
func (g *Guarded) State() circuitbreaker.State {
	return g.cb.State()
}
