package spell

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/resilience"
)

const breakerName = "suggester"

// Guarded bounds every call to the wrapped suggester with a timeout and
// stops calling it while it keeps failing.
type Guarded struct {
	inner   Suggester
	breaker *resilience.CircuitBreaker
	timeout time.Duration
}

// NewGuarded wraps inner. m may be nil.
func NewGuarded(inner Suggester, timeout time.Duration, m *metrics.Metrics) *Guarded {
	cfg := resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
	if m != nil {
		cfg.OnStateChange = func(name string, to resilience.State) {
			m.ObserveBreaker(name, int(to))
		}
	}
	return &Guarded{
		inner:   inner,
		breaker: resilience.NewCircuitBreaker(breakerName, cfg),
		timeout: timeout,
	}
}

func (g *Guarded) Suggest(ctx context.Context, term string, limit int) ([]string, error) {
	var out []string
	err := g.breaker.Execute(func() error {
		var err error
		out, err = resilience.WithTimeoutValue(ctx, g.timeout, "suggest", func(ctx context.Context) ([]string, error) {
			return g.inner.Suggest(ctx, term, limit)
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSuggestUnavailable, err)
	}
	return out, nil
}

// State exposes the breaker state for health checks.
func (g *Guarded) State() resilience.State {
	return g.breaker.State()
}
