package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// Circuit is the admission gating state machine placed in front of a
// guarded dependency. Before each request it consults its policy; once
// the policy reports punishment the circuit trips for a fixed cooldown,
// refusing admission until the deadline passes.
//
// Admission decisions for one circuit are expected to be driven through a
// single wrapping discipline, such as the middleware package; the outcome
// recording side is carried entirely by the shared Policy, which is safe
// for any number of in-flight requests.
type Circuit struct {
	policy  Policy
	tripFor time.Duration

	mu       sync.Mutex
	state    State
	deadline time.Time

	nowFn   NowFn
	logger  *zap.Logger
	scope   tally.Scope
	metrics circuitMetrics
}

type circuitMetrics struct {
	tripped  tally.Counter
	released tally.Counter
}

// Option configures collaborators of a Circuit.
type Option func(*Circuit)

// WithLogger sets the logger circuit transitions are reported to.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Circuit) {
		c.logger = logger
	}
}

// WithScope sets the metrics scope circuit transitions are counted in.
func WithScope(scope tally.Scope) Option {
	return func(c *Circuit) {
		c.scope = scope
	}
}

// WithNowFn overrides the circuit's clock.
func WithNowFn(nowFn NowFn) Option {
	return func(c *Circuit) {
		c.nowFn = nowFn
	}
}

// NewCircuit returns a circuit for the given configuration.
// Returns an error when the configuration is invalid.
func NewCircuit(cfg Config, opts ...Option) (*Circuit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}
	c := &Circuit{
		policy:  cfg.Policy,
		tripFor: cfg.TripFor,
		state:   Closed,
		nowFn:   time.Now,
		logger:  zap.NewNop(),
		scope:   tally.NoopScope,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics = circuitMetrics{
		tripped:  c.scope.Counter("circuit_breaker_tripped"),
		released: c.scope.Counter("circuit_breaker_released"),
	}
	return c, nil
}

// Admit reports whether a request may be dispatched right now. When it
// returns false the second return value is the earliest time admission is
// worth re-checking.
//
// The policy verdict is consulted on every check, even while tripped, so
// a policy that keeps reporting punishment keeps extending the cooldown.
// Each trip resets the policy, so health is re-evaluated from a clean
// slate once the cooldown elapses.
func (c *Circuit) Admit() (bool, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn()
	if c.policy.IsPunished() {
		c.state = Tripped
		c.deadline = now.Add(c.tripFor)
		c.policy.Reset()
		c.metrics.tripped.Inc(1)
		c.logger.Info("circuit breaker tripped",
			zap.Duration("trip_for", c.tripFor),
		)
	}

	if c.state == Tripped {
		if now.Before(c.deadline) {
			return false, c.deadline
		}
		c.state = Closed
		c.metrics.released.Inc(1)
		c.logger.Info("circuit breaker released")
	}
	return true, time.Time{}
}

// Allow blocks until the circuit admits a request or ctx is cancelled.
// While tripped it wakes no later than the trip deadline. Abandoning a
// suspended request records nothing against the policy.
func (c *Circuit) Allow(ctx context.Context) error {
	for {
		ok, retryAt := c.Admit()
		if ok {
			return nil
		}

		wait := retryAt.Sub(c.nowFn())
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Call dispatches op to the guarded dependency and records its outcome
// against the policy. The outcome is forwarded unchanged. Outcomes of
// calls whose context was cancelled are not recorded, since only observed
// completions count.
//
// Admission must have been obtained immediately beforehand; dispatching
// through a tripped circuit is a contract violation and panics before any
// state is touched.
func (c *Circuit) Call(ctx context.Context, op func(context.Context) error) error {
	if c.State() == Tripped {
		panic("circuitbreaker: Call invoked on a tripped circuit")
	}

	err := op(ctx)
	if err != nil && ctx.Err() != nil {
		return err
	}
	if err != nil {
		c.policy.RecordFailure()
	} else {
		c.policy.RecordSuccess()
	}
	return err
}

// Execute obtains admission, waiting out a trip cooldown if necessary,
// and then dispatches op.
func (c *Circuit) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := c.Allow(ctx); err != nil {
		return err
	}
	return c.Call(ctx, op)
}

// State returns the circuit's current admission state. A tripped circuit
// keeps reporting Tripped until an admission check observes the expired
// deadline.
func (c *Circuit) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
