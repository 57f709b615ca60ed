// Package middleware wraps a downstream unit of work with a circuit
// breaker: requests obtain admission from the circuit before dispatch and
// their outcomes are recorded against the circuit's policy on completion.
package middleware

import (
	"context"

	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/tripwire-go/circuitbreaker"
)

// Handler is the downstream unit of work guarded by the circuit breaker:
// given a request it eventually produces a response or an error.
type Handler[Req, Resp any] interface {
	Call(ctx context.Context, req Req) (Resp, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Call invokes the function.
func (f HandlerFunc[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}

// ReadyChecker is implemented by downstream handlers that expose their
// own readiness or backpressure signal. Once the circuit is closed the
// client defers to it and propagates its verdict unchanged.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// Client wraps a downstream handler with a circuit breaker.
type Client[Req, Resp any] struct {
	enabled    bool
	shadowMode bool
	name       string
	circuit    *circuitbreaker.Circuit
	policy     circuitbreaker.Policy
	next       Handler[Req, Resp]
	logger     *zap.Logger
	metrics    *clientMetrics
}

// New returns a client guarding next with a circuit breaker built from
// the given configuration.
func New[Req, Resp any](
	cfg Config,
	next Handler[Req, Resp],
	logger *zap.Logger,
	scope tally.Scope,
	name string,
) (*Client[Req, Resp], error) {
	circuit, err := circuitbreaker.NewCircuit(cfg.Circuit,
		circuitbreaker.WithLogger(logger),
		circuitbreaker.WithScope(scope),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("creating circuit breaker client", zap.String("circuit", name))
	return &Client[Req, Resp]{
		enabled:    cfg.Enabled,
		shadowMode: cfg.ShadowMode,
		name:       name,
		circuit:    circuit,
		policy:     cfg.Circuit.Policy,
		next:       next,
		logger:     logger,
		metrics:    newClientMetrics(scope, name),
	}, nil
}

// Circuit returns the wrapped circuit.
func (c *Client[Req, Resp]) Circuit() *circuitbreaker.Circuit {
	return c.circuit
}

// Call admits the request through the circuit, defers to the downstream
// readiness signal once closed, dispatches, and records the outcome. The
// downstream result is forwarded unchanged.
//
// While the circuit is tripped, calls are rejected with a RejectedError
// unless the client runs in shadow mode, in which case the rejection is
// only observed in metrics and the request proceeds.
func (c *Client[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	if !c.enabled {
		return c.next.Call(ctx, req)
	}

	if admitted, _ := c.circuit.Admit(); !admitted {
		c.metrics.rejects.Inc(1)
		if !c.shadowMode {
			c.logger.Debug("request rejected by circuit breaker",
				zap.String("circuit", c.name))
			var zero Resp
			return zero, circuitbreaker.NewRejectedError(c.name)
		}
		c.logger.Debug("circuit breaker rejection shadowed",
			zap.String("circuit", c.name))
	} else if ready, ok := c.next.(ReadyChecker); ok {
		if err := ready.Ready(ctx); err != nil {
			var zero Resp
			return zero, err
		}
	}

	return c.dispatch(ctx, req)
}

// dispatch forwards the request downstream and records the observed
// completion. Calls abandoned through context cancellation record
// nothing.
func (c *Client[Req, Resp]) dispatch(ctx context.Context, req Req) (Resp, error) {
	resp, err := c.next.Call(ctx, req)
	if err != nil && ctx.Err() != nil {
		return resp, err
	}

	if err != nil {
		c.policy.RecordFailure()
		c.metrics.failures.Inc(1)
		return resp, err
	}
	c.policy.RecordSuccess()
	c.metrics.successes.Inc(1)
	return resp, nil
}
