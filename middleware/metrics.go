package middleware

import (
	"github.com/uber-go/tally"
)

// clientMetrics holds the per-circuit outcome counters of a client.
type clientMetrics struct {
	// successes counts requests that completed without error.
	successes tally.Counter

	// failures counts requests that completed with an error.
	failures tally.Counter

	// rejects counts requests refused, or shadow-refused, by the circuit.
	rejects tally.Counter
}

func newClientMetrics(scope tally.Scope, name string) *clientMetrics {
	scope = scope.Tagged(map[string]string{"circuit": name})
	return &clientMetrics{
		successes: scope.Counter("circuit_breaker_successes"),
		failures:  scope.Counter("circuit_breaker_failures"),
		rejects:   scope.Counter("circuit_breaker_rejects"),
	}
}
