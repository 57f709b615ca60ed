package middleware

import (
	"github.com/tripwire-go/circuitbreaker"
)

// Config represents the configuration for the circuit breaker middleware.
type Config struct {
	// Enabled turns the middleware on. When false every call goes
	// straight to the downstream handler.
	Enabled bool `yaml:"enabled"`

	// ShadowMode reports admission decisions in metrics and logs without
	// enforcing them; rejected calls still reach the downstream handler.
	ShadowMode bool `yaml:"shadowMode"`

	// Circuit is the admission configuration of the wrapped circuit.
	Circuit circuitbreaker.Config `yaml:"circuit"`
}
