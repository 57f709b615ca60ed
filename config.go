package circuitbreaker

import (
	"errors"
	"time"
)

// Config configures a Circuit.
type Config struct {
	// Policy decides whether the guarded dependency is healthy enough to
	// admit traffic. The instance is shared by every in-flight request.
	Policy Policy

	// TripFor is how long the circuit refuses admission once the policy
	// judges the dependency unhealthy.
	TripFor time.Duration `yaml:"tripFor"`
}

// Validate returns an error when the configuration cannot produce a
// working circuit.
func (c Config) Validate() error {
	if c.Policy == nil {
		return errors.New("policy must not be nil")
	}
	if c.TripFor <= 0 {
		return errors.New("trip duration must be positive")
	}
	return nil
}
