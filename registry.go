package circuitbreaker

import "sync"

// ConfigFn returns the configuration for the named circuit. It is invoked
// once per name, so each circuit gets its own policy instance.
type ConfigFn func(name string) (Config, error)

// Registry caches circuits by name so that repeated calls against the
// same guarded dependency share one policy verdict.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	configFn ConfigFn
	opts     []Option
	circuits map[string]*Circuit
}

// NewRegistry returns a registry creating circuits with configFn and the
// given circuit options.
func NewRegistry(configFn ConfigFn, opts ...Option) *Registry {
	return &Registry{
		configFn: configFn,
		opts:     opts,
		circuits: make(map[string]*Circuit),
	}
}

// Get returns the circuit registered under name, creating it if missing.
// This method will return an error only when circuit creation fails.
func (r *Registry) Get(name string) (*Circuit, error) {
	r.mu.RLock()
	circuit, ok := r.circuits[name]
	r.mu.RUnlock()
	if ok {
		return circuit, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check again, the circuit may have been created concurrently.
	if circuit, ok := r.circuits[name]; ok {
		return circuit, nil
	}

	cfg, err := r.configFn(name)
	if err != nil {
		return nil, err
	}
	circuit, err = NewCircuit(cfg, r.opts...)
	if err != nil {
		return nil, err
	}
	r.circuits[name] = circuit
	return circuit, nil
}

// Walk invokes fn with every circuit present in the registry.
func (r *Registry) Walk(fn func(name string, circuit *Circuit)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, circuit := range r.circuits {
		fn(name, circuit)
	}
}
