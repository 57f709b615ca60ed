package circuitbreaker

// State type represents the admission states of a circuit.
type State int

const (
	// Closed circuit state allows requests through to the guarded
	// dependency.
	Closed State = iota + 1
	// Tripped circuit state rejects all requests until the cooldown
	// deadline passes.
	Tripped
)

// String returns a lower-case ASCII representation of the State.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Tripped:
		return "tripped"
	default:
		return "unknown"
	}
}
