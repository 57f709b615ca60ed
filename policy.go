package circuitbreaker

import (
	"time"

	"go.uber.org/zap"
)

// Policy decides, from recorded request outcomes, whether the guarded
// dependency should currently be punished, that is denied new traffic.
//
// One Policy instance is shared by the circuit and by every in-flight
// request reporting its outcome, so that all calls contribute to a single
// verdict. All four methods must be safe for concurrent use.
type Policy interface {
	// RecordSuccess signals one successful outcome.
	RecordSuccess()

	// RecordFailure signals one failed outcome.
	RecordFailure()

	// IsPunished reports whether the dependency should currently be
	// denied admission. It may expire stale window state as a side
	// effect but never changes the recorded outcome counts.
	IsPunished() bool

	// Reset discards accumulated history so that health is re-evaluated
	// from a clean slate, typically once a trip cooldown elapses.
	Reset()
}

// PolicyOption configures optional collaborators of a policy.
type PolicyOption func(*policyOptions)

type policyOptions struct {
	logger *zap.Logger
	nowFn  NowFn
}

// WithPolicyLogger sets the logger punish events are reported to.
func WithPolicyLogger(logger *zap.Logger) PolicyOption {
	return func(o *policyOptions) {
		o.logger = logger
	}
}

// WithPolicyNowFn overrides the clock used to expire window state.
func WithPolicyNowFn(nowFn NowFn) PolicyOption {
	return func(o *policyOptions) {
		o.nowFn = nowFn
	}
}

func newPolicyOptions(opts []PolicyOption) policyOptions {
	o := policyOptions{
		logger: zap.NewNop(),
		nowFn:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
