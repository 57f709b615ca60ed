package circuitbreaker

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

const (
	// minBudgetWindow and maxBudgetWindow bound the budget window so each
	// of its buckets still covers a meaningful time slice.
	minBudgetWindow = time.Second
	maxBudgetWindow = 60 * time.Second

	// maxFailurePercent caps the tolerated failures per success.
	maxFailurePercent = 1000

	// failureWeightScale is the fixed weight of one failure. Success
	// weights are derived against it so fractional failure proportions
	// stay representable with integer arithmetic.
	failureWeightScale = 1000

	// maxAllowedFailuresPerSecond keeps the baseline allowance well clear
	// of overflowing when multiplied by the window length and weight.
	maxAllowedFailuresPerSecond = 1000000
)

// FailureBudget is a Policy punishing a dependency once its weighted
// failures exhaust a fixed baseline allowance plus the trailing window's
// net success weight. The baseline tolerates a fixed floor of failures
// regardless of traffic volume, so a low-volume dependency is not tripped
// by a single early failure.
type FailureBudget struct {
	baseline      int64
	successWeight int64
	failureWeight int64
	counter       *windowedCounter
	logger        *zap.Logger
}

var _ Policy = (*FailureBudget)(nil)

// NewFailureBudget returns a budget policy over the given time window.
//
// allowedFailuresPerSecond is the floor of failures tolerated per second
// of window independent of traffic volume. failurePercent controls the
// proportional allowance: values up to 1 mean at most that fraction of
// successes may fail, values above 1 tolerate that many failures per
// success. Returns an error when any parameter is out of range.
func NewFailureBudget(
	window time.Duration,
	allowedFailuresPerSecond int64,
	failurePercent float64,
	opts ...PolicyOption,
) (*FailureBudget, error) {
	if window < minBudgetWindow || window > maxBudgetWindow {
		return nil, fmt.Errorf("window (%v) must be between %v and %v", window, minBudgetWindow, maxBudgetWindow)
	}
	if math.IsNaN(failurePercent) || failurePercent < 0 || failurePercent > maxFailurePercent {
		return nil, fmt.Errorf("failure percent (%v) must be in the range [0, %d]", failurePercent, maxFailurePercent)
	}
	if allowedFailuresPerSecond < 0 || allowedFailuresPerSecond > maxAllowedFailuresPerSecond {
		return nil, fmt.Errorf("allowed failures per second (%d) must be in the range [0, %d]",
			allowedFailuresPerSecond, maxAllowedFailuresPerSecond)
	}
	o := newPolicyOptions(opts)
	return &FailureBudget{
		baseline:      int64(math.Round(float64(allowedFailuresPerSecond) * window.Seconds() * failureWeightScale)),
		successWeight: int64(math.Round(failurePercent * failureWeightScale)),
		failureWeight: failureWeightScale,
		counter:       newWindowedCounter(window, o.nowFn),
		logger:        o.logger,
	}, nil
}

// RecordSuccess credits one success weight to the window.
func (p *FailureBudget) RecordSuccess() {
	p.counter.add(p.successWeight)
}

// RecordFailure debits one failure weight from the window.
func (p *FailureBudget) RecordFailure() {
	p.counter.add(-p.failureWeight)
}

// IsPunished reports whether accumulated weighted failures have exceeded
// the baseline allowance plus the window's net success weight.
func (p *FailureBudget) IsPunished() bool {
	budget := saturatingAdd(p.baseline, p.counter.total())
	punished := budget < 0
	if punished {
		p.logger.Debug("failure budget exhausted, punishing dependency",
			zap.Int64("budget", budget),
			zap.Int64("baseline", p.baseline),
		)
	}
	return punished
}

// Reset discards the window. The baseline allowance is fixed at
// construction and survives resets.
func (p *FailureBudget) Reset() {
	p.counter.clear()
}
