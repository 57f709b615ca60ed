package circuitbreaker

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SlidingFailureRate is a Policy punishing a dependency when the ratio of
// failed requests to total requests over a trailing time window exceeds a
// fixed maximum rate.
type SlidingFailureRate struct {
	maxRate  float64
	requests *windowedCounter
	failures *windowedCounter
	logger   *zap.Logger
}

var _ Policy = (*SlidingFailureRate)(nil)

// NewSlidingFailureRate returns a policy over the given time window that
// punishes the dependency when its failure rate exceeds maxRate.
// Returns an error unless maxRate is in the range [0, 1] and window is
// positive.
func NewSlidingFailureRate(window time.Duration, maxRate float64, opts ...PolicyOption) (*SlidingFailureRate, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window (%v) must be positive", window)
	}
	if maxRate < 0 || maxRate > 1 {
		return nil, fmt.Errorf("maximum failure rate (%v) must be in the range [0, 1]", maxRate)
	}
	o := newPolicyOptions(opts)
	return &SlidingFailureRate{
		maxRate:  maxRate,
		requests: newWindowedCounter(window, o.nowFn),
		failures: newWindowedCounter(window, o.nowFn),
		logger:   o.logger,
	}, nil
}

// RecordSuccess counts one successful request against the window.
func (p *SlidingFailureRate) RecordSuccess() {
	p.requests.add(1)
}

// RecordFailure counts one failed request against the window.
func (p *SlidingFailureRate) RecordFailure() {
	p.requests.add(1)
	p.failures.add(1)
}

// IsPunished reports whether the windowed failure rate exceeds the maximum
// rate. With no requests in the window the rate divides out to NaN and
// every comparison with it is false, so an idle dependency is never
// punished.
func (p *SlidingFailureRate) IsPunished() bool {
	requests := p.requests.total()
	failures := p.failures.total()
	rate := float64(failures) / float64(requests)
	punished := rate > p.maxRate
	if punished {
		p.logger.Debug("failure rate exceeds maximum, punishing dependency",
			zap.Float64("failure_rate", rate),
			zap.Float64("max_rate", p.maxRate),
		)
	}
	return punished
}

// Reset discards both windows.
func (p *SlidingFailureRate) Reset() {
	p.requests.clear()
	p.failures.clear()
}
