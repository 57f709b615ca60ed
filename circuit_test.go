package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// stubPolicy is a hand-rolled Policy for driving the circuit in tests.
type stubPolicy struct {
	mu           sync.Mutex
	punished     bool
	stayPunished bool
	successes    int
	failures     int
	resets       int
}

func (p *stubPolicy) RecordSuccess() {
	p.mu.Lock()
	p.successes++
	p.mu.Unlock()
}

func (p *stubPolicy) RecordFailure() {
	p.mu.Lock()
	p.failures++
	p.mu.Unlock()
}

func (p *stubPolicy) IsPunished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.punished
}

func (p *stubPolicy) Reset() {
	p.mu.Lock()
	p.resets++
	if !p.stayPunished {
		p.punished = false
	}
	p.mu.Unlock()
}

func (p *stubPolicy) punish() {
	p.mu.Lock()
	p.punished = true
	p.mu.Unlock()
}

func (p *stubPolicy) counts() (successes, failures, resets int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.successes, p.failures, p.resets
}

func counterValue(t *testing.T, scope tally.TestScope, name string) int64 {
	t.Helper()
	for _, counter := range scope.Snapshot().Counters() {
		if counter.Name() == name {
			return counter.Value()
		}
	}
	return 0
}

func TestNewCircuitValidation(t *testing.T) {
	t.Run("nil_policy", func(t *testing.T) {
		circuit, err := NewCircuit(Config{TripFor: time.Second})
		require.Error(t, err)
		require.Nil(t, circuit)
	})

	t.Run("nonpositive_trip_duration", func(t *testing.T) {
		circuit, err := NewCircuit(Config{Policy: &stubPolicy{}})
		require.Error(t, err)
		require.Nil(t, circuit)
	})

	t.Run("valid", func(t *testing.T) {
		circuit, err := NewCircuit(Config{Policy: &stubPolicy{}, TripFor: time.Second})
		require.NoError(t, err)
		require.NotNil(t, circuit)
		assert.Equal(t, Closed, circuit.State())
	})
}

func TestCircuitTripsAndReleases(t *testing.T) {
	clock := newFakeClock()
	policy := &stubPolicy{}
	scope := tally.NewTestScope("", nil)

	circuit, err := NewCircuit(
		Config{Policy: policy, TripFor: 10 * time.Second},
		WithNowFn(clock.Now),
		WithScope(scope),
		WithLogger(zap.NewNop()),
	)
	require.NoError(t, err)

	ok, _ := circuit.Admit()
	require.True(t, ok, "healthy policy must admit")

	policy.punish()
	ok, retryAt := circuit.Admit()
	require.False(t, ok, "punished policy must trip the circuit")
	assert.Equal(t, clock.Now().Add(10*time.Second), retryAt)
	assert.Equal(t, Tripped, circuit.State())

	_, _, resets := policy.counts()
	assert.Equal(t, 1, resets, "each trip resets the policy exactly once")

	clock.Advance(9 * time.Second)
	ok, _ = circuit.Admit()
	assert.False(t, ok, "admission stays refused until the deadline")

	clock.Advance(time.Second)
	ok, _ = circuit.Admit()
	assert.True(t, ok, "admission resumes once the cooldown elapses")
	assert.Equal(t, Closed, circuit.State())

	assert.Equal(t, int64(1), counterValue(t, scope, "circuit_breaker_tripped"))
	assert.Equal(t, int64(1), counterValue(t, scope, "circuit_breaker_released"))
}

func TestCircuitRearmsWhileStillPunished(t *testing.T) {
	clock := newFakeClock()
	policy := &stubPolicy{stayPunished: true}

	circuit, err := NewCircuit(
		Config{Policy: policy, TripFor: 10 * time.Second},
		WithNowFn(clock.Now),
	)
	require.NoError(t, err)

	policy.punish()
	ok, firstDeadline := circuit.Admit()
	require.False(t, ok)

	// The policy still reports punishment halfway through the cooldown,
	// so the next check extends the trip.
	clock.Advance(5 * time.Second)
	ok, secondDeadline := circuit.Admit()
	require.False(t, ok)
	assert.True(t, secondDeadline.After(firstDeadline))

	_, _, resets := policy.counts()
	assert.Equal(t, 2, resets)
}

func TestCircuitAllowWaitsOutTrip(t *testing.T) {
	policy := &stubPolicy{}
	circuit, err := NewCircuit(Config{Policy: policy, TripFor: 30 * time.Millisecond})
	require.NoError(t, err)

	policy.punish()
	start := time.Now()
	require.NoError(t, circuit.Allow(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond,
		"a tripped circuit must hold the caller until the deadline")
	assert.Equal(t, Closed, circuit.State())
}

func TestCircuitAllowAbandonedRecordsNothing(t *testing.T) {
	policy := &stubPolicy{}
	circuit, err := NewCircuit(Config{Policy: policy, TripFor: time.Hour})
	require.NoError(t, err)

	policy.punish()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = circuit.Allow(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	successes, failures, _ := policy.counts()
	assert.Zero(t, successes)
	assert.Zero(t, failures)
}

func TestCircuitCallForwardsOutcome(t *testing.T) {
	policy := &stubPolicy{}
	circuit, err := NewCircuit(Config{Policy: policy, TripFor: time.Second})
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		err := circuit.Call(context.Background(), func(context.Context) error {
			return nil
		})
		require.NoError(t, err)
		successes, _, _ := policy.counts()
		assert.Equal(t, 1, successes)
	})

	t.Run("failure", func(t *testing.T) {
		errBoom := errors.New("boom")
		err := circuit.Call(context.Background(), func(context.Context) error {
			return errBoom
		})
		assert.Equal(t, errBoom, err, "the downstream error must be forwarded unchanged")
		_, failures, _ := policy.counts()
		assert.Equal(t, 1, failures)
	})
}

func TestCircuitCallCancelledRecordsNothing(t *testing.T) {
	policy := &stubPolicy{}
	circuit, err := NewCircuit(Config{Policy: policy, TripFor: time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	err = circuit.Call(ctx, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)

	successes, failures, _ := policy.counts()
	assert.Zero(t, successes, "abandoned calls must not count")
	assert.Zero(t, failures, "abandoned calls must not count")
}

func TestCircuitCallPanicsWhileTripped(t *testing.T) {
	clock := newFakeClock()
	policy := &stubPolicy{}
	circuit, err := NewCircuit(
		Config{Policy: policy, TripFor: time.Minute},
		WithNowFn(clock.Now),
	)
	require.NoError(t, err)

	policy.punish()
	ok, _ := circuit.Admit()
	require.False(t, ok)

	require.Panics(t, func() {
		_ = circuit.Call(context.Background(), func(context.Context) error {
			return nil
		})
	})
}

func TestCircuitExecuteWithFailureRatePolicy(t *testing.T) {
	policy, err := NewSlidingFailureRate(time.Minute, 0)
	require.NoError(t, err)

	circuit, err := NewCircuit(Config{Policy: policy, TripFor: 20 * time.Millisecond})
	require.NoError(t, err)

	errBoom := errors.New("boom")
	err = circuit.Execute(context.Background(), func(context.Context) error {
		return errBoom
	})
	require.Equal(t, errBoom, err)

	// The recorded failure trips the circuit on the next admission
	// check; Execute waits out the cooldown, after which the policy has
	// been reset and the call proceeds.
	start := time.Now()
	err = circuit.Execute(context.Background(), func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.False(t, policy.IsPunished(), "post-reset history starts clean")
}
