package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("connection refused")

func fail(context.Context) error { return errBoom }
func ok(context.Context) error   { return nil }

func newTestBreaker(clock *time.Time) (*CircuitBreaker, *[]CircuitBreakerState) {
	var transitions []CircuitBreakerState
	cb := NewCircuitBreaker("media", Settings{
		FailureThreshold: 2,
		Cooldown:         time.Minute,
		OnStateChange: func(_ string, _, to CircuitBreakerState) {
			transitions = append(transitions, to)
		},
	})
	cb.now = func() time.Time { return *clock }
	return cb, &transitions
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := time.Now()
	cb, transitions := newTestBreaker(&clock)
	ctx := context.Background()

	calls := 0
	counting := func(context.Context) error { calls++; return errBoom }

	assert.ErrorIs(t, cb.Execute(ctx, "create_room", counting), errBoom)
	assert.Equal(t, CircuitBreakerClosed, cb.GetCircuitBreakerState())
	assert.ErrorIs(t, cb.Execute(ctx, "create_room", counting), errBoom)
	assert.Equal(t, CircuitBreakerOpen, cb.GetCircuitBreakerState())

	// Open circuit rejects without calling through.
	assert.ErrorIs(t, cb.Execute(ctx, "create_room", counting), ErrCircuitOpen)
	assert.Equal(t, 2, calls, "failures are never retried")
	assert.Equal(t, []CircuitBreakerState{CircuitBreakerOpen}, *transitions)
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	clock := time.Now()
	cb, transitions := newTestBreaker(&clock)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, "delete_room", fail))
	require.Error(t, cb.Execute(ctx, "delete_room", fail))

	// A failing trial reopens the circuit.
	clock = clock.Add(2 * time.Minute)
	assert.ErrorIs(t, cb.Execute(ctx, "delete_room", fail), errBoom)
	assert.Equal(t, CircuitBreakerOpen, cb.GetCircuitBreakerState())

	// A succeeding trial closes it.
	clock = clock.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(ctx, "delete_room", ok))
	assert.Equal(t, CircuitBreakerClosed, cb.GetCircuitBreakerState())

	assert.Equal(t, []CircuitBreakerState{
		CircuitBreakerOpen,
		CircuitBreakerHalfOpen,
		CircuitBreakerOpen,
		CircuitBreakerHalfOpen,
		CircuitBreakerClosed,
	}, *transitions)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	clock := time.Now()
	cb, _ := newTestBreaker(&clock)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, "op", fail))
	require.NoError(t, cb.Execute(ctx, "op", ok))
	require.Error(t, cb.Execute(ctx, "op", fail))
	assert.Equal(t, CircuitBreakerClosed, cb.GetCircuitBreakerState())
}

func TestCircuitBreaker_AppliesTimeout(t *testing.T) {
	cb := NewCircuitBreaker("media", Settings{Timeout: 10 * time.Millisecond})

	err := cb.Execute(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "timeout", classifyError(err))
}

func TestCircuitBreakerState_Gauge(t *testing.T) {
	assert.Equal(t, 0.0, CircuitBreakerClosed.Gauge())
	assert.Equal(t, 1.0, CircuitBreakerHalfOpen.Gauge())
	assert.Equal(t, 2.0, CircuitBreakerOpen.Gauge())
}
