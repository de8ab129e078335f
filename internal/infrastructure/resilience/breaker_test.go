package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		requests      []bool // true = success, false = failure
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			settings:      Settings{Interval: time.Minute, Timeout: time.Minute},
			requests:      []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name: "opens after consecutive failures",
			settings: Settings{
				Interval: time.Minute,
				Timeout:  time.Minute,
				ReadyToTrip: func(counts Counts) bool {
					return counts.ConsecutiveFailures >= 3
				},
			},
			requests:      []bool{false, false, false},
			expectedState: StateOpen,
		},
		{
			name: "success resets the failure streak",
			settings: Settings{
				Interval: time.Minute,
				Timeout:  time.Minute,
				ReadyToTrip: func(counts Counts) bool {
					return counts.ConsecutiveFailures >= 2
				},
			},
			requests:      []bool{false, true, false},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("test", tt.settings)
			ctx := context.Background()

			for _, ok := range tt.requests {
				fn := fail
				if ok {
					fn = succeed
				}
				_ = breaker.Do(ctx, fn)
			}

			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestOpenBreakerFailsFast(t *testing.T) {
	breaker := New("test", Settings{
		Timeout:     time.Minute,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 2 },
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, breaker.Do(ctx, fail), errBoom)
	}

	called := false
	err := breaker.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestHalfOpenRecovers(t *testing.T) {
	var transitions []string
	breaker := New("test", Settings{
		MaxRequests: 2,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	_ = breaker.Do(ctx, fail)
	require.Equal(t, StateOpen, breaker.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, breaker.State())

	require.NoError(t, breaker.Do(ctx, succeed))
	require.NoError(t, breaker.Do(ctx, succeed))
	assert.Equal(t, StateClosed, breaker.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	breaker := New("test", Settings{
		Timeout:     10 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})
	ctx := context.Background()

	_ = breaker.Do(ctx, fail)
	time.Sleep(20 * time.Millisecond)
	_ = breaker.Do(ctx, fail)

	assert.Equal(t, StateOpen, breaker.State())
}

func TestPermanentErrorsDoNotTrip(t *testing.T) {
	breaker := New("test", Settings{
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})
	ctx := context.Background()

	notFound := errors.New("not found")
	err := breaker.Do(ctx, func(context.Context) error { return Permanent(notFound) })

	assert.Same(t, notFound, err)
	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, uint32(0), breaker.Counts().TotalFailures)
}

func TestCanceledContext(t *testing.T) {
	breaker := New("test", Settings{
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, breaker.Do(ctx, succeed), context.Canceled)
	assert.Equal(t, uint32(0), breaker.Counts().Requests)

	err := breaker.Do(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, breaker.State())
}
