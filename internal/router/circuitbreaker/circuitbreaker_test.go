package circuitbreaker_test

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-gateway/internal/router/circuitbreaker"
)

const (
	testProvider    = "test-provider"
	anotherProvider = "another-provider"
)

func recordFailures(cb *circuitbreaker.CircuitBreaker, name string, n int) {
	for i := 0; i < n; i++ {
		cb.RecordFailure(name)
	}
}

func recordSuccesses(cb *circuitbreaker.CircuitBreaker, name string, n int) {
	for i := 0; i < n; i++ {
		cb.RecordSuccess(name)
	}
}

func TestNewCircuitBreaker(t *testing.T) {
	t.Run("Default config", func(t *testing.T) {
		cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{})
		require.NotNil(t, cb)
		// Defaults require 5 recorded calls before the circuit may trip.
		recordFailures(cb, testProvider, 4)
		assert.True(t, cb.AllowRequest(testProvider), "Should still be closed below minimum calls")
		cb.RecordFailure(testProvider)
		assert.False(t, cb.AllowRequest(testProvider), "Should be open after 5 failures with default config")
	})

	t.Run("Custom config", func(t *testing.T) {
		cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
			SlidingWindowSize: 4,
			MinimumCalls:      2,
			OpenTimeout:       100 * time.Millisecond,
		})
		cb.RecordFailure(testProvider)
		assert.True(t, cb.AllowRequest(testProvider), "Should still be closed after 1 call")
		cb.RecordFailure(testProvider)
		assert.False(t, cb.AllowRequest(testProvider), "Should be open after 2 failures with custom config")
	})
}

func TestCircuitBreaker_FailureRate(t *testing.T) {
	cfg := circuitbreaker.Config{
		SlidingWindowSize:    10,
		MinimumCalls:         4,
		FailureRateThreshold: 50,
	}

	t.Run("Rate below threshold stays closed", func(t *testing.T) {
		cb := circuitbreaker.NewCircuitBreaker(cfg)
		cb.RecordFailure(testProvider)
		recordSuccesses(cb, testProvider, 3)
		state, rate := cb.GetProviderStatus(testProvider)
		assert.Equal(t, circuitbreaker.StateClosed, state)
		assert.InDelta(t, 25.0, rate, 0.001)
	})

	t.Run("Rate equal to threshold opens", func(t *testing.T) {
		cb := circuitbreaker.NewCircuitBreaker(cfg)
		recordSuccesses(cb, testProvider, 2)
		recordFailures(cb, testProvider, 2)
		assert.Equal(t, circuitbreaker.StateOpen, cb.GetState(testProvider))
	})

	t.Run("All failures below minimum calls stays closed", func(t *testing.T) {
		cb := circuitbreaker.NewCircuitBreaker(cfg)
		recordFailures(cb, testProvider, 3)
		state, rate := cb.GetProviderStatus(testProvider)
		assert.Equal(t, circuitbreaker.StateClosed, state)
		assert.InDelta(t, 100.0, rate, 0.001)
	})
}

func TestCircuitBreaker_SlidingWindowEvictsOldOutcomes(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		SlidingWindowSize:    4,
		MinimumCalls:         4,
		FailureRateThreshold: 75,
	})

	recordFailures(cb, testProvider, 2)
	recordSuccesses(cb, testProvider, 3) // window: F S S S
	_, rate := cb.GetProviderStatus(testProvider)
	assert.InDelta(t, 25.0, rate, 0.001)

	recordFailures(cb, testProvider, 2) // window: S S F F
	state, rate := cb.GetProviderStatus(testProvider)
	assert.Equal(t, circuitbreaker.StateClosed, state)
	assert.InDelta(t, 50.0, rate, 0.001)

	cb.RecordFailure(testProvider) // window: S F F F
	assert.Equal(t, circuitbreaker.StateOpen, cb.GetState(testProvider))
}

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	cfg := circuitbreaker.Config{
		SlidingWindowSize: 4,
		MinimumCalls:      2,
		OpenTimeout:       50 * time.Millisecond, // Short for testing
		HalfOpenMaxCalls:  2,
	}

	t.Run("Closed_To_Open", func(t *testing.T) {
		cb := circuitbreaker.NewCircuitBreaker(cfg)

		assert.True(t, cb.AllowRequest(testProvider), "Should be initially Closed and allow requests")
		state, rate := cb.GetProviderStatus(testProvider)
		assert.Equal(t, circuitbreaker.StateClosed, state)
		assert.Equal(t, 0.0, rate)

		recordFailures(cb, testProvider, 2)
		state, _ = cb.GetProviderStatus(testProvider)
		assert.Equal(t, circuitbreaker.StateOpen, state, "Should transition to Open")
		assert.False(t, cb.AllowRequest(testProvider), "Should be Open and block requests")
	})

	t.Run("Open_To_HalfOpen", func(t *testing.T) {
		cb := circuitbreaker.NewCircuitBreaker(cfg)
		recordFailures(cb, testProvider, 2)
		require.False(t, cb.AllowRequest(testProvider), "Pre-condition: Should be Open")

		time.Sleep(cfg.OpenTimeout + 10*time.Millisecond)

		assert.True(t, cb.AllowRequest(testProvider), "Should allow request (transition to HalfOpen)")
		assert.Equal(t, circuitbreaker.StateHalfOpen, cb.GetState(testProvider))
	})

	t.Run("HalfOpen_Admits_Bounded_Trials", func(t *testing.T) {
		cb := circuitbreaker.NewCircuitBreaker(cfg)
		recordFailures(cb, testProvider, 2)
		time.Sleep(cfg.OpenTimeout + 10*time.Millisecond)

		assert.True(t, cb.AllowRequest(testProvider), "First trial")
		assert.True(t, cb.AllowRequest(testProvider), "Second trial")
		assert.False(t, cb.AllowRequest(testProvider), "Trial budget exhausted")
		assert.Equal(t, circuitbreaker.StateHalfOpen, cb.GetState(testProvider))
	})

	t.Run("HalfOpen_To_Closed_OnSuccess", func(t *testing.T) {
		cb := circuitbreaker.NewCircuitBreaker(cfg)
		recordFailures(cb, testProvider, 2)
		time.Sleep(cfg.OpenTimeout + 10*time.Millisecond)
		require.True(t, cb.AllowRequest(testProvider))
		require.True(t, cb.AllowRequest(testProvider))

		cb.RecordSuccess(testProvider)
		assert.Equal(t, circuitbreaker.StateHalfOpen, cb.GetState(testProvider), "Needs every trial outcome")
		cb.RecordSuccess(testProvider)

		state, rate := cb.GetProviderStatus(testProvider)
		assert.Equal(t, circuitbreaker.StateClosed, state, "Should transition to Closed after successful trials")
		assert.Equal(t, 0.0, rate, "Window should be reset")
		assert.True(t, cb.AllowRequest(testProvider), "Should allow requests in Closed state")
	})

	t.Run("HalfOpen_To_Open_OnFailure", func(t *testing.T) {
		cb := circuitbreaker.NewCircuitBreaker(cfg)
		recordFailures(cb, testProvider, 2)
		time.Sleep(cfg.OpenTimeout + 10*time.Millisecond)
		require.True(t, cb.AllowRequest(testProvider))
		require.True(t, cb.AllowRequest(testProvider))

		cb.RecordSuccess(testProvider)
		cb.RecordFailure(testProvider)
		assert.Equal(t, circuitbreaker.StateOpen, cb.GetState(testProvider), "Should transition back to Open")
		assert.False(t, cb.AllowRequest(testProvider), "Should block requests in Open state")

		// A fresh open timeout starts on re-opening.
		time.Sleep(cfg.OpenTimeout / 2)
		assert.False(t, cb.AllowRequest(testProvider), "Should still be Open before OpenTimeout passes again")
	})
}

func TestCircuitBreaker_LateOutcomeWhileOpenIgnored(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{SlidingWindowSize: 2, MinimumCalls: 2, OpenTimeout: time.Minute})
	recordFailures(cb, testProvider, 2)
	require.Equal(t, circuitbreaker.StateOpen, cb.GetState(testProvider))

	recordSuccesses(cb, testProvider, 5)
	assert.Equal(t, circuitbreaker.StateOpen, cb.GetState(testProvider))
	assert.False(t, cb.AllowRequest(testProvider))
}

func TestCircuitBreaker_PermitFromEarlierStateDropped(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		SlidingWindowSize: 2,
		MinimumCalls:      2,
		OpenTimeout:       20 * time.Millisecond,
		HalfOpenMaxCalls:  3,
	})

	// two slow calls admitted while Closed
	slow1, ok := cb.Acquire(testProvider)
	require.True(t, ok)
	slow2, ok := cb.Acquire(testProvider)
	require.True(t, ok)

	trip1, _ := cb.Acquire(testProvider)
	trip2, _ := cb.Acquire(testProvider)
	cb.Failure(trip1)
	cb.Failure(trip2)
	require.Equal(t, circuitbreaker.StateOpen, cb.GetState(testProvider))

	time.Sleep(30 * time.Millisecond)
	trial, ok := cb.Acquire(testProvider)
	require.True(t, ok)
	require.Equal(t, circuitbreaker.StateHalfOpen, cb.GetState(testProvider))

	// the slow Closed-era calls finish now and must not count as trials
	cb.Success(slow1)
	cb.Success(slow2)
	cb.Failure(trial)
	assert.Equal(t, circuitbreaker.StateHalfOpen, cb.GetState(testProvider), "Stale outcomes must not complete the trial round")

	p2, ok := cb.Acquire(testProvider)
	require.True(t, ok)
	p3, ok := cb.Acquire(testProvider)
	require.True(t, ok)
	cb.Failure(p2)
	cb.Success(p3)
	assert.Equal(t, circuitbreaker.StateOpen, cb.GetState(testProvider), "Two of three trials failed")
}

func TestCircuitBreaker_MultipleProviders(t *testing.T) {
	cfg := circuitbreaker.Config{SlidingWindowSize: 1, MinimumCalls: 1, OpenTimeout: 50 * time.Millisecond, HalfOpenMaxCalls: 1}
	cb := circuitbreaker.NewCircuitBreaker(cfg)

	cb.RecordFailure(testProvider)
	assert.False(t, cb.AllowRequest(testProvider), "Provider1 should be Open")

	assert.True(t, cb.AllowRequest(anotherProvider), "Provider2 should be Closed and allow requests")
	cb.RecordFailure(anotherProvider)
	assert.False(t, cb.AllowRequest(anotherProvider), "Provider2 should now be Open")

	time.Sleep(cfg.OpenTimeout + 10*time.Millisecond)
	assert.True(t, cb.AllowRequest(testProvider), "Provider1 should be HalfOpen")
	cb.RecordSuccess(testProvider)
	assert.True(t, cb.AllowRequest(testProvider), "Provider1 should be Closed")

	assert.True(t, cb.AllowRequest(anotherProvider), "Provider2 should be HalfOpen after its timeout")
	cb.RecordFailure(anotherProvider)
	assert.False(t, cb.AllowRequest(anotherProvider), "Provider2 should be Open again")
	assert.Equal(t, circuitbreaker.StateClosed, cb.GetState(testProvider))
}

func TestCircuitBreaker_ConcurrentHalfOpenTrials(t *testing.T) {
	cfg := circuitbreaker.Config{SlidingWindowSize: 1, MinimumCalls: 1, OpenTimeout: 20 * time.Millisecond, HalfOpenMaxCalls: 3}
	cb := circuitbreaker.NewCircuitBreaker(cfg)
	cb.RecordFailure(testProvider)
	time.Sleep(cfg.OpenTimeout + 10*time.Millisecond)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cb.AllowRequest(testProvider) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, cfg.HalfOpenMaxCalls, allowed)
}

func TestCircuitBreaker_Metrics(t *testing.T) {
	name := "metrics-provider"
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{SlidingWindowSize: 1, MinimumCalls: 1, OpenTimeout: time.Minute})

	assert.True(t, cb.AllowRequest(name))
	assert.Equal(t, float64(circuitbreaker.StateClosed), testutil.ToFloat64(circuitbreaker.GetStateGauge().WithLabelValues(name)))

	before := testutil.ToFloat64(circuitbreaker.GetRejectedTotal().WithLabelValues(name))
	cb.RecordFailure(name)
	assert.Equal(t, float64(circuitbreaker.StateOpen), testutil.ToFloat64(circuitbreaker.GetStateGauge().WithLabelValues(name)))

	assert.False(t, cb.AllowRequest(name))
	assert.False(t, cb.AllowRequest(name))
	after := testutil.ToFloat64(circuitbreaker.GetRejectedTotal().WithLabelValues(name))
	assert.Equal(t, 2.0, after-before)
}

func TestCircuitBreaker_AllowRequest_CreatesState(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{})
	assert.True(t, cb.AllowRequest("new-provider"))
	state, rate := cb.GetProviderStatus("new-provider")
	assert.Equal(t, circuitbreaker.StateClosed, state)
	assert.Equal(t, 0.0, rate)
}

func TestCircuitBreaker_GetState_UntrackedProvider(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{})
	assert.Equal(t, circuitbreaker.StateClosed, cb.GetState("untracked-provider"))
}

func TestCircuitBreaker_State_String(t *testing.T) {
	assert.Equal(t, "Closed", circuitbreaker.StateClosed.String())
	assert.Equal(t, "Open", circuitbreaker.StateOpen.String())
	assert.Equal(t, "HalfOpen", circuitbreaker.StateHalfOpen.String())
	assert.Equal(t, "Unknown", circuitbreaker.State(99).String())
}
