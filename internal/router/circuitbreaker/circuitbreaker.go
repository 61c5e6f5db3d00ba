package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrOpen is returned to callers whose request was rejected by an open circuit.
var ErrOpen = errors.New("circuitbreaker: circuit open")

// State represents the state of the circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

const (
	defaultSlidingWindowSize    = 10
	defaultMinimumCalls         = 5
	defaultFailureRateThreshold = 50.0             // percent
	defaultOpenTimeout          = 10 * time.Second // time before Open moves to HalfOpen
	defaultHalfOpenMaxCalls     = 3
)

// Config tunes the breaker. Zero fields take the defaults above.
type Config struct {
	// SlidingWindowSize is how many recent outcomes the failure rate is computed over.
	SlidingWindowSize int
	// MinimumCalls is the number of recorded outcomes required before the circuit may trip.
	MinimumCalls int
	// FailureRateThreshold is the failure percentage at or above which the circuit opens.
	FailureRateThreshold float64
	// OpenTimeout is the cool-down before an open circuit admits trials.
	OpenTimeout time.Duration
	// HalfOpenMaxCalls is the number of trial calls admitted while half-open.
	HalfOpenMaxCalls int
}

func (c Config) withDefaults() Config {
	if c.SlidingWindowSize <= 0 {
		c.SlidingWindowSize = defaultSlidingWindowSize
	}
	if c.MinimumCalls <= 0 {
		c.MinimumCalls = defaultMinimumCalls
	}
	if c.MinimumCalls > c.SlidingWindowSize {
		c.MinimumCalls = c.SlidingWindowSize
	}
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 100 {
		c.FailureRateThreshold = defaultFailureRateThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = defaultOpenTimeout
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = defaultHalfOpenMaxCalls
	}
	return c
}

var (
	stateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "payment_gateway",
		Name:      "circuit_breaker_state",
		Help:      "Current circuit state per downstream: 0 closed, 1 open, 2 half-open.",
	}, []string{"name"})
	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payment_gateway",
		Name:      "circuit_breaker_rejected_total",
		Help:      "Calls rejected without reaching the downstream.",
	}, []string{"name"})
)

// GetRejectedTotal exposes the rejection counter for tests.
func GetRejectedTotal() *prometheus.CounterVec { return rejectedTotal }

// GetStateGauge exposes the state gauge for tests.
func GetStateGauge() *prometheus.GaugeVec { return stateGauge }

// window is a fixed-size ring of call outcomes.
type window struct {
	outcomes []bool // true = failure
	next     int
	count    int
	failures int
}

func newWindow(size int) *window {
	return &window{outcomes: make([]bool, size)}
}

func (w *window) add(failed bool) {
	if w.count == len(w.outcomes) {
		if w.outcomes[w.next] {
			w.failures--
		}
	} else {
		w.count++
	}
	w.outcomes[w.next] = failed
	if failed {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.outcomes)
}

func (w *window) failureRate() float64 {
	if w.count == 0 {
		return 0
	}
	return float64(w.failures) * 100 / float64(w.count)
}

func (w *window) reset() {
	for i := range w.outcomes {
		w.outcomes[i] = false
	}
	w.next, w.count, w.failures = 0, 0, 0
}

// Permit is an admission handed out by Acquire. Its outcome only counts
// toward the state that admitted it.
type Permit struct {
	Name       string
	Generation uint64
}

// providerState holds the current state for a single downstream.
type providerState struct {
	state      State
	generation uint64 // bumped on every transition
	window     *window
	openUntil  time.Time // when Open may transition to HalfOpen

	// HalfOpen trial accounting.
	trialsAdmitted int
	trialResults   int
	trialFailures  int
}

// CircuitBreaker gates calls to downstreams by name. Each name has its own
// independent state, guarded by a single mutex.
type CircuitBreaker struct {
	mu        sync.Mutex
	providers map[string]*providerState
	cfg       Config
	now       func() time.Time
}

// NewCircuitBreaker creates a new CircuitBreaker.
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	return &CircuitBreaker{
		providers: make(map[string]*providerState),
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

// getProviderState returns the state for name, creating it Closed. Callers hold cb.mu.
func (cb *CircuitBreaker) getProviderState(name string) *providerState {
	ps, exists := cb.providers[name]
	if !exists {
		ps = &providerState{state: StateClosed, window: newWindow(cb.cfg.SlidingWindowSize)}
		cb.providers[name] = ps
		stateGauge.WithLabelValues(name).Set(float64(StateClosed))
	}
	return ps
}

// AllowRequest reports whether a call to name may proceed. It moves an Open
// circuit to HalfOpen once the open timeout has elapsed and admits at most
// HalfOpenMaxCalls trials while HalfOpen.
func (cb *CircuitBreaker) AllowRequest(name string) bool {
	_, ok := cb.Acquire(name)
	return ok
}

// Acquire is AllowRequest returning a Permit for the admitted call. Report
// its outcome with Success or Failure; outcomes reported after the circuit
// has changed state are dropped.
func (cb *CircuitBreaker) Acquire(name string) (Permit, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	ps := cb.getProviderState(name)
	ok := cb.allow(name, ps)
	return Permit{Name: name, Generation: ps.generation}, ok
}

// Success reports a successful call admitted by p.
func (cb *CircuitBreaker) Success(p Permit) {
	cb.recordPermit(p, false)
}

// Failure reports a failed call admitted by p.
func (cb *CircuitBreaker) Failure(p Permit) {
	cb.recordPermit(p, true)
}

func (cb *CircuitBreaker) recordPermit(p Permit, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	ps := cb.getProviderState(p.Name)
	if p.Generation != ps.generation {
		return
	}
	cb.recordLocked(p.Name, ps, failed)
}

// allow applies the admission rules. Callers hold cb.mu.
func (cb *CircuitBreaker) allow(name string, ps *providerState) bool {
	switch ps.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Before(ps.openUntil) {
			rejectedTotal.WithLabelValues(name).Inc()
			return false
		}
		cb.transition(name, ps, StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if ps.trialsAdmitted >= cb.cfg.HalfOpenMaxCalls {
			rejectedTotal.WithLabelValues(name).Inc()
			return false
		}
		ps.trialsAdmitted++
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful call for name against the current
// state. Calls that can outlive a state change should use Acquire instead.
func (cb *CircuitBreaker) RecordSuccess(name string) {
	cb.record(name, false)
}

// RecordFailure records a failed call for name.
func (cb *CircuitBreaker) RecordFailure(name string) {
	cb.record(name, true)
}

// record counts an untagged outcome toward the current state.
func (cb *CircuitBreaker) record(name string, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.recordLocked(name, cb.getProviderState(name), failed)
}

// recordLocked applies one outcome. Callers hold cb.mu.
func (cb *CircuitBreaker) recordLocked(name string, ps *providerState, failed bool) {
	switch ps.state {
	case StateClosed:
		ps.window.add(failed)
		if ps.window.count >= cb.cfg.MinimumCalls && ps.window.failureRate() >= cb.cfg.FailureRateThreshold {
			cb.transition(name, ps, StateOpen)
		}
	case StateHalfOpen:
		ps.trialResults++
		if failed {
			ps.trialFailures++
		}
		if ps.trialResults < cb.cfg.HalfOpenMaxCalls {
			return
		}
		rate := float64(ps.trialFailures) * 100 / float64(ps.trialResults)
		if rate >= cb.cfg.FailureRateThreshold {
			cb.transition(name, ps, StateOpen)
		} else {
			cb.transition(name, ps, StateClosed)
		}
	case StateOpen:
		// a late outcome from a call admitted before the trip; ignored
	}
}

// transition moves ps to the target state and resets the bookkeeping that
// belongs to the new state. Callers hold cb.mu.
func (cb *CircuitBreaker) transition(name string, ps *providerState, to State) {
	ps.state = to
	ps.generation++
	ps.trialsAdmitted, ps.trialResults, ps.trialFailures = 0, 0, 0
	switch to {
	case StateOpen:
		ps.openUntil = cb.now().Add(cb.cfg.OpenTimeout)
		ps.window.reset()
	case StateClosed:
		ps.window.reset()
	}
	stateGauge.WithLabelValues(name).Set(float64(to))
}

// GetState returns the current state of name without transitioning it.
func (cb *CircuitBreaker) GetState(name string) State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	ps, exists := cb.providers[name]
	if !exists {
		return StateClosed
	}
	return ps.state
}

// GetProviderStatus returns the state and the failure rate of the current
// window for name.
func (cb *CircuitBreaker) GetProviderStatus(name string) (State, float64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	ps := cb.getProviderState(name)
	return ps.state, ps.window.failureRate()
}
