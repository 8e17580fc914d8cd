package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// ErrOpen is returned by callers that consult the breaker while it refuses
// requests.
var ErrOpen = errors.New("resilience: circuit open")

// State is the breaker's position in its lifecycle.
type State int

const (
	// Closed lets every request through and counts failures.
	Closed State = iota
	// Open rejects requests until the cooldown elapses.
	Open
	// HalfOpen admits a single probe to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dependency_breaker_state",
			Help: "Breaker state per downstream dependency: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	breakerOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dependency_breaker_opened_total",
			Help: "Times a dependency breaker tripped open",
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(breakerState, breakerOpened)
}

// Breaker trips after a run of consecutive failures against a downstream
// dependency and stays open for a cooldown before probing again. The zero
// value is not usable; construct with New.
type Breaker struct {
	mu       sync.Mutex
	state    State
	failures int

	target      string
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	now         func() time.Time
	log         zerolog.Logger
}

// New builds a breaker for the named dependency. It opens after maxFailures
// consecutive failures and probes again after cooldown.
func New(target string, maxFailures int, cooldown time.Duration, log zerolog.Logger) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	b := &Breaker{
		target:      target,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
		log:         log,
	}
	breakerState.WithLabelValues(target).Set(0)
	return b
}

// Allow reports whether a request may proceed. An open breaker admits one
// probe once the cooldown has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.moveLocked(HalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// Report records the outcome of a permitted request.
func (b *Breaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		if success {
			b.moveLocked(Closed)
		} else {
			b.moveLocked(Open)
		}
	case Closed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.maxFailures {
			b.moveLocked(Open)
		}
	}
}

// CurrentState returns the breaker position at the time of the call.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) moveLocked(next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.failures = 0
	if next == Open {
		b.openedAt = b.now()
		breakerOpened.WithLabelValues(b.target).Inc()
	}
	breakerState.WithLabelValues(b.target).Set(float64(next))
	b.log.Warn().
		Str("target", b.target).
		Str("from", prev.String()).
		Str("to", next.String()).
		Msg("breaker state change")
}
