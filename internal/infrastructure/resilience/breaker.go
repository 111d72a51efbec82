package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Counts holds the statistics of the current window
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// FailureRatio returns failures over requests, 0 before the first request
func (c Counts) FailureRatio() float64 {
	if c.Requests == 0 {
		return 0
	}
	return float64(c.TotalFailures) / float64(c.Requests)
}

// Policy decides whether a closed breaker trips after a failure
type Policy func(Counts) bool

// ConsecutiveFailures trips after n failures in a row
func ConsecutiveFailures(n uint32) Policy {
	return func(c Counts) bool {
		return c.ConsecutiveFailures >= n
	}
}

// FailureRatio trips once at least min requests were seen in the window
// and more than ratio of them failed
func FailureRatio(min uint32, ratio float64) Policy {
	return func(c Counts) bool {
		return c.Requests >= min && c.FailureRatio() > ratio
	}
}

// AnyOf trips when any of the policies trips
func AnyOf(policies ...Policy) Policy {
	return func(c Counts) bool {
		for _, p := range policies {
			if p(c) {
				return true
			}
		}
		return false
	}
}

// Settings configures a breaker
type Settings struct {
	// Probes is how many requests a half-open breaker lets through. All of
	// them must succeed to close it again.
	Probes uint32
	// Window is how often counts reset while closed
	Window time.Duration
	// Cooldown is how long the breaker stays open before probing
	Cooldown time.Duration
	Trip     Policy

	OnStateChange func(name string, from, to State)

	// Clock replaces time.Now in tests
	Clock func() time.Time
}

func (s Settings) withDefaults() Settings {
	if s.Probes == 0 {
		s.Probes = 1
	}
	if s.Window <= 0 {
		s.Window = time.Minute
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Trip == nil {
		s.Trip = ConsecutiveFailures(5)
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	return s
}

// Breaker guards calls to one upstream
type Breaker struct {
	name     string
	settings Settings

	mu         sync.Mutex
	state      State
	counts     Counts
	expiry     time.Time
	generation uint64
}

// New creates a closed breaker
func New(name string, settings Settings) *Breaker {
	settings = settings.withDefaults()
	return &Breaker{
		name:     name,
		settings: settings,
		expiry:   settings.Clock().Add(settings.Window),
	}
}

func (b *Breaker) Name() string {
	return b.name
}

// State returns the state as of now, moving open to half-open once the
// cooldown has passed
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current(b.settings.Clock())
}

// Counts returns a copy of the current window's counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Allow reserves a request slot. The returned done must be called exactly
// once with the outcome; outcomes reported after a state change are ignored.
func (b *Breaker) Allow() (done func(success bool), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.settings.Clock()
	switch b.current(now) {
	case StateOpen:
		return nil, ErrCircuitOpen
	case StateHalfOpen:
		if b.counts.Requests >= b.settings.Probes {
			return nil, ErrTooManyRequests
		}
	}
	b.counts.Requests++

	gen := b.generation
	var once sync.Once
	return func(success bool) {
		once.Do(func() { b.record(gen, success) })
	}, nil
}

// Do runs fn through b. A panic in fn counts as a failure and is re-raised.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	done, err := b.Allow()
	if err != nil {
		var zero T
		return zero, err
	}

	ok := false
	defer func() {
		if !ok {
			done(false)
		}
	}()
	v, err := fn()
	ok = true
	done(err == nil)
	return v, err
}

func (b *Breaker) record(gen uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.settings.Clock()
	state := b.current(now)
	if gen != b.generation {
		return
	}

	if success {
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.Probes {
			b.transition(StateClosed, now)
		}
		return
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	switch state {
	case StateClosed:
		if b.settings.Trip(b.counts) {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		b.transition(StateOpen, now)
	}
}

// current applies time-driven transitions; callers hold mu
func (b *Breaker) current(now time.Time) State {
	switch b.state {
	case StateClosed:
		if now.After(b.expiry) {
			b.reset(now.Add(b.settings.Window))
		}
	case StateOpen:
		if now.After(b.expiry) {
			b.transition(StateHalfOpen, now)
		}
	}
	return b.state
}

func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to

	switch to {
	case StateClosed:
		b.reset(now.Add(b.settings.Window))
	case StateOpen:
		b.reset(now.Add(b.settings.Cooldown))
	case StateHalfOpen:
		b.reset(time.Time{})
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) reset(expiry time.Time) {
	b.counts = Counts{}
	b.expiry = expiry
	b.generation++
}
