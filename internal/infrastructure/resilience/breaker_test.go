package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errUpstream = errors.New("upstream failed")

func run(b *Breaker, success bool) error {
	_, err := Do(b, func() (string, error) {
		if success {
			return "ok", nil
		}
		return "", errUpstream
	})
	return err
}

func TestPolicies(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		counts Counts
		want   bool
	}{
		{"consecutive below", ConsecutiveFailures(3), Counts{ConsecutiveFailures: 2}, false},
		{"consecutive reached", ConsecutiveFailures(3), Counts{ConsecutiveFailures: 3}, true},
		{"ratio too few requests", FailureRatio(20, 0.7), Counts{Requests: 10, TotalFailures: 10}, false},
		{"ratio at threshold", FailureRatio(20, 0.7), Counts{Requests: 20, TotalFailures: 14}, false},
		{"ratio above threshold", FailureRatio(20, 0.7), Counts{Requests: 20, TotalFailures: 15}, true},
		{"any of", AnyOf(ConsecutiveFailures(3), FailureRatio(20, 0.7)), Counts{ConsecutiveFailures: 3}, true},
		{"any of none", AnyOf(ConsecutiveFailures(3), FailureRatio(20, 0.7)), Counts{Requests: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy(tt.counts))
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	b := New("test", Settings{Trip: ConsecutiveFailures(5)})

	require.NoError(t, run(b, true))
	require.ErrorIs(t, run(b, false), errUpstream)

	counts := b.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
	assert.InDelta(t, 0.5, counts.FailureRatio(), 1e-9)
}

func TestBreakerLifecycle(t *testing.T) {
	clock := newClock()
	var transitions []string
	b := New("test", Settings{
		Probes:   2,
		Cooldown: 30 * time.Second,
		Trip:     ConsecutiveFailures(2),
		Clock:    clock.Now,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	require.Error(t, run(b, false))
	assert.Equal(t, StateClosed, b.State())
	require.Error(t, run(b, false))
	assert.Equal(t, StateOpen, b.State())

	assert.ErrorIs(t, run(b, true), ErrCircuitOpen)

	clock.Advance(31 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	// Only Probes requests pass while half-open
	done1, err := b.Allow()
	require.NoError(t, err)
	done2, err := b.Allow()
	require.NoError(t, err)
	_, err = b.Allow()
	assert.ErrorIs(t, err, ErrTooManyRequests)

	done1(true)
	assert.Equal(t, StateHalfOpen, b.State())
	done2(true)
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	clock := newClock()
	b := New("test", Settings{Trip: ConsecutiveFailures(1), Cooldown: time.Second, Clock: clock.Now})

	require.Error(t, run(b, false))
	clock.Advance(2 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	require.ErrorIs(t, run(b, false), errUpstream)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerWindowReset(t *testing.T) {
	clock := newClock()
	b := New("test", Settings{Window: time.Minute, Trip: ConsecutiveFailures(3), Clock: clock.Now})

	require.Error(t, run(b, false))
	require.Error(t, run(b, false))
	clock.Advance(2 * time.Minute)
	require.Error(t, run(b, false))

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(1), b.Counts().ConsecutiveFailures)
}

func TestBreakerStaleOutcomeIgnored(t *testing.T) {
	clock := newClock()
	b := New("test", Settings{Trip: ConsecutiveFailures(1), Clock: clock.Now})

	slow, err := b.Allow()
	require.NoError(t, err)
	require.Error(t, run(b, false))
	require.Equal(t, StateOpen, b.State())

	// Reported after the breaker opened
	slow(true)
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, uint32(0), b.Counts().TotalSuccesses)
}

func TestDoPanicCountsAsFailure(t *testing.T) {
	b := New("test", Settings{Trip: ConsecutiveFailures(1)})

	assert.Panics(t, func() {
		_, _ = Do(b, func() (int, error) {
			panic("boom")
		})
	})
	assert.Equal(t, StateOpen, b.State())
}

func TestGroup(t *testing.T) {
	clock := newClock()
	g := NewGroup("fetch", Settings{Trip: ConsecutiveFailures(2), Clock: clock.Now})

	dead := g.Get("dead.example.com")
	assert.Same(t, dead, g.Get("dead.example.com"))
	assert.Equal(t, "fetch/dead.example.com", dead.Name())

	require.Error(t, run(dead, false))
	require.Error(t, run(dead, false))
	require.NoError(t, run(g.Get("live.example.com"), true))

	assert.Equal(t, 2, g.Len())
	assert.Equal(t, []string{"dead.example.com"}, g.Tripped())
	assert.Equal(t, map[string]State{
		"dead.example.com": StateOpen,
		"live.example.com": StateClosed,
	}, g.States())
	assert.NoError(t, run(g.Get("live.example.com"), true))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
