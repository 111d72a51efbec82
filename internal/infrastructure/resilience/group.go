package resilience

import (
	"sort"
	"sync"
)

// Group keeps one breaker per key, created on first use. Keys are upstream
// hosts: a dead host in an archived page must not block the others.
type Group struct {
	name     string
	settings Settings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGroup creates an empty group. Breakers are named "name/key".
func NewGroup(name string, settings Settings) *Group {
	return &Group{
		name:     name,
		settings: settings.withDefaults(),
		breakers: make(map[string]*Breaker),
	}
}

func (g *Group) Name() string {
	return g.name
}

// Get returns the breaker for key, creating it closed
func (g *Group) Get(key string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.breakers[key]
	if !ok {
		b = New(g.name+"/"+key, g.settings)
		g.breakers[key] = b
	}
	return b
}

// States returns the state of every breaker created so far
func (g *Group) States() map[string]State {
	g.mu.Lock()
	breakers := make(map[string]*Breaker, len(g.breakers))
	for k, b := range g.breakers {
		breakers[k] = b
	}
	g.mu.Unlock()

	out := make(map[string]State, len(breakers))
	for k, b := range breakers {
		out[k] = b.State()
	}
	return out
}

// Tripped returns the sorted keys whose breaker is not closed
func (g *Group) Tripped() []string {
	keys := []string{}
	for k, s := range g.States() {
		if s != StateClosed {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.breakers)
}
