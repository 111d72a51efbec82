package intercept

import (
	"fmt"
	"sync"
)

// MapRegistry is an in-memory Registry for Go hosts
type MapRegistry struct {
	mu     sync.RWMutex
	funcs  map[Capability]Func
	claims map[string]bool
}

// NewMapRegistry creates a registry seeded with funcs
func NewMapRegistry(funcs map[Capability]Func) *MapRegistry {
	r := &MapRegistry{
		funcs:  make(map[Capability]Func, len(funcs)),
		claims: make(map[string]bool),
	}
	for c, fn := range funcs {
		r.funcs[c] = fn
	}
	return r
}

// Get returns the current primitive for c
func (r *MapRegistry) Get(c Capability) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[c]
	return fn, ok
}

// Set replaces the primitive for c
func (r *MapRegistry) Set(c Capability, fn Func) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[c] = fn
	return nil
}

// Claim sets a one-time marker
func (r *MapRegistry) Claim(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claims[key] {
		return false
	}
	r.claims[key] = true
	return true
}

// Call invokes the current primitive for c
func (r *MapRegistry) Call(c Capability, inv Invocation) (any, error) {
	fn, ok := r.Get(c)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, c)
	}
	return fn(inv)
}
