package sandbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrClosed     = errors.New("sandbox runtime is closed")
	ErrPoolClosed = errors.New("sandbox pool is closed")
	ErrTimeout    = errors.New("sandbox acquisition timeout")
)

// AcquireTimeout bounds how long Acquire waits for a free runtime
const AcquireTimeout = 5 * time.Second

// Pool hands out runtimes, one page per runtime at a time. Runtimes are
// created on demand up to size. A released runtime is reset so the next
// page starts from fresh globals; one whose reset fails is dropped and its
// slot reopened.
type Pool struct {
	config Config
	opts   []Option
	size   int

	idle  chan *Runtime
	slots chan struct{} // one token per runtime not yet created
	done  chan struct{}

	mu       sync.RWMutex
	closed   bool
	created  atomic.Int64
	replaced atomic.Int64
}

// NewPool creates a pool of up to size runtimes. Options apply to every
// runtime. One runtime is created up front so a bad config fails here.
func NewPool(config Config, size int, opts ...Option) (*Pool, error) {
	if size <= 0 {
		size = 4
	}

	p := &Pool{
		config: config,
		opts:   opts,
		size:   size,
		idle:   make(chan *Runtime, size),
		slots:  make(chan struct{}, size),
		done:   make(chan struct{}),
	}
	for i := 0; i < size-1; i++ {
		p.slots <- struct{}{}
	}

	rt, err := p.create()
	if err != nil {
		return nil, err
	}
	p.idle <- rt
	return p, nil
}

func (p *Pool) create() (*Runtime, error) {
	rt, err := New(p.config, p.opts...)
	if err != nil {
		return nil, err
	}
	p.created.Add(1)
	return rt, nil
}

// Acquire returns an idle runtime, creates one while the pool is below
// size, or waits up to AcquireTimeout for a release
func (p *Pool) Acquire(ctx context.Context) (*Runtime, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrPoolClosed
	}

	select {
	case rt, ok := <-p.idle:
		return p.handOut(rt, ok)
	default:
	}

	wait := time.NewTimer(AcquireTimeout)
	defer wait.Stop()

	select {
	case rt, ok := <-p.idle:
		return p.handOut(rt, ok)
	case <-p.slots:
		rt, err := p.create()
		if err != nil {
			p.slots <- struct{}{}
			return nil, err
		}
		return rt, nil
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wait.C:
		return nil, ErrTimeout
	}
}

func (p *Pool) handOut(rt *Runtime, ok bool) (*Runtime, error) {
	if !ok {
		return nil, ErrPoolClosed
	}
	return rt, nil
}

// Release resets a runtime and returns it to the pool
func (p *Pool) Release(rt *Runtime) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return rt.Close()
	}

	if err := rt.Reset(); err != nil {
		rt.Close()
		p.replaced.Add(1)
		p.reopen()
		return err
	}

	select {
	case p.idle <- rt:
		return nil
	default:
		// Not one of ours
		return rt.Close()
	}
}

func (p *Pool) reopen() {
	select {
	case p.slots <- struct{}{}:
	default:
	}
}

// Execute runs a script on a pooled runtime with no page bound
func (p *Pool) Execute(ctx context.Context, script string) (*Result, error) {
	rt, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(rt)

	return rt.Execute(ctx, script)
}

// Close closes the pool and every idle runtime. Runtimes still held are
// closed by their Release.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)
	close(p.idle)
	for rt := range p.idle {
		rt.Close()
	}
	return nil
}

// Stats returns pool statistics. available counts idle runtimes plus
// runtimes that may still be created.
func (p *Pool) Stats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	available := len(p.idle) + len(p.slots)
	return map[string]interface{}{
		"size":      p.size,
		"available": available,
		"in_use":    p.size - available,
		"created":   int(p.created.Load()),
		"replaced":  int(p.replaced.Load()),
		"closed":    p.closed,
	}
}
