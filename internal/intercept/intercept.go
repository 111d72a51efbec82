package intercept

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/monitoring"
)

var (
	ErrAlreadyInstalled  = errors.New("interceptors already installed")
	ErrUnknownCapability = errors.New("unknown capability")
)

// Capability names a request-initiating primitive of the page
type Capability string

const (
	// XHROpen is XMLHttpRequest.prototype.open(method, url, ...)
	XHROpen Capability = "xhr.open"
	// Fetch is fetch(resource, init)
	Fetch Capability = "fetch"
)

// Capabilities lists what Install wraps, in installation order
var Capabilities = []Capability{XHROpen, Fetch}

// installKey marks a registry as wrapped
const installKey = "replaypatch.interceptors"

// URLArgument returns the index of the URL argument of c
func URLArgument(c Capability) (int, bool) {
	switch c {
	case XHROpen:
		return 1, true
	case Fetch:
		return 0, true
	}
	return 0, false
}

// Invocation is one call of a primitive
type Invocation struct {
	This any
	Args []any
}

// Func is a request primitive
type Func func(inv Invocation) (any, error)

// Registry holds the primitives a page calls through. Implementations are
// owned by the environment (a map for Go hosts, the script globals for a
// JavaScript runtime).
type Registry interface {
	// Get returns the current primitive for c
	Get(c Capability) (Func, bool)
	// Set replaces the primitive for c
	Set(c Capability, fn Func) error
	// Claim sets a one-time marker and reports whether this call set it
	Claim(key string) bool
}

// Rewriter rewrites a URL argument; non-strings must pass through
type Rewriter interface {
	Value(v any) any
}

// Option configures Install
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// WithLogger logs every rewritten argument at debug level
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.Named("intercept")
		}
	}
}

// WithMetrics counts intercepted calls per capability
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// Install wraps every capability of reg so that its URL argument goes
// through rw before the original primitive runs. All other arguments and
// the result are passed through untouched. It must run before page code
// can capture the originals; a second call on the same registry returns
// ErrAlreadyInstalled and changes nothing.
func Install(reg Registry, rw Rewriter, opts ...Option) error {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	originals := make(map[Capability]Func, len(Capabilities))
	for _, c := range Capabilities {
		fn, ok := reg.Get(c)
		if !ok || fn == nil {
			return fmt.Errorf("%w: %s", ErrUnknownCapability, c)
		}
		originals[c] = fn
	}

	if !reg.Claim(installKey) {
		return ErrAlreadyInstalled
	}

	for _, c := range Capabilities {
		idx, _ := URLArgument(c)
		if err := reg.Set(c, wrap(c, idx, originals[c], rw, o)); err != nil {
			return fmt.Errorf("install %s: %w", c, err)
		}
	}

	o.logger.Debug("interceptors installed")
	return nil
}

func wrap(c Capability, idx int, original Func, rw Rewriter, o options) Func {
	return func(inv Invocation) (any, error) {
		o.metrics.RecordIntercept(string(c))

		if idx < len(inv.Args) {
			args := slices.Clone(inv.Args)
			before := args[idx]
			args[idx] = rw.Value(before)
			inv.Args = args

			if s, ok := before.(string); ok {
				o.logger.Debug("rewrote request url",
					zap.String("capability", string(c)),
					zap.String("from", s),
					zap.Any("to", args[idx]),
				)
			}
		}

		return original(inv)
	}
}
