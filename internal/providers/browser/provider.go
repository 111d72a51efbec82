package browser

import (
	"errors"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/replaypatch/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/replaypatch/internal/providers/http/client"
	"github.com/GriffinCanCode/replaypatch/internal/rewrite"
)

var (
	ErrNoSource    = errors.New("one of HTML, Path or URL is required")
	ErrManySources = errors.New("only one of HTML, Path or URL may be set")
	ErrNoPageURL   = errors.New("page url is required when loading markup or a file")
	ErrNoArchive   = errors.New("no archive configuration for page")
	ErrPageClosed  = errors.New("page is closed")
)

// Config defines how pages are hosted
type Config struct {
	Sandbox    sandbox.Config
	PoolSize   int
	Archive    rewrite.Archive // Seeds __webrecorder when a request carries none
	RunScripts bool            // Run inline scripts of every loaded page
}

// DefaultConfig returns the default page host configuration
func DefaultConfig() Config {
	return Config{
		Sandbox:  sandbox.DefaultConfig(),
		PoolSize: 4,
	}
}

// Provider hosts replayed pages: it loads a captured page into a DOM,
// binds a pooled script runtime to it and keeps its URLs patched.
type Provider struct {
	config  Config
	client  *client.Client
	pool    *sandbox.Pool
	policy  *bluemonday.Policy
	logger  *zap.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
}

// Option configures a Provider
type Option func(*Provider)

// WithClient sets the HTTP client used for page loads and page requests
func WithClient(c *client.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector shared by every hosted page
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(p *Provider) {
		p.metrics = metrics
	}
}

// WithTracer records a "page.load" span per Load. The span id travels
// with the page fetch.
func WithTracer(tracer *tracing.Tracer) Option {
	return func(p *Provider) {
		p.tracer = tracer
	}
}

// New creates a page host with a runtime pool of cfg.PoolSize
func New(cfg Config, opts ...Option) (*Provider, error) {
	p := &Provider{
		config: cfg,
		policy: bluemonday.UGCPolicy(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = client.NewClient(client.WithLogger(p.logger))
	}
	if p.config.PoolSize <= 0 {
		p.config.PoolSize = DefaultConfig().PoolSize
	}

	pool, err := sandbox.NewPool(p.config.Sandbox, p.config.PoolSize,
		sandbox.WithLogger(p.logger),
		sandbox.WithMetrics(p.metrics),
		sandbox.WithHost(p.pageHost()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox pool: %w", err)
	}
	p.pool = pool

	return p, nil
}

// Metrics returns the shared collector, nil when none was set
func (p *Provider) Metrics() *monitoring.Metrics {
	return p.metrics
}

// Stats reports the runtime pool
func (p *Provider) Stats() map[string]interface{} {
	return p.pool.Stats()
}

// Close shuts the runtime pool down. Pages still open are closed by their
// own Close.
func (p *Provider) Close() error {
	return p.pool.Close()
}
