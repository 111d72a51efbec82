package client

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/resilience"
)

// MaxBodySize caps how much of a response body is read
const MaxBodySize = 32 << 20

// Client wraps resty and retryablehttp with rate limiting and per-host
// circuit breakers. Page-initiated requests go through resty, page loads
// through retryablehttp.
type Client struct {
	Resty    *resty.Client
	Retry    *retryablehttp.Client
	Limiter  *rate.Limiter
	Breakers *resilience.Group
	Mu       sync.RWMutex

	userAgent string
	logger    *zap.Logger
}

// Config defines client behavior
type Config struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	RateLimit    float64 // requests per second, 0 for unlimited
	UserAgent    string
}

// DefaultConfig returns the production client configuration
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RetryWaitMin: 1 * time.Second,
		RetryWaitMax: 30 * time.Second,
		UserAgent:    "replaypatch/1.0",
	}
}

// Option configures a Client
type Option func(*options)

type options struct {
	config Config
	logger *zap.Logger
}

// WithConfig replaces the default configuration
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithLogger logs retries and breaker trips
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.Named("http")
		}
	}
}

// Request is an outgoing request
type Request struct {
	Method string
	URL    string
	Header map[string]string
	Body   string
}

// Response is a fully read response
type Response struct {
	Status     int
	StatusText string
	URL        string // Final URL after redirects
	Header     map[string]string
	Body       []byte
}

// ContentType returns the Content-Type header
func (r *Response) ContentType() string {
	return r.Header[http.CanonicalHeaderKey("content-type")]
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
