package sandbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/monitoring"
)

// Config defines sandbox configuration
type Config struct {
	Timeout          time.Duration // Execution timeout, timers included
	MaxCallStackSize int           // goja call stack limit
	EnableConsole    bool          // Capture console.log/warn/error
	EnableFetch      bool          // Expose fetch and XMLHttpRequest
	EnableTimers     bool          // Run setTimeout callbacks after the script
	MaxTimers        int           // Timer callbacks run per Execute
}

// Result holds execution result
type Result struct {
	Value    interface{}   // Return value
	Console  []LogEntry    // Console output
	Records  int           // Mutation records delivered after the script
	Duration time.Duration // Execution time
	Error    error         // Execution error
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    // log, warn, error
	Message string    // Log message
	Time    time.Time // Timestamp
}

// HostRequest is a request issued by page script through fetch or
// XMLHttpRequest, after interception
type HostRequest struct {
	Capability string            // "fetch" or "xhr"
	Method     string            // Upper-case HTTP method
	URL        string            // Absolute, resolved against the page location
	Header     map[string]string // Lower-case names
	Body       string
}

// HostResponse is what the host answered
type HostResponse struct {
	Status     int
	StatusText string
	URL        string
	Header     map[string]string
	Body       string
}

// Host performs network requests on behalf of the page
type Host interface {
	Do(ctx context.Context, req HostRequest) (*HostResponse, error)
}

// HostFunc adapts a function to Host
type HostFunc func(ctx context.Context, req HostRequest) (*HostResponse, error)

func (f HostFunc) Do(ctx context.Context, req HostRequest) (*HostResponse, error) {
	return f(ctx, req)
}

// Sandbox defines the JavaScript execution interface
type Sandbox interface {
	Execute(ctx context.Context, script string) (*Result, error)
	Reset() error
	Close() error
}

// Option configures a Runtime
type Option func(*Runtime)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger.Named("sandbox")
		}
	}
}

// WithMetrics records script runs and host requests
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(r *Runtime) {
		r.metrics = metrics
	}
}

// WithHost sets the network host behind fetch and XMLHttpRequest
func WithHost(host Host) Option {
	return func(r *Runtime) {
		r.host = host
	}
}

// Default configuration
func DefaultConfig() Config {
	return Config{
		Timeout:          5 * time.Second,
		MaxCallStackSize: 1024,
		EnableConsole:    true,
		EnableFetch:      true,
		EnableTimers:     true,
		MaxTimers:        1000,
	}
}
