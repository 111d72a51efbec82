package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/replaypatch/internal/dom"
	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/monitoring"
)

// Runtime wraps a goja VM hosting one page: window globals, a document
// bridge over a dom.Document, and fetch/XMLHttpRequest backed by a Host.
type Runtime struct {
	vm      *goja.Runtime
	config  Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
	host    Host
	mu      sync.Mutex

	// Console output
	console   []LogEntry
	consoleMu sync.Mutex

	// Bound page
	doc    *dom.Document
	bridge *bridge
	ctx    context.Context

	// Pending setTimeout callbacks
	timers    []*timer
	timerSeq  int
	timerNext int
}

type timer struct {
	id    int
	seq   int
	delay int64
	fn    goja.Callable
	args  []goja.Value
}

// New creates a new sandboxed runtime
func New(config Config, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		config:  config,
		logger:  zap.NewNop(),
		console: []LogEntry{},
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.init(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runtime) init() error {
	r.vm = goja.New()
	if r.config.MaxCallStackSize > 0 {
		r.vm.SetMaxCallStackSize(r.config.MaxCallStackSize)
	}
	r.doc, r.bridge = nil, nil
	r.timers, r.timerSeq, r.timerNext = nil, 0, 0
	return r.setupGlobals()
}

// Execute runs a script in the page with timeout and resource limits. Timer
// callbacks it schedules run afterwards, and mutation records are delivered
// after the script and after every timer, as a browser would between tasks.
func (r *Runtime) Execute(ctx context.Context, script string) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return nil, ErrClosed
	}

	start := time.Now()
	result := &Result{
		Console: []LogEntry{},
	}

	// Setup timeout
	timeout := r.config.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	// Setup interrupt handler
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-deadline.C:
			r.vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			r.vm.Interrupt("context cancelled")
		case <-done:
		}
	}()

	// Clear console
	r.consoleMu.Lock()
	r.console = []LogEntry{}
	r.consoleMu.Unlock()

	r.ctx = ctx
	val, err := r.vm.RunString(script)
	if err == nil {
		result.Records += r.flushLocked()
		var n int
		n, err = r.runTimers()
		result.Records += n
	}
	r.ctx = context.Background()

	// Stop interrupt goroutine
	close(done)
	<-exited
	r.vm.ClearInterrupt()

	result.Duration = time.Since(start)

	r.consoleMu.Lock()
	result.Console = append([]LogEntry{}, r.console...)
	r.consoleMu.Unlock()

	if err != nil {
		r.metrics.RecordScript(scriptStatus(err), result.Duration)
		result.Error = err
		return result, err
	}
	r.metrics.RecordScript("success", result.Duration)

	// Extract result value
	result.Value = r.exportValue(val)
	return result, nil
}

// Flush delivers pending mutation records of the bound document
func (r *Runtime) Flush() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked()
}

func (r *Runtime) flushLocked() int {
	if r.doc == nil {
		return 0
	}
	n, err := r.doc.Flush()
	if errors.Is(err, dom.ErrFlushLimit) {
		r.metrics.IncFlushLimits()
		r.logger.Warn("mutation delivery did not settle",
			zap.String("document", r.doc.ID()),
			zap.Int("rounds", dom.MaxFlushRounds),
		)
	}
	return n
}

// runTimers runs queued setTimeout callbacks by due time, each followed by a
// flush. Callbacks may queue more timers, up to Config.MaxTimers in total.
func (r *Runtime) runTimers() (int, error) {
	records := 0
	for ran := 0; len(r.timers) > 0 && ran < r.config.MaxTimers; ran++ {
		sort.SliceStable(r.timers, func(i, j int) bool {
			if r.timers[i].delay != r.timers[j].delay {
				return r.timers[i].delay < r.timers[j].delay
			}
			return r.timers[i].seq < r.timers[j].seq
		})
		t := r.timers[0]
		r.timers = r.timers[1:]

		if _, err := t.fn(goja.Undefined(), t.args...); err != nil {
			var interrupted *goja.InterruptedError
			if errors.As(err, &interrupted) {
				r.timers = nil
				return records, err
			}
			r.log("error", "Uncaught "+err.Error())
		}
		records += r.flushLocked()
	}
	if len(r.timers) > 0 {
		r.logger.Debug("dropped pending timers", zap.Int("count", len(r.timers)))
		r.timers = nil
	}
	return records, nil
}

func scriptStatus(err error) string {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return "interrupted"
	}
	return "error"
}

// setupGlobals configures global objects and security
func (r *Runtime) setupGlobals() error {
	// Remove dangerous globals
	r.vm.Set("require", goja.Undefined())
	r.vm.Set("process", goja.Undefined())
	r.vm.Set("module", goja.Undefined())
	r.vm.Set("exports", goja.Undefined())

	global := r.vm.GlobalObject()
	r.vm.Set("window", global)
	r.vm.Set("self", global)

	// Setup console if enabled
	if r.config.EnableConsole {
		console := r.vm.NewObject()
		for _, level := range []string{"log", "warn", "error", "info", "debug"} {
			console.Set(level, r.makeConsoleFunc(level))
		}
		r.vm.Set("console", console)
	}

	r.vm.Set("setTimeout", r.setTimeout)
	r.vm.Set("clearTimeout", r.clearTimeout)
	r.vm.Set("requestAnimationFrame", func(call goja.FunctionCall) goja.Value {
		return r.schedule(call.Argument(0), 16, nil)
	})
	r.vm.Set("cancelAnimationFrame", r.clearTimeout)

	// Intervals would never settle
	r.vm.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		return r.vm.ToValue(0)
	})
	r.vm.Set("clearInterval", func(call goja.FunctionCall) goja.Value {
		return goja.Undefined()
	})

	noop := func(call goja.FunctionCall) goja.Value { return goja.Undefined() }
	r.vm.Set("addEventListener", noop)
	r.vm.Set("removeEventListener", noop)

	return nil
}

func (r *Runtime) setTimeout(call goja.FunctionCall) goja.Value {
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = call.Arguments[2:]
	}
	return r.schedule(call.Argument(0), call.Argument(1).ToInteger(), args)
}

func (r *Runtime) schedule(fnValue goja.Value, delay int64, args []goja.Value) goja.Value {
	fn, ok := goja.AssertFunction(fnValue)
	if !ok || !r.config.EnableTimers {
		return r.vm.ToValue(0)
	}
	r.timerNext++
	r.timerSeq++
	r.timers = append(r.timers, &timer{
		id:    r.timerNext,
		seq:   r.timerSeq,
		delay: max(delay, 0),
		fn:    fn,
		args:  args,
	})
	return r.vm.ToValue(r.timerNext)
}

func (r *Runtime) clearTimeout(call goja.FunctionCall) goja.Value {
	id := int(call.Argument(0).ToInteger())
	for i, t := range r.timers {
		if t.id == id {
			r.timers = append(r.timers[:i], r.timers[i+1:]...)
			break
		}
	}
	return goja.Undefined()
}

// makeConsoleFunc creates a console function
func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		r.log(level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func (r *Runtime) log(level, msg string) {
	r.consoleMu.Lock()
	r.console = append(r.console, LogEntry{
		Level:   level,
		Message: msg,
		Time:    time.Now(),
	})
	r.consoleMu.Unlock()
}

// exportValue converts goja value to Go value
func (r *Runtime) exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	if obj, ok := val.(*goja.Object); ok && r.bridge != nil {
		if node := r.bridge.nodeOf(obj); node != nil {
			return node
		}
	}
	return val.Export()
}

// Reset clears the runtime state and unbinds the page
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return ErrClosed
	}
	r.console = []LogEntry{}
	if err := r.init(); err != nil {
		return fmt.Errorf("reset runtime: %w", err)
	}
	return nil
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vm = nil
	r.doc, r.bridge = nil, nil
	r.timers = nil
	r.console = nil
	return nil
}
