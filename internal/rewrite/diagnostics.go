package rewrite

import (
	"sync"

	"go.uber.org/zap"
)

// Kind tells which rewrite function produced a change.
type Kind string

const (
	KindURL   Kind = "url"
	KindStyle Kind = "style"
)

// Recorder receives every input/output pair where a rewrite changed the
// value. Implementations must not retain the Rewriter.
type Recorder interface {
	Record(kind Kind, in, out string)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(kind Kind, in, out string)

func (f RecorderFunc) Record(kind Kind, in, out string) { f(kind, in, out) }

// Option configures a Rewriter.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	recorders []Recorder
}

// WithDiagnostics logs every changed pair at debug level.
func WithDiagnostics(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.Named("rewrite")
		}
	}
}

// WithRecorder forwards every changed pair to rec.
func WithRecorder(rec Recorder) Option {
	return func(o *options) {
		if rec != nil {
			o.recorders = append(o.recorders, rec)
		}
	}
}

func (o *options) decorate(r *Rewriter) {
	if o.logger == nil && len(o.recorders) == 0 {
		return
	}
	r.url = o.wrap(KindURL, r.url)
	r.style = o.wrap(KindStyle, r.style)
}

func (o *options) wrap(kind Kind, next func(string) string) func(string) string {
	return func(in string) string {
		out := next(in)
		if out == in {
			return out
		}
		if o.logger != nil {
			o.logger.Debug("patched",
				zap.String("kind", string(kind)),
				zap.String("from", in),
				zap.String("to", out),
			)
		}
		for _, rec := range o.recorders {
			rec.Record(kind, in, out)
		}
		return out
	}
}

// Entry is one recorded rewrite.
type Entry struct {
	Kind Kind   `json:"kind"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Report collects changed pairs in memory. The zero value is ready to use.
type Report struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Report) Record(kind Kind, in, out string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Kind: kind, From: in, To: out})
}

// Entries returns a copy of everything recorded so far.
func (r *Report) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}
