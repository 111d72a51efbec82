package dom

import (
	"errors"
	"slices"
	"strings"
	"sync"
)

// MaxFlushRounds bounds how many delivery rounds a single Flush runs.
// Observers that keep mutating what they observe without reaching a fixed
// point stop here instead of spinning forever.
const MaxFlushRounds = 64

var (
	ErrFlushLimit            = errors.New("mutation delivery did not settle")
	ErrInvalidObserveOptions = errors.New("observe options select no mutation type")
)

// MutationType names the kind of change a record describes
type MutationType string

const (
	ChildList  MutationType = "childList"
	Attributes MutationType = "attributes"
)

// MutationRecord describes one change, as delivered to an Observer
type MutationRecord struct {
	Type            MutationType
	Target          *Node
	AddedNodes      []*Node
	RemovedNodes    []*Node
	PreviousSibling *Node
	NextSibling     *Node
	AttributeName   string
	OldValue        string
}

// ObserveOptions selects which changes under a target are reported
type ObserveOptions struct {
	ChildList         bool
	Attributes        bool
	AttributeOldValue bool
	AttributeFilter   []string
	Subtree           bool
}

// ObserverFunc receives a batch of records
type ObserverFunc func(records []MutationRecord, obs *Observer)

// Observer collects records for the nodes it observes until the next Flush
type Observer struct {
	fn ObserverFunc

	mu      sync.Mutex
	records []MutationRecord
	docs    []*Document
}

type registration struct {
	obs    *Observer
	target *Node
	opts   ObserveOptions
}

// NewObserver creates an observer that calls fn on delivery
func NewObserver(fn ObserverFunc) *Observer {
	return &Observer{fn: fn}
}

// Observe registers target. Observing the same target again replaces the
// previous options.
func (o *Observer) Observe(target *Node, opts ObserveOptions) error {
	if target == nil {
		return ErrNilNode
	}
	if len(opts.AttributeFilter) > 0 || opts.AttributeOldValue {
		opts.Attributes = true
	}
	if !opts.ChildList && !opts.Attributes {
		return ErrInvalidObserveOptions
	}
	opts.AttributeFilter = lowerAll(opts.AttributeFilter)

	d := target.doc
	defer d.lock().unlock()

	for _, reg := range d.regs {
		if reg.obs == o && reg.target == target {
			reg.opts = opts
			return nil
		}
	}
	d.regs = append(d.regs, &registration{obs: o, target: target, opts: opts})

	o.mu.Lock()
	if !slices.Contains(o.docs, d) {
		o.docs = append(o.docs, d)
	}
	o.mu.Unlock()
	return nil
}

// Disconnect stops all observation and drops undelivered records
func (o *Observer) Disconnect() {
	o.mu.Lock()
	docs := o.docs
	o.docs, o.records = nil, nil
	o.mu.Unlock()

	for _, d := range docs {
		l := d.lock()
		d.regs = slices.DeleteFunc(d.regs, func(reg *registration) bool {
			return reg.obs == o
		})
		l.unlock()
	}
}

// TakeRecords returns and clears the undelivered records
func (o *Observer) TakeRecords() []MutationRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	records := o.records
	o.records = nil
	return records
}

func (o *Observer) enqueue(rec MutationRecord) {
	o.mu.Lock()
	o.records = append(o.records, rec)
	o.mu.Unlock()
}

func (r *registration) accepts(rec *MutationRecord, direct bool) bool {
	if !direct && !r.opts.Subtree {
		return false
	}
	switch rec.Type {
	case ChildList:
		return r.opts.ChildList
	case Attributes:
		if !r.opts.Attributes {
			return false
		}
		return len(r.opts.AttributeFilter) == 0 || slices.Contains(r.opts.AttributeFilter, rec.AttributeName)
	}
	return false
}

// queue hands rec to every interested observer, at most once each. Caller
// holds the lock.
func (d *Document) queue(rec MutationRecord) {
	if len(d.regs) == 0 {
		return
	}

	var seen []*Observer
	for h := rec.Target.n; h != nil; h = h.Parent {
		for _, reg := range d.regs {
			if reg.target.n != h || slices.Contains(seen, reg.obs) {
				continue
			}
			if !reg.accepts(&rec, h == rec.Target.n) {
				continue
			}
			seen = append(seen, reg.obs)

			delivered := rec
			if rec.Type == Attributes && !reg.opts.AttributeOldValue {
				delivered.OldValue = ""
			}
			reg.obs.enqueue(delivered)
			d.loop.schedule(reg.obs)
		}
	}
}

// loop is the delivery queue shared by a top document and its frames
type loop struct {
	mu      sync.Mutex
	docs    []*Document
	pending []*Observer
}

func (l *loop) unlock() {
	l.mu.Unlock()
}

// schedule marks obs for the next delivery round. Caller holds l.mu.
func (l *loop) schedule(obs *Observer) {
	if !slices.Contains(l.pending, obs) {
		l.pending = append(l.pending, obs)
	}
}

// merge moves every document and pending observer of other into l. Caller
// holds l.mu.
func (l *loop) merge(other *loop) {
	other.mu.Lock()
	defer other.mu.Unlock()

	for _, d := range other.docs {
		d.loop = l
		l.docs = append(l.docs, d)
	}
	for _, obs := range other.pending {
		l.schedule(obs)
	}
	other.docs, other.pending = nil, nil
}

// Flush delivers queued records to their observers, round after round,
// until no observer has anything pending. Callbacks run without the lock
// held, and records they cause are delivered in a later round. It returns
// the number of records delivered, and ErrFlushLimit if MaxFlushRounds
// rounds did not settle; the remaining records stay queued.
func (d *Document) Flush() (int, error) {
	delivered := 0
	for round := 0; ; round++ {
		l := d.lock()
		pending := l.pending
		if len(pending) > 0 && round >= MaxFlushRounds {
			l.unlock()
			return delivered, ErrFlushLimit
		}
		l.pending = nil
		l.unlock()

		if len(pending) == 0 {
			return delivered, nil
		}

		for _, obs := range pending {
			records := obs.TakeRecords()
			if len(records) == 0 {
				continue
			}
			delivered += len(records)
			obs.fn(records, obs)
		}
	}
}

func lowerAll(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = strings.ToLower(name)
	}
	return out
}
