package patcher

import (
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/replaypatch/internal/dom"
	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/replaypatch/internal/rewrite"
)

// WatchedAttributes are the URL-bearing attributes kept rewritten
var WatchedAttributes = []string{"href", "src", "srcset", "action", "data", "style"}

// WatchedStyleProperties are the inline style properties that may carry a
// url(...) value
var WatchedStyleProperties = []string{
	"background",
	"backgroundImage",
	"borderImage",
	"borderImageSource",
	"listStyle",
	"listStyleImage",
}

// rooted matches values that resolve the same with or without a base
var rooted = regexp.MustCompile(`(?i)^\s*(/|https?:)`)

// headAttributes are swept on the direct children of <head> when a
// document is armed
var headAttributes = []string{"href", "src"}

// Patcher keeps the URLs of hosted documents pointed at the replay server
type Patcher struct {
	rw      *rewrite.Rewriter
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu    sync.Mutex
	armed map[*dom.Document]*dom.Observer
}

// Option configures a Patcher
type Option func(*Patcher)

// WithLogger sets the logger; nil keeps the no-op default
func WithLogger(logger *zap.Logger) Option {
	return func(p *Patcher) {
		if logger != nil {
			p.logger = logger.Named("patcher")
		}
	}
}

// WithMetrics records writes, mutation records and armed documents
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(p *Patcher) {
		p.metrics = metrics
	}
}

// New creates a Patcher that rewrites with rw
func New(rw *rewrite.Rewriter, opts ...Option) *Patcher {
	p := &Patcher{
		rw:     rw,
		logger: zap.NewNop(),
		armed:  make(map[*dom.Document]*dom.Observer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PatchAttribute rewrites one attribute of el in place, writing only when
// the value changes. The element's property is read, so relative URLs are
// resolved first and elements without that property are left alone. For
// "style" every watched style property is handled.
func (p *Patcher) PatchAttribute(el *dom.Node, name string) {
	if el == nil || !el.IsElement() {
		return
	}
	name = strings.ToLower(name)

	if name == "style" {
		p.patchStyle(el)
		return
	}

	// already in replay form
	raw, _ := el.GetAttribute(name)
	if rooted.MatchString(raw) && p.rw.Settled(raw) {
		return
	}

	value, ok := el.URLProperty(name)
	if !ok || value == "" {
		return
	}
	patched := p.rw.URL(value)
	if patched == value || patched == raw {
		return
	}
	if err := el.SetAttribute(name, patched); err != nil {
		p.logger.Debug("attribute write failed", zap.String("attribute", name), zap.Error(err))
		return
	}
	p.metrics.RecordAttributeWrite(name)
}

func (p *Patcher) patchStyle(el *dom.Node) {
	if decl, _ := el.GetAttribute("style"); decl == "" {
		return
	}
	style := el.Style()
	for _, prop := range WatchedStyleProperties {
		value := style.GetPropertyValue(prop)
		if value == "" {
			continue
		}
		patched := p.rw.StyleURL(value)
		if patched == value {
			continue
		}
		if err := style.SetProperty(prop, patched); err != nil {
			p.logger.Debug("style write failed", zap.String("property", prop), zap.Error(err))
			continue
		}
		p.metrics.RecordAttributeWrite("style")
	}
}

// PatchElement patches el and its whole subtree, depth-first pre-order. A
// frame element with a content document gets that document armed.
func (p *Patcher) PatchElement(el *dom.Node) {
	if el == nil || !el.IsElement() {
		return
	}

	if isFrame(el) {
		if content := el.ContentDocument(); content != nil {
			p.PatchDocument(content)
		}
	}

	for _, name := range WatchedAttributes {
		p.PatchAttribute(el, name)
	}

	for _, child := range el.Children() {
		p.PatchElement(child)
	}
}

func isFrame(el *dom.Node) bool {
	switch el.TagName() {
	case "iframe", "frame":
		return true
	}
	return false
}
