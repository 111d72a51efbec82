package browser

import (
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/replaypatch/internal/dom"
	"github.com/GriffinCanCode/replaypatch/internal/patcher"
	"github.com/GriffinCanCode/replaypatch/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/replaypatch/internal/rewrite"
)

// Page is a hosted, patched document
type Page struct {
	provider *Provider
	rt       *sandbox.Runtime
	doc      *dom.Document
	frames   []*dom.Document
	rw       *rewrite.Rewriter
	patcher  *patcher.Patcher
	archive  rewrite.Archive

	mu      sync.Mutex
	console []sandbox.LogEntry
	records int
	closed  bool
}

// Document returns the live document
func (pg *Page) Document() *dom.Document {
	return pg.doc
}

// Frames returns the srcdoc documents attached at load
func (pg *Page) Frames() []*dom.Document {
	return pg.frames
}

// Archive returns the archive identity the page is rewritten against
func (pg *Page) Archive() rewrite.Archive {
	return pg.archive
}

// Rewriter returns the page's rewriter
func (pg *Page) Rewriter() *rewrite.Rewriter {
	return pg.rw
}

// Console returns everything page scripts logged so far
func (pg *Page) Console() []sandbox.LogEntry {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return append([]sandbox.LogEntry(nil), pg.console...)
}

// Records returns the number of mutation records delivered by the page
func (pg *Page) Records() int {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return pg.records
}

// HTML renders the patched document
func (pg *Page) HTML() (string, error) {
	return pg.doc.HTML()
}

// Title returns the trimmed text of the first <title>
func (pg *Page) Title() string {
	sel := goquery.NewDocumentFromNode(pg.doc.Root().Raw()).Find("title").First()
	return strings.TrimSpace(sel.Text())
}

// Snapshot renders the patched body markup with scripts, handlers and
// unsafe attributes removed
func (pg *Page) Snapshot() (string, error) {
	body := pg.doc.Body()
	if body == nil {
		return "", nil
	}
	return pg.provider.policy.Sanitize(body.InnerHTML()), nil
}

// Close disarms the page and returns its runtime to the pool
func (pg *Page) Close() error {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if pg.closed {
		return nil
	}
	pg.closed = true

	for _, frame := range pg.frames {
		pg.patcher.Release(frame)
	}
	pg.patcher.Release(pg.doc)

	if err := pg.provider.pool.Release(pg.rt); err != nil {
		pg.provider.logger.Warn("release runtime", zap.String("document", pg.doc.ID()), zap.Error(err))
		return err
	}
	return nil
}
