package patcher

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/replaypatch/internal/dom"
)

// PatchDocument arms a watcher on doc: every inserted element is patched
// with its subtree, every change to a watched attribute is patched in
// place. It sweeps the <head> children and reflows the <body> children so
// existing content goes through the insertion path on the next flush.
// Arming a document twice is a no-op and reports false.
func (p *Patcher) PatchDocument(doc *dom.Document) bool {
	if doc == nil {
		return false
	}

	p.mu.Lock()
	if _, ok := p.armed[doc]; ok {
		p.mu.Unlock()
		return false
	}
	obs := dom.NewObserver(p.handle)
	p.armed[doc] = obs
	p.mu.Unlock()

	err := obs.Observe(doc.Root(), dom.ObserveOptions{
		ChildList:       true,
		Subtree:         true,
		Attributes:      true,
		AttributeFilter: WatchedAttributes,
	})
	if err != nil {
		// only reachable with empty options
		p.logger.Error("arm document", zap.Error(err))
		return false
	}

	p.metrics.IncDocumentsArmed()
	p.logger.Debug("armed document",
		zap.String("document", doc.ID()),
		zap.String("location", doc.Location().Href),
	)

	if head := doc.Head(); head != nil {
		for child := head.FirstElementChild(); child != nil; child = child.NextElementSibling() {
			for _, name := range headAttributes {
				p.PatchAttribute(child, name)
			}
		}
	}

	if body := doc.Body(); body != nil {
		children := body.ChildNodes()
		for _, child := range children {
			child.Remove()
		}
		for _, child := range children {
			if err := body.AppendChild(child); err != nil {
				p.logger.Warn("reflow body", zap.String("document", doc.ID()), zap.Error(err))
			}
		}
	}

	return true
}

// Armed reports whether doc has a watcher
func (p *Patcher) Armed(doc *dom.Document) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.armed[doc]
	return ok
}

// Release disconnects the watcher of a disposed document
func (p *Patcher) Release(doc *dom.Document) {
	p.mu.Lock()
	obs, ok := p.armed[doc]
	delete(p.armed, doc)
	p.mu.Unlock()

	if ok {
		obs.Disconnect()
	}
}

func (p *Patcher) handle(records []dom.MutationRecord, _ *dom.Observer) {
	for _, rec := range records {
		p.metrics.RecordMutation(string(rec.Type))

		switch rec.Type {
		case dom.ChildList:
			for _, node := range rec.AddedNodes {
				if node.IsElement() {
					p.PatchElement(node)
				}
			}
		case dom.Attributes:
			p.PatchAttribute(rec.Target, rec.AttributeName)
		}
	}
}
