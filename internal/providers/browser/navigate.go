package browser

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/replaypatch/internal/dom"
	"github.com/GriffinCanCode/replaypatch/internal/intercept"
	"github.com/GriffinCanCode/replaypatch/internal/patcher"
	"github.com/GriffinCanCode/replaypatch/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/replaypatch/internal/rewrite"
)

// MaxFrameDepth bounds nested srcdoc frames
const MaxFrameDepth = 8

// LoadRequest describes a page to host. Exactly one of HTML, Path and URL
// is set.
type LoadRequest struct {
	HTML        []byte // Captured markup
	Path        string // Captured file, optionally .gz or .zst compressed
	URL         string // Fetched through the HTTP client
	ContentType string // Charset hint for HTML and Path

	PageURL string // Location the page believes it is served from; defaults to the fetched URL

	// Bootstrap runs before interception, as the embedding script would;
	// it may define the __webrecorder global.
	Bootstrap string
	// Archive overrides __webrecorder and the provider default
	Archive *rewrite.Archive

	RunScripts  bool
	Diagnostics bool             // Log every rewritten value at debug level
	Recorder    rewrite.Recorder // Receives every rewritten value
}

// Load hosts a page: the markup is parsed into a document, a runtime is
// bound to it, interceptors are installed and the document is armed. The
// returned Page owns a pooled runtime until Close.
func (p *Provider) Load(ctx context.Context, req LoadRequest) (*Page, error) {
	if p.tracer == nil {
		return p.load(ctx, req)
	}

	span, ctx := p.tracer.StartSpan(ctx, "page.load")
	page, err := p.load(ctx, req)
	if err != nil {
		span.SetError(err)
	} else {
		span.SetTag("document", page.doc.ID())
		span.SetTag("location", page.doc.Location().Href)
		span.SetTag("archive", page.archive.Origin)
		span.Log("mounted", map[string]interface{}{
			"frames":  len(page.frames),
			"records": page.Records(),
		})
	}
	span.Finish()
	p.tracer.Submit(span)
	return page, err
}

func (p *Provider) load(ctx context.Context, req LoadRequest) (*Page, error) {
	body, contentType, fetchedURL, err := p.read(ctx, req)
	if err != nil {
		return nil, err
	}

	markup, err := decodePage(body, contentType)
	if err != nil {
		return nil, err
	}

	pageURL := req.PageURL
	if pageURL == "" {
		pageURL = fetchedURL
	}
	if pageURL == "" {
		return nil, ErrNoPageURL
	}
	loc, err := dom.ParseLocation(pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := dom.ParseString(markup, loc)
	if err != nil {
		return nil, err
	}
	frames := p.attachFrames(doc, 0)

	rt, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire runtime: %w", err)
	}

	page, err := p.mount(ctx, rt, doc, req)
	if err != nil {
		if releaseErr := p.pool.Release(rt); releaseErr != nil {
			p.logger.Warn("release runtime", zap.Error(releaseErr))
		}
		return nil, err
	}
	page.frames = frames

	p.logger.Info("page loaded",
		zap.String("document", doc.ID()),
		zap.String("location", loc.Href),
		zap.String("archive", page.archive.Origin),
		zap.Int("frames", len(frames)),
	)
	return page, nil
}

func (p *Provider) mount(ctx context.Context, rt *sandbox.Runtime, doc *dom.Document, req LoadRequest) (*Page, error) {
	if err := rt.Bind(doc); err != nil {
		return nil, err
	}

	page := &Page{provider: p, rt: rt, doc: doc}

	if req.Bootstrap != "" {
		res, err := rt.Execute(ctx, req.Bootstrap)
		if res != nil {
			page.console = append(page.console, res.Console...)
		}
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}

	archive, err := p.archive(rt, req)
	if err != nil {
		return nil, err
	}
	page.archive = archive

	rctx, err := rewrite.NewContext(doc.Location().Href, archive)
	if err != nil {
		return nil, err
	}
	opts := []rewrite.Option{rewrite.WithRecorder(metricsRecorder{p.metrics})}
	if req.Recorder != nil {
		opts = append(opts, rewrite.WithRecorder(req.Recorder))
	}
	if req.Diagnostics {
		opts = append(opts, rewrite.WithDiagnostics(p.logger))
	}
	page.rw = rewrite.New(rctx, opts...)

	if p.config.Sandbox.EnableFetch {
		err := intercept.Install(rt.Registry(), page.rw,
			intercept.WithLogger(p.logger),
			intercept.WithMetrics(p.metrics),
		)
		if err != nil {
			return nil, fmt.Errorf("install interceptors: %w", err)
		}
	}

	page.patcher = patcher.New(page.rw,
		patcher.WithLogger(p.logger),
		patcher.WithMetrics(p.metrics),
	)
	page.patcher.PatchDocument(doc)
	page.records += rt.Flush()

	if req.RunScripts || p.config.RunScripts {
		page.runScripts(ctx)
	}

	return page, nil
}

// archive resolves the archive identity: the request, then a global set by
// the page or its bootstrap, then the provider default
func (p *Provider) archive(rt *sandbox.Runtime, req LoadRequest) (rewrite.Archive, error) {
	if req.Archive != nil {
		if err := rt.SetArchive(*req.Archive); err != nil {
			return rewrite.Archive{}, err
		}
	}

	archive, err := rt.Archive()
	if errors.Is(err, sandbox.ErrNoArchive) && p.config.Archive.Origin != "" {
		if err := rt.SetArchive(p.config.Archive); err != nil {
			return rewrite.Archive{}, err
		}
		archive, err = rt.Archive()
	}
	if errors.Is(err, sandbox.ErrNoArchive) {
		return rewrite.Archive{}, ErrNoArchive
	}
	return archive, err
}

// read returns the raw page bytes with their content type and, for fetched
// pages, the final URL
func (p *Provider) read(ctx context.Context, req LoadRequest) ([]byte, string, string, error) {
	sources := 0
	for _, set := range []bool{req.HTML != nil, req.Path != "", req.URL != ""} {
		if set {
			sources++
		}
	}
	switch {
	case sources == 0:
		return nil, "", "", ErrNoSource
	case sources > 1:
		return nil, "", "", ErrManySources
	}

	switch {
	case req.HTML != nil:
		return req.HTML, req.ContentType, "", nil

	case req.Path != "":
		info, err := os.Stat(req.Path)
		if err != nil {
			return nil, "", "", fmt.Errorf("failed to stat page: %w", err)
		}
		if info.Size() > MaxPageSize {
			return nil, "", "", fmt.Errorf("%w: %d bytes", ErrPageTooLarge, info.Size())
		}
		data, err := os.ReadFile(req.Path)
		if err != nil {
			return nil, "", "", fmt.Errorf("failed to read page: %w", err)
		}
		return data, req.ContentType, "", nil
	}

	resp, err := p.client.FetchPage(ctx, req.URL)
	if err != nil {
		return nil, "", "", err
	}
	return resp.Body, resp.ContentType(), resp.URL, nil
}

// attachFrames parses srcdoc frames into content documents. They share the
// parent's delivery loop and are armed when the walker reaches the frame.
func (p *Provider) attachFrames(doc *dom.Document, depth int) []*dom.Document {
	if depth >= MaxFrameDepth {
		return nil
	}

	var frames []*dom.Document
	for _, el := range doc.QuerySelectorAll("iframe[srcdoc], frame[srcdoc]") {
		srcdoc, _ := el.GetAttribute("srcdoc")
		loc, _ := dom.ParseLocation("about:srcdoc")
		frame, err := dom.ParseString(srcdoc, loc)
		if err != nil {
			p.logger.Warn("parse srcdoc", zap.String("document", doc.ID()), zap.Error(err))
			continue
		}
		el.SetContentDocument(frame)
		frames = append(frames, frame)
		frames = append(frames, p.attachFrames(frame, depth+1)...)
	}
	return frames
}
