package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/replaypatch/internal/providers/browser"
	"github.com/GriffinCanCode/replaypatch/internal/providers/http/client"
	"github.com/GriffinCanCode/replaypatch/internal/rewrite"
)

// ErrInvalidArchive rejects an archive origin that is not an absolute URL
var ErrInvalidArchive = errors.New("archive origin must be an absolute URL")

// Version is reported by the root endpoint
const Version = "1.0.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	provider   *browser.Provider
	client     *client.Client
	logger     *zap.Logger
	runScripts bool
	started    time.Time
}

// NewHandlers creates a new handler set. runScripts is the default for
// requests that do not say.
func NewHandlers(provider *browser.Provider, httpClient *client.Client, logger *zap.Logger, runScripts bool) *Handlers {
	return &Handlers{
		provider:   provider,
		client:     httpClient,
		logger:     logger.Named("api"),
		runScripts: runScripts,
		started:    time.Now(),
	}
}

// Register mounts the REST routes
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	// Patching
	r.POST("/v1/patch", h.Patch)
	r.GET("/v1/patch", h.PatchURL)
	r.POST("/v1/patch/html", h.PatchHTML)

	// Metrics endpoints
	r.GET("/metrics", h.Metrics)
	r.GET("/metrics/json", h.MetricsJSON)
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "replaypatch",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":         "healthy",
		"runtimes":       h.provider.Stats(),
		"uptime_seconds": time.Since(h.started).Seconds(),
	}
	if h.client != nil {
		body["tripped_hosts"] = h.client.TrippedHosts()
	}
	c.JSON(http.StatusOK, body)
}

// Metrics serves the Prometheus text format
func (h *Handlers) Metrics(c *gin.Context) {
	text, err := h.provider.Metrics().GetMetricsPrometheus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.String(http.StatusOK, text)
}

// MetricsJSON serves the running totals
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"timestamp": time.Now(),
		"totals":    h.provider.Metrics().Snapshot(),
		"runtimes":  h.provider.Stats(),
	})
}

// Patch loads the page described by a JSON body and returns it patched
func (h *Handlers) Patch(c *gin.Context) {
	var req PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badInput(c, err)
		return
	}

	load, err := h.loadRequest(req.URL, req.PageURL, req.ArchiveOrigin, req.ServerBase, req.RunScripts)
	if err != nil {
		h.badInput(c, err)
		return
	}
	if req.HTML != "" {
		load.HTML = []byte(req.HTML)
	}
	load.ContentType = req.ContentType
	load.Bootstrap = req.Bootstrap

	h.serve(c, load, req.Report, req.Sanitize)
}

// PatchURL fetches ?url= and returns it patched
func (h *Handlers) PatchURL(c *gin.Context) {
	var q PatchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badInput(c, err)
		return
	}
	load, err := h.loadRequest(q.URL, q.PageURL, q.ArchiveOrigin, q.ServerBase, q.RunScripts)
	if err != nil {
		h.badInput(c, err)
		return
	}
	h.serve(c, load, q.Report, false)
}

// PatchHTML patches a raw HTML body and answers with the markup only, for
// replay servers that patch responses in flight
func (h *Handlers) PatchHTML(c *gin.Context) {
	var q PatchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badInput(c, err)
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.badInput(c, err)
		return
	}
	load, err := h.loadRequest("", q.PageURL, q.ArchiveOrigin, q.ServerBase, q.RunScripts)
	if err != nil {
		h.badInput(c, err)
		return
	}
	load.HTML = body
	load.ContentType = c.ContentType()

	page, err := h.provider.Load(c.Request.Context(), load)
	if err != nil {
		h.fail(c, err, false)
		return
	}
	defer h.close(page)

	markup, err := page.HTML()
	if err != nil {
		h.fail(c, err, false)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(markup))
}

func (h *Handlers) loadRequest(url, pageURL, archiveOrigin, serverBase string, runScripts *bool) (browser.LoadRequest, error) {
	load := browser.LoadRequest{
		URL:        url,
		PageURL:    pageURL,
		RunScripts: h.runScripts,
	}
	if runScripts != nil {
		load.RunScripts = *runScripts
	}
	if archiveOrigin != "" {
		archive, err := rewrite.ArchiveFromOrigin(archiveOrigin, serverBase)
		if err != nil {
			return load, err
		}
		if archive.Host == "" {
			return load, fmt.Errorf("%w: %q has no host", ErrInvalidArchive, archiveOrigin)
		}
		load.Archive = &archive
	}
	return load, nil
}

func (h *Handlers) serve(c *gin.Context, load browser.LoadRequest, report, sanitize bool) {
	var rewrites rewrite.Report
	if report {
		load.Recorder = &rewrites
	}

	page, err := h.provider.Load(c.Request.Context(), load)
	if err != nil {
		h.fail(c, err, load.URL != "")
		return
	}
	defer h.close(page)

	markup, err := page.HTML()
	if err != nil {
		h.fail(c, err, false)
		return
	}
	resp := PatchResponse{
		HTML:    markup,
		Title:   page.Title(),
		PageURL: page.Document().Location().Href,
		Archive: page.Archive(),
		Frames:  len(page.Frames()),
		Records: page.Records(),
		Console: consoleEntries(page.Console()),
	}
	if report {
		resp.Rewrites = rewrites.Entries()
	}
	if sanitize {
		if resp.Snapshot, err = page.Snapshot(); err != nil {
			h.fail(c, err, false)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// badInput answers a request that could not be read
func (h *Handlers) badInput(c *gin.Context, err error) {
	status := http.StatusBadRequest
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		status = http.StatusRequestEntityTooLarge
	}
	h.abort(c, status, err)
}

// fail answers a request whose page could not be loaded
func (h *Handlers) fail(c *gin.Context, err error, fetched bool) {
	h.abort(c, statusFor(err, fetched), err)
}

func (h *Handlers) abort(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Warn("patch failed", zap.Int("status", status), zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}

func (h *Handlers) close(page *browser.Page) {
	if err := page.Close(); err != nil {
		h.logger.Warn("close page", zap.Error(err))
	}
}
