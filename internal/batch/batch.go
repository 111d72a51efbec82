package batch

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/GriffinCanCode/replaypatch/internal/providers/browser"
	"github.com/GriffinCanCode/replaypatch/internal/rewrite"
)

var (
	ErrNoRoot     = errors.New("batch root is required")
	ErrNoPageBase = errors.New("page base URL is required")
)

// Job describes a directory of captures to patch
type Job struct {
	Root    string // Directory holding the captures
	Pattern string // Doublestar pattern relative to Root; empty picks HTML files
	OutDir  string // Patched pages are written here under their relative path

	// PageBase is the URL the capture directory is served from. Each page
	// believes it lives at PageBase joined with its relative path.
	PageBase string

	Archive    *rewrite.Archive
	RunScripts bool
}

// Result is the outcome for one capture
type Result struct {
	Path     string        `json:"path"`
	PageURL  string        `json:"page_url"`
	Output   string        `json:"output,omitempty"`
	Title    string        `json:"title,omitempty"`
	Rewrites int           `json:"rewrites"`
	Digest   string        `json:"digest,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Runner patches captures concurrently through one provider
type Runner struct {
	provider *browser.Provider
	workers  int
	logger   *zap.Logger
}

// NewRunner creates a runner. workers defaults to 1 and should not exceed
// the provider's pool size, since each page holds a runtime.
func NewRunner(provider *browser.Provider, workers int, logger *zap.Logger) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{provider: provider, workers: workers, logger: logger.Named("batch")}
}

// Run patches every capture of the job. A failing page is recorded in its
// Result and the others continue; only setup errors and cancellation are
// returned.
func (r *Runner) Run(ctx context.Context, job Job) (*Summary, error) {
	if job.Root == "" {
		return nil, ErrNoRoot
	}
	if job.PageBase == "" {
		return nil, ErrNoPageBase
	}

	paths, err := Find(ctx, job.Root, job.Pattern)
	if err != nil {
		return nil, err
	}
	r.logger.Info("patching captures",
		zap.String("root", job.Root),
		zap.Int("pages", len(paths)),
		zap.Int("workers", r.workers),
	)

	results := make([]Result, len(paths))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = r.patch(ctx, job, paths[i])
			}
		}()
	}

feed:
	for i := range paths {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := summarize(results)
	r.logger.Info("batch complete",
		zap.Int("patched", summary.Patched),
		zap.Int("failed", summary.Failed),
		zap.Int("rewrites", summary.Rewrites),
		zap.Duration("p95", summary.P95Duration),
	)
	return &summary, nil
}

func (r *Runner) patch(ctx context.Context, job Job, rel string) Result {
	start := time.Now()
	res := Result{Path: rel}
	name := StripCompression(rel)

	pageURL, err := url.JoinPath(job.PageBase, name)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.PageURL = pageURL

	var rewrites atomic.Int64
	page, err := r.provider.Load(ctx, browser.LoadRequest{
		Path:       filepath.Join(job.Root, filepath.FromSlash(rel)),
		PageURL:    pageURL,
		Archive:    job.Archive,
		RunScripts: job.RunScripts,
		Recorder: rewrite.RecorderFunc(func(rewrite.Kind, string, string) {
			rewrites.Add(1)
		}),
	})
	if err != nil {
		r.logger.Warn("capture failed", zap.String("path", rel), zap.Error(err))
		res.Error = err.Error()
		res.Duration = time.Since(start)
		return res
	}
	defer page.Close()

	markup, err := page.HTML()
	if err != nil {
		res.Error = fmt.Sprintf("render page: %v", err)
		return res
	}
	sum := blake2b.Sum256([]byte(markup))
	res.Digest = hex.EncodeToString(sum[:])
	res.Title = page.Title()
	res.Rewrites = int(rewrites.Load())

	if job.OutDir != "" {
		out := filepath.Join(job.OutDir, filepath.FromSlash(name))
		if err := writeFile(out, markup); err != nil {
			res.Error = err.Error()
			return res
		}
		res.Output = out
	}

	res.Duration = time.Since(start)
	return res
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
