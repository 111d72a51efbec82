package browser

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/replaypatch/internal/providers/browser/sandbox"
)

// scriptTypes are the <script type> values run as classic scripts
var scriptTypes = map[string]bool{
	"":                       true,
	"text/javascript":        true,
	"application/javascript": true,
	"text/ecmascript":        true,
	"application/ecmascript": true,
	"text/jscript":           true,
}

// Exec runs script in the page. Mutations it makes are patched before it
// returns.
func (pg *Page) Exec(ctx context.Context, script string) (*sandbox.Result, error) {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if pg.closed {
		return nil, ErrPageClosed
	}
	res, err := pg.rt.Execute(ctx, script)
	if res != nil {
		pg.console = append(pg.console, res.Console...)
		pg.records += res.Records
	}
	return res, err
}

// runScripts executes the inline classic scripts present at load time in
// document order. External and module scripts are skipped; a failing
// script is logged and the next one runs.
func (pg *Page) runScripts(ctx context.Context) {
	logger := pg.provider.logger
	for i, el := range pg.doc.QuerySelectorAll("script") {
		if src, ok := el.GetAttribute("src"); ok {
			logger.Debug("skipped external script", zap.String("src", src))
			continue
		}
		kind, _ := el.GetAttribute("type")
		if !scriptTypes[strings.ToLower(strings.TrimSpace(kind))] {
			continue
		}

		_, err := pg.Exec(ctx, el.TextContent())
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			logger.Warn("script run cancelled", zap.Int("script", i), zap.Error(ctx.Err()))
			return
		}
		logger.Warn("script failed",
			zap.String("document", pg.doc.ID()),
			zap.Int("script", i),
			zap.Error(err),
		)
	}
}
