package browser

import (
	"context"
	"strings"

	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/replaypatch/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/replaypatch/internal/providers/http/client"
	"github.com/GriffinCanCode/replaypatch/internal/rewrite"
)

// pageHost answers fetch and XMLHttpRequest calls of hosted pages through
// the HTTP client. URLs arrive already rewritten by the interceptors.
func (p *Provider) pageHost() sandbox.Host {
	return sandbox.HostFunc(func(ctx context.Context, req sandbox.HostRequest) (*sandbox.HostResponse, error) {
		resp, err := p.client.Do(ctx, client.Request{
			Method: req.Method,
			URL:    req.URL,
			Header: req.Header,
			Body:   req.Body,
		})
		if err != nil {
			return nil, err
		}

		header := make(map[string]string, len(resp.Header))
		for k, v := range resp.Header {
			header[strings.ToLower(k)] = v
		}
		return &sandbox.HostResponse{
			Status:     resp.Status,
			StatusText: resp.StatusText,
			URL:        resp.URL,
			Header:     header,
			Body:       string(resp.Body),
		}, nil
	})
}

// metricsRecorder counts rewritten values per kind
type metricsRecorder struct {
	metrics *monitoring.Metrics
}

func (m metricsRecorder) Record(kind rewrite.Kind, _, _ string) {
	m.metrics.RecordRewrite(string(kind))
}
