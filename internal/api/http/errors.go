package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/GriffinCanCode/replaypatch/internal/dom"
	"github.com/GriffinCanCode/replaypatch/internal/providers/browser"
	"github.com/GriffinCanCode/replaypatch/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/replaypatch/internal/providers/http/client"
	"github.com/GriffinCanCode/replaypatch/internal/rewrite"
)

var badRequest = []error{
	browser.ErrNoSource,
	browser.ErrManySources,
	browser.ErrNoPageURL,
	browser.ErrNoArchive,
	dom.ErrInvalidLocation,
	rewrite.ErrMissingArchiveOrigin,
	rewrite.ErrInvalidPageOrigin,
}

// statusFor maps a load failure to a response status. Unclassified
// failures of fetched pages are blamed on the upstream.
func statusFor(err error, fetched bool) int {
	var maxBytes *http.MaxBytesError
	var upstream *client.StatusError

	switch {
	case errors.As(err, &maxBytes),
		errors.Is(err, browser.ErrPageTooLarge),
		errors.Is(err, client.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, browser.ErrNotHTML):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, client.ErrUnavailable),
		errors.Is(err, sandbox.ErrTimeout),
		errors.Is(err, sandbox.ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	if fetched {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
