package rewrite

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/GriffinCanCode/replaypatch/internal/dom"
)

var (
	ErrMissingArchiveOrigin = errors.New("archive origin is required")
	ErrInvalidPageOrigin    = errors.New("page location must be an absolute http(s) URL")
)

// Archive identifies the origin being replayed and the path prefix under
// which the replay server exposes rewritten absolute URLs. It is supplied
// once by the embedding environment (the __webrecorder global).
type Archive struct {
	Origin     string `json:"origin" yaml:"origin" toml:"origin"`
	Host       string `json:"host" yaml:"host" toml:"host"`
	Hostname   string `json:"hostname" yaml:"hostname" toml:"hostname"`
	ServerBase string `json:"server_base" yaml:"server_base" toml:"server_base"`
}

// ArchiveFromOrigin derives Host and Hostname from an origin string.
func ArchiveFromOrigin(origin, serverBase string) (Archive, error) {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		return Archive{}, ErrMissingArchiveOrigin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return Archive{}, fmt.Errorf("parse archive origin %q: %w", origin, err)
	}
	return Archive{
		Origin:     u.Scheme + "://" + u.Host,
		Host:       u.Host,
		Hostname:   u.Hostname(),
		ServerBase: serverBase,
	}, nil
}

// Context is the immutable per-page rewrite configuration.
type Context struct {
	PageOrigin   string
	PageHost     string
	PageHostname string
	PageProtocol string

	ArchiveOrigin   string
	ArchiveHost     string
	ArchiveHostname string
	ServerBase      string
}

// NewContext combines the location the page believes it is served from with
// the archive identity. The page origin is normalized the way
// location.origin is: lower-case host, no default port.
func NewContext(pageURL string, archive Archive) (Context, error) {
	if archive.Origin == "" {
		return Context{}, ErrMissingArchiveOrigin
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return Context{}, fmt.Errorf("parse page location %q: %w", pageURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Context{}, fmt.Errorf("%w: %q", ErrInvalidPageOrigin, pageURL)
	}

	u.Host = dom.CanonicalHost(u.Scheme, u.Host)

	return Context{
		PageOrigin:      u.Scheme + "://" + u.Host,
		PageHost:        u.Host,
		PageHostname:    u.Hostname(),
		PageProtocol:    u.Scheme + ":",
		ArchiveOrigin:   archive.Origin,
		ArchiveHost:     archive.Host,
		ArchiveHostname: archive.Hostname,
		ServerBase:      archive.ServerBase,
	}, nil
}
