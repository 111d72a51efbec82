package dom

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidLocation = errors.New("invalid document location")

// Location mirrors window.location for a hosted document
type Location struct {
	Href     string `json:"href"`
	Protocol string `json:"protocol"`
	Host     string `json:"host"`
	Hostname string `json:"hostname"`
	Port     string `json:"port"`
	Pathname string `json:"pathname"`
	Search   string `json:"search"`
	Hash     string `json:"hash"`
	Origin   string `json:"origin"`
}

// ParseLocation splits an absolute URL into location fields
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	if u.Scheme == "" {
		return Location{}, fmt.Errorf("%w: %q is not absolute", ErrInvalidLocation, raw)
	}

	web := u.Scheme == "http" || u.Scheme == "https"
	if web {
		if u.Host == "" {
			return Location{}, fmt.Errorf("%w: %q has no host", ErrInvalidLocation, raw)
		}
		if u.Path == "" {
			u.Path = "/"
		}
		u.Host = CanonicalHost(u.Scheme, u.Host)
	}

	loc := Location{
		Href:     u.String(),
		Protocol: u.Scheme + ":",
		Host:     u.Host,
		Hostname: u.Hostname(),
		Port:     u.Port(),
		Pathname: u.EscapedPath(),
		Origin:   "null",
	}
	if u.RawQuery != "" {
		loc.Search = "?" + u.RawQuery
	}
	if u.Fragment != "" {
		loc.Hash = "#" + u.EscapedFragment()
	}

	if web {
		loc.Origin = u.Scheme + "://" + u.Host
	}

	return loc, nil
}

// CanonicalHost lower-cases host and drops the default port of scheme, as a
// browser does before exposing location.host and location.origin
func CanonicalHost(scheme, host string) string {
	host = strings.ToLower(host)
	port := ""
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		host, port = host[:i], host[i+1:]
	}
	switch {
	case port == "",
		scheme == "http" && port == "80",
		scheme == "https" && port == "443":
		return host
	}
	return host + ":" + port
}

func (l Location) String() string {
	return l.Href
}

// Resolve resolves ref against the location, as the page would
func (l Location) Resolve(ref string) (string, error) {
	base, err := url.Parse(l.Href)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", ref, err)
	}
	return base.ResolveReference(u).String(), nil
}
