package rewrite

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	rewrittenAbsolute = regexp.MustCompile(`(?i)^/https?:`)
	httpScheme        = regexp.MustCompile(`(?i)^https?:`)
)

type replacement struct {
	from string
	to   string
}

// Rewriter maps URLs found in a replayed page onto the replay server's path
// space. It is safe for concurrent use; all state is fixed at construction.
type Rewriter struct {
	ctx          Context
	replacements []replacement

	url   func(string) string
	style func(string) string
}

// New builds a Rewriter for ctx. Options decorate the rewrite functions
// without changing their results.
func New(ctx Context, opts ...Option) *Rewriter {
	r := &Rewriter{ctx: ctx}

	for _, pair := range [][2]string{
		{ctx.PageOrigin, ctx.ArchiveOrigin},
		{ctx.PageHost, ctx.ArchiveHost},
		{ctx.PageHostname, ctx.ArchiveHostname},
	} {
		if pair[0] == "" {
			continue
		}
		r.replacements = append(r.replacements, replacement{
			from: EncodeURIComponent(pair[0]),
			to:   EncodeURIComponent(pair[1]),
		})
	}

	r.url = r.rewriteURL
	r.style = r.rewriteStyle

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.decorate(r)

	return r
}

// Context returns the configuration the Rewriter was built with.
func (r *Rewriter) Context() Context {
	return r.ctx
}

// URL rewrites a single URL string. It never fails: values it does not
// understand are returned unchanged.
func (r *Rewriter) URL(raw string) string {
	return r.url(raw)
}

// Settled reports whether URL would return raw unchanged. Diagnostics do
// not see the call.
func (r *Rewriter) Settled(raw string) bool {
	return r.rewriteURL(raw) == raw
}

// Value is the untyped entry point used by interceptors. Non-string values
// pass through untouched.
func (r *Rewriter) Value(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return r.url(s)
}

// StyleURL rewrites the URL inside the first url(...) expression of a CSS
// value, preserving the wrapper and quoting.
func (r *Rewriter) StyleURL(value string) string {
	return r.style(value)
}

func (r *Rewriter) rewriteURL(raw string) string {
	u := trimJS(raw)

	// same-origin absolute URLs become origin-relative
	if strings.HasPrefix(u, r.ctx.PageOrigin) {
		u = u[len(r.ctx.PageOrigin):]
	}

	// identities embedded in query strings and the like
	for _, rep := range r.replacements {
		u = strings.ReplaceAll(u, rep.from, rep.to)
	}

	switch {
	case strings.HasPrefix(u, "//"):
		u = r.ctx.PageProtocol + u
	case strings.HasPrefix(u, "/"):
		if strings.HasPrefix(u, "/#") {
			return u[1:]
		}
		if rewrittenAbsolute.MatchString(u) {
			return u
		}
		u = r.ctx.ArchiveOrigin + u
	default:
		if !httpScheme.MatchString(u) {
			return u
		}
	}

	// an empty server base matches everything and leaves u absolute
	if strings.HasPrefix(u, r.ctx.ServerBase) {
		return u[len(r.ctx.ServerBase):]
	}
	return "/" + u
}

// trimJS trims the code points String.prototype.trim does: ECMAScript
// WhiteSpace and LineTerminator.
func trimJS(s string) string {
	return strings.TrimFunc(s, func(c rune) bool {
		switch c {
		case '\t', '\n', '\v', '\f', '\r', '\u2028', '\u2029', '\uFEFF':
			return true
		}
		return unicode.Is(unicode.Zs, c)
	})
}
