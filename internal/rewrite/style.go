package rewrite

import (
	"regexp"
	"strings"
)

// Tried in order; the first pattern that matches wins. The double-quoted
// form deliberately excludes single quotes only.
var styleURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`url\('([^']+)'\)`),
	regexp.MustCompile(`url\("([^']+)"\)`),
	regexp.MustCompile(`url\(([^\)]+)\)`),
}

// ExtractStyleURL returns the URL token of the first url(...) expression in
// value, or false when there is none.
func ExtractStyleURL(value string) (string, bool) {
	for _, re := range styleURLPatterns {
		if m := re.FindStringSubmatch(value); m != nil {
			return m[1], true
		}
	}
	return "", false
}

func (r *Rewriter) rewriteStyle(value string) string {
	token, ok := ExtractStyleURL(value)
	if !ok {
		return value
	}
	return strings.Replace(value, token, r.url(token), 1)
}
