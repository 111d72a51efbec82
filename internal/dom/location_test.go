package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation("http://127.0.0.1:8080/a/b.html?x=1#top")
	require.NoError(t, err)

	assert.Equal(t, "http:", loc.Protocol)
	assert.Equal(t, "127.0.0.1:8080", loc.Host)
	assert.Equal(t, "127.0.0.1", loc.Hostname)
	assert.Equal(t, "8080", loc.Port)
	assert.Equal(t, "/a/b.html", loc.Pathname)
	assert.Equal(t, "?x=1", loc.Search)
	assert.Equal(t, "#top", loc.Hash)
	assert.Equal(t, "http://127.0.0.1:8080", loc.Origin)
}

func TestParseLocationDefaults(t *testing.T) {
	loc, err := ParseLocation("https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", loc.Href)
	assert.Equal(t, "/", loc.Pathname)
	assert.Equal(t, "https://example.com", loc.Origin)

	blank, err := ParseLocation("about:blank")
	require.NoError(t, err)
	assert.Equal(t, "null", blank.Origin)
	assert.Equal(t, "about:", blank.Protocol)
}

func TestParseLocationErrors(t *testing.T) {
	for _, raw := range []string{"/relative", "http:///nohost", "%zz"} {
		_, err := ParseLocation(raw)
		assert.ErrorIs(t, err, ErrInvalidLocation, raw)
	}
}

func TestLocationResolve(t *testing.T) {
	loc, err := ParseLocation("http://127.0.0.1:8080/dir/page.html")
	require.NoError(t, err)

	tests := map[string]string{
		"/https://www.example.com/api": "http://127.0.0.1:8080/https://www.example.com/api",
		"img.png":                      "http://127.0.0.1:8080/dir/img.png",
		"//cdn.example.com/a.js":       "http://cdn.example.com/a.js",
		"https://other.org/x":          "https://other.org/x",
	}
	for ref, want := range tests {
		got, err := loc.Resolve(ref)
		require.NoError(t, err)
		assert.Equal(t, want, got, ref)
	}
}

func TestParseLocationCanonicalHost(t *testing.T) {
	tests := []struct {
		raw    string
		origin string
		host   string
		port   string
	}{
		{"http://LocalHost:80/page", "http://localhost", "localhost", ""},
		{"HTTPS://Example.COM:443/", "https://example.com", "example.com", ""},
		{"https://example.com:80/", "https://example.com:80", "example.com:80", "80"},
		{"http://[::1]:80/", "http://[::1]", "[::1]", ""},
		{"http://[::1]:8080/", "http://[::1]:8080", "[::1]:8080", "8080"},
	}
	for _, tt := range tests {
		loc, err := ParseLocation(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.origin, loc.Origin, tt.raw)
		assert.Equal(t, tt.host, loc.Host, tt.raw)
		assert.Equal(t, tt.port, loc.Port, tt.raw)
	}

	loc, err := ParseLocation("http://LocalHost:80/a?b=1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/a?b=1", loc.Href)
	assert.Equal(t, "localhost", loc.Hostname)
}

func TestBaseLocationOfSrcdocFrame(t *testing.T) {
	top := parse(t, `<body><iframe></iframe></body>`)
	srcdoc, err := ParseLocation("about:srcdoc")
	require.NoError(t, err)
	inner, err := ParseString(`<img src="a.png">`, srcdoc)
	require.NoError(t, err)

	img := inner.QuerySelectorAll("img")[0]
	assert.Equal(t, "about:srcdoc", inner.BaseLocation().Href)
	src, ok := img.URLProperty("src")
	assert.True(t, ok)
	assert.Equal(t, "a.png", src)

	top.QuerySelectorAll("iframe")[0].SetContentDocument(inner)
	assert.Equal(t, "http://127.0.0.1:8080/", inner.BaseLocation().Href)

	src, ok = img.URLProperty("src")
	assert.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:8080/a.png", src)
}
