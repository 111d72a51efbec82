package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLProperty(t *testing.T) {
	loc, err := ParseLocation("http://127.0.0.1:8080/dir/page.html")
	require.NoError(t, err)

	tests := []struct {
		name   string
		markup string
		attr   string
		want   string
		ok     bool
	}{
		{"relative href", `<a href="next.html">`, "href", "http://127.0.0.1:8080/dir/next.html", true},
		{"root relative src", `<img src="/a.png">`, "src", "http://127.0.0.1:8080/a.png", true},
		{"scheme relative", `<script src="//cdn.example.com/a.js">`, "src", "http://cdn.example.com/a.js", true},
		{"whitespace and newlines", "<link href=\" a\n/b.css \">", "href", "http://127.0.0.1:8080/dir/a/b.css", true},
		{"absent href", `<a>`, "href", "", true},
		{"absent action", `<form>`, "action", "http://127.0.0.1:8080/dir/page.html", true},
		{"empty action", `<form action="">`, "action", "http://127.0.0.1:8080/dir/page.html", true},
		{"object data", `<object data="x.swf">`, "data", "http://127.0.0.1:8080/dir/x.swf", true},
		{"srcset as written", `<source srcset="a.png 1x, b.png 2x">`, "srcset", "a.png 1x, b.png 2x", true},
		{"unparsable kept", `<a href="http://[bad">`, "href", "http://[bad", true},
		{"case insensitive name", `<a href="x">`, "HREF", "http://127.0.0.1:8080/dir/x", true},
		{"div data", `<div data="/x">`, "data", "", false},
		{"img href", `<img href="/x">`, "href", "", false},
		{"form src", `<form src="/x">`, "src", "", false},
		{"svg image", `<svg><image href="/x"></image></svg>`, "href", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseString("<body>"+tt.markup+"</body>", loc)
			require.NoError(t, err)
			el := doc.Body().FirstElementChild()
			if el.TagName() == "svg" {
				el = el.FirstElementChild()
			}

			got, ok := el.URLProperty(tt.attr)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, el.HasURLProperty(tt.attr))
		})
	}
}

func TestURLPropertyNonElement(t *testing.T) {
	doc := parse(t, `<body>text</body>`)
	_, ok := doc.Body().FirstChild().URLProperty("href")
	assert.False(t, ok)
	_, ok = doc.Root().URLProperty("href")
	assert.False(t, ok)
}
