package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// urlProperties maps an attribute to the HTML elements that expose it as a
// property. Elements missing here have no such property.
var urlProperties = map[string]map[string]bool{
	"href":   tags("a", "area", "link", "base"),
	"src":    tags("img", "script", "iframe", "frame", "source", "audio", "video", "embed", "input", "track"),
	"srcset": tags("img", "source"),
	"action": tags("form"),
	"data":   tags("object"),
}

func tags(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, name := range names {
		m[name] = true
	}
	return m
}

var stripNewlines = strings.NewReplacer("\t", "", "\n", "", "\r", "")

// HasURLProperty reports whether the element exposes name as a property.
// Elements outside the HTML namespace never do.
func (n *Node) HasURLProperty(name string) bool {
	if n.n.Type != html.ElementNode || n.n.Namespace != "" {
		return false
	}
	return urlProperties[strings.ToLower(name)][n.n.Data]
}

// URLProperty reads the property backed by the name attribute the way a
// browser does: the value resolved against the document base. An absent
// attribute reads as "", except form.action which falls back to the
// document URL. srcset is returned as written. ok is false when the element
// has no such property.
func (n *Node) URLProperty(name string) (value string, ok bool) {
	name = strings.ToLower(name)
	if !n.HasURLProperty(name) {
		return "", false
	}

	value, present := n.GetAttribute(name)
	if name == "srcset" {
		return value, true
	}
	if !present && name != "action" {
		return "", true
	}

	base := n.doc.BaseLocation()
	if base.Origin == "null" {
		return value, true
	}
	ref := strings.TrimFunc(value, func(c rune) bool { return c <= ' ' })
	resolved, err := base.Resolve(stripNewlines.Replace(ref))
	if err != nil {
		return value, true
	}
	return resolved, true
}
