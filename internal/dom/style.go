package dom

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
)

// Style is the inline style (the style attribute) of an element. Values are
// returned exactly as written; nothing is normalized.
type Style struct {
	el *Node
}

// Style returns the inline style accessor of n
func (n *Node) Style() Style {
	return Style{el: n}
}

// GetPropertyValue returns the declared value of a property, accepting the
// CSSOM camelCase name or the CSS name. The last declaration wins.
func (s Style) GetPropertyValue(name string) string {
	defer s.el.doc.lock().unlock()

	decls, err := s.declarations()
	if err != nil {
		return ""
	}
	prop := CSSPropertyName(name)
	for i := len(decls) - 1; i >= 0; i-- {
		if strings.EqualFold(decls[i].Property, prop) {
			return decls[i].Value
		}
	}
	return ""
}

// SetProperty sets a property value, keeping its !important flag. An empty
// value removes the property. The style attribute is rewritten, which
// queues an attributes record for "style".
func (s Style) SetProperty(name, value string) error {
	defer s.el.doc.lock().unlock()

	decls, err := s.declarations()
	if err != nil {
		return err
	}

	prop := CSSPropertyName(name)
	value = strings.TrimSpace(value)

	out := decls[:0]
	set := false
	for i := len(decls) - 1; i >= 0; i-- {
		if !strings.EqualFold(decls[i].Property, prop) {
			continue
		}
		if value != "" && !set {
			decls[i].Value = value
			set = true
			continue
		}
		decls[i] = nil
	}
	for _, d := range decls {
		if d != nil {
			out = append(out, d)
		}
	}
	if value != "" && !set {
		out = append(out, &css.Declaration{Property: prop, Value: value})
	}

	return s.el.setAttribute("style", serializeDeclarations(out))
}

// RemoveProperty deletes every declaration of a property
func (s Style) RemoveProperty(name string) error {
	return s.SetProperty(name, "")
}

// CSSText returns the raw style attribute
func (s Style) CSSText() string {
	defer s.el.doc.lock().unlock()
	v, _ := getAttr(s.el.n, "style")
	return v
}

// SetCSSText replaces the whole style attribute
func (s Style) SetCSSText(text string) error {
	return s.el.SetAttribute("style", strings.TrimSpace(text))
}

// PropertyNames lists the declared properties in order, without repeats
func (s Style) PropertyNames() []string {
	defer s.el.doc.lock().unlock()

	decls, err := s.declarations()
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var names []string
	for _, d := range decls {
		prop := strings.ToLower(d.Property)
		if !seen[prop] {
			seen[prop] = true
			names = append(names, prop)
		}
	}
	return names
}

// declarations parses the style attribute. Caller holds the lock.
func (s Style) declarations() ([]*css.Declaration, error) {
	if s.el.n.Type != html.ElementNode {
		return nil, ErrNotElement
	}
	text, _ := getAttr(s.el.n, "style")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	// the parser only closes a declaration on ';'
	if !strings.HasSuffix(text, ";") {
		text += ";"
	}
	decls, err := parser.ParseDeclarations(text)
	if err != nil {
		return nil, fmt.Errorf("parse inline style: %w", err)
	}
	return decls, nil
}

func serializeDeclarations(decls []*css.Declaration) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d.String())
	}
	return strings.Join(parts, " ")
}

// CSSPropertyName maps a CSSOM camelCase name (backgroundImage) to its CSS
// form (background-image). Names that already contain a dash are returned
// lower-cased.
func CSSPropertyName(name string) string {
	if strings.Contains(name, "-") {
		return strings.ToLower(name)
	}
	if name == "cssFloat" {
		return "float"
	}

	var b strings.Builder
	for _, r := range name {
		if unicode.IsUpper(r) {
			b.WriteByte('-')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
