package dom

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"weak"

	"github.com/antchfx/htmlquery"
	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is one hosted HTML document: the top page or a frame's content
type Document struct {
	id    string
	loc   Location
	root  *html.Node
	loop  *loop
	regs  []*registration
	owner *Node

	// nodes holds the handles of nodes in the tree. Removed nodes move to
	// detached and live only as long as someone else holds their handle.
	nodes    map[*html.Node]*Node
	detached map[*html.Node]weak.Pointer[Node]
	self     weak.Pointer[Document]
}

// NewDocument creates an empty html/head/body document
func NewDocument(loc Location) *Document {
	root, _ := html.Parse(strings.NewReader(""))
	return newDocument(root, loc)
}

// Parse reads an HTML document from r
func Parse(r io.Reader, loc Location) (*Document, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return newDocument(root, loc), nil
}

// ParseString parses markup into a document
func ParseString(markup string, loc Location) (*Document, error) {
	return Parse(strings.NewReader(markup), loc)
}

func newDocument(root *html.Node, loc Location) *Document {
	d := &Document{
		id:    uuid.NewString(),
		loc:   loc,
		root:  root,
		nodes:    make(map[*html.Node]*Node),
		detached: make(map[*html.Node]weak.Pointer[Node]),
	}
	d.self = weak.Make(d)
	d.loop = &loop{docs: []*Document{d}}
	return d
}

// ID is a random identifier used to tell documents apart in logs
func (d *Document) ID() string {
	return d.id
}

// Location returns the location the document believes it was loaded from
func (d *Document) Location() Location {
	return d.loc
}

// BaseLocation is the location relative URLs resolve against. A srcdoc
// frame uses the base of the document hosting it.
func (d *Document) BaseLocation() Location {
	loc := d.loc
	for doc := d; loc.Href == "about:srcdoc"; {
		owner := doc.Owner()
		if owner == nil {
			break
		}
		doc = owner.doc
		loc = doc.loc
	}
	return loc
}

// Owner returns the frame element hosting this document, if any
func (d *Document) Owner() *Node {
	defer d.lock().unlock()
	return d.owner
}

// Root returns the document node
func (d *Document) Root() *Node {
	defer d.lock().unlock()
	return d.wrap(d.root)
}

// DocumentElement returns the <html> element
func (d *Document) DocumentElement() *Node {
	return d.queryOne("/html")
}

// Head returns the <head> element
func (d *Document) Head() *Node {
	return d.queryOne("/html/head")
}

// Body returns the <body> element, or the <frameset> of a frameset document
func (d *Document) Body() *Node {
	if body := d.queryOne("/html/body"); body != nil {
		return body
	}
	return d.queryOne("/html/frameset")
}

// QueryAll evaluates an XPath expression against the document
func (d *Document) QueryAll(expr string) ([]*Node, error) {
	defer d.lock().unlock()

	found, err := htmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", expr, err)
	}
	return d.wrapAll(found), nil
}

// QuerySelectorAll matches a CSS selector against every element
func (d *Document) QuerySelectorAll(selector string) []*Node {
	return d.Root().QuerySelectorAll(selector)
}

// GetElementByID returns the first element whose id attribute equals id
func (d *Document) GetElementByID(id string) *Node {
	defer d.lock().unlock()

	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil && found == nil; c = c.NextSibling {
			if c.Type == html.ElementNode && htmlquery.SelectAttr(c, "id") == id {
				found = c
				return
			}
			walk(c)
		}
	}
	walk(d.root)
	return d.wrap(found)
}

// CreateElement returns a detached element owned by d
func (d *Document) CreateElement(tag string) *Node {
	tag = strings.ToLower(tag)

	defer d.lock().unlock()
	return d.wrap(&html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	})
}

// CreateTextNode returns a detached text node owned by d
func (d *Document) CreateTextNode(text string) *Node {
	defer d.lock().unlock()
	return d.wrap(&html.Node{Type: html.TextNode, Data: text})
}

// Render writes the serialized document to w
func (d *Document) Render(w io.Writer) error {
	defer d.lock().unlock()
	return html.Render(w, d.root)
}

// HTML returns the serialized document
func (d *Document) HTML() (string, error) {
	var b strings.Builder
	if err := d.Render(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (d *Document) queryOne(expr string) *Node {
	defer d.lock().unlock()

	n, err := htmlquery.Query(d.root, expr)
	if err != nil {
		return nil
	}
	return d.wrap(n)
}

// wrap returns the canonical Node for h. Caller holds the lock.
func (d *Document) wrap(h *html.Node) *Node {
	if h == nil {
		return nil
	}
	if n, ok := d.nodes[h]; ok {
		return n
	}
	if ref, ok := d.detached[h]; ok {
		if n := ref.Value(); n != nil {
			return n
		}
	}

	n := &Node{n: h, doc: d}
	if d.contains(h) {
		d.nodes[h] = n
	} else {
		d.detached[h] = weak.Make(n)
	}
	runtime.AddCleanup(n, forget, handle{doc: d.self, n: h})
	return n
}

type handle struct {
	doc weak.Pointer[Document]
	n   *html.Node
}

// forget drops the detached entry of a collected Node
func forget(h handle) {
	d := h.doc.Value()
	if d == nil {
		return
	}
	defer d.lock().unlock()
	if ref, ok := d.detached[h.n]; ok && ref.Value() == nil {
		delete(d.detached, h.n)
	}
}

// contains reports whether h is part of the tree. Caller holds the lock.
func (d *Document) contains(h *html.Node) bool {
	for ; h != nil; h = h.Parent {
		if h == d.root {
			return true
		}
	}
	return false
}

// release moves the handles of a subtree that left the tree to detached.
// Frame elements stay pinned so their content document survives a move.
// Caller holds the lock.
func (d *Document) release(h *html.Node) {
	eachNode(h, func(c *html.Node) {
		n, ok := d.nodes[c]
		if !ok || n.content != nil {
			return
		}
		delete(d.nodes, c)
		d.detached[c] = weak.Make(n)
	})
}

// adopt moves the handles of a subtree that joined the tree back to nodes.
// Caller holds the lock.
func (d *Document) adopt(h *html.Node) {
	eachNode(h, func(c *html.Node) {
		ref, ok := d.detached[c]
		if !ok {
			return
		}
		delete(d.detached, c)
		if n := ref.Value(); n != nil {
			d.nodes[c] = n
		}
	})
}

func eachNode(h *html.Node, fn func(*html.Node)) {
	fn(h)
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		eachNode(c, fn)
	}
}

func (d *Document) wrapAll(hs []*html.Node) []*Node {
	out := make([]*Node, 0, len(hs))
	for _, h := range hs {
		out = append(out, d.wrap(h))
	}
	return out
}

// lock acquires the mutex of the loop d currently belongs to. A frame
// document can move to its parent's loop while we wait, hence the retry.
func (d *Document) lock() *loop {
	for {
		l := d.loop
		l.mu.Lock()
		if d.loop == l {
			return l
		}
		l.mu.Unlock()
	}
}
