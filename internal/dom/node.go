package dom

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

var (
	ErrNilNode       = errors.New("node is nil")
	ErrNotChild      = errors.New("node is not a child of this node")
	ErrHierarchy     = errors.New("node cannot be inserted here")
	ErrWrongDocument = errors.New("node belongs to another document")
	ErrNotElement    = errors.New("node is not an element")
)

// Node is the canonical handle for one node of a Document. The same
// *html.Node always yields the same *Node, so handles compare with ==.
type Node struct {
	n       *html.Node
	doc     *Document
	content *Document
}

// Document returns the owning document
func (n *Node) Document() *Document {
	return n.doc
}

// Raw exposes the underlying parse node. Callers must not mutate it.
func (n *Node) Raw() *html.Node {
	return n.n
}

// Type returns the node type
func (n *Node) Type() html.NodeType {
	return n.n.Type
}

// IsElement reports whether n is an element node
func (n *Node) IsElement() bool {
	return n.n.Type == html.ElementNode
}

// TagName returns the lower-case tag name, or "" for non-elements
func (n *Node) TagName() string {
	if n.n.Type != html.ElementNode {
		return ""
	}
	return n.n.Data
}

// NodeName follows the DOM nodeName property
func (n *Node) NodeName() string {
	switch n.n.Type {
	case html.ElementNode:
		return strings.ToUpper(n.n.Data)
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DocumentNode:
		return "#document"
	case html.DoctypeNode:
		return n.n.Data
	}
	return ""
}

// Attributes

// GetAttribute returns the attribute value and whether it is present
func (n *Node) GetAttribute(name string) (string, bool) {
	defer n.doc.lock().unlock()
	return getAttr(n.n, strings.ToLower(name))
}

// HasAttribute reports whether the attribute is present
func (n *Node) HasAttribute(name string) bool {
	_, ok := n.GetAttribute(name)
	return ok
}

// Attributes returns a copy of the attribute list
func (n *Node) Attributes() []html.Attribute {
	defer n.doc.lock().unlock()
	return append([]html.Attribute(nil), n.n.Attr...)
}

// SetAttribute sets an attribute and queues an attributes record, even when
// the value does not change
func (n *Node) SetAttribute(name, value string) error {
	defer n.doc.lock().unlock()
	return n.setAttribute(strings.ToLower(name), value)
}

// RemoveAttribute deletes an attribute if present
func (n *Node) RemoveAttribute(name string) {
	name = strings.ToLower(name)

	defer n.doc.lock().unlock()
	for i, a := range n.n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.n.Attr = append(n.n.Attr[:i], n.n.Attr[i+1:]...)
			n.doc.queue(MutationRecord{
				Type:          Attributes,
				Target:        n,
				AttributeName: name,
				OldValue:      a.Val,
			})
			return
		}
	}
}

func (n *Node) setAttribute(name, value string) error {
	if n.n.Type != html.ElementNode {
		return ErrNotElement
	}

	old, found := "", false
	for i := range n.n.Attr {
		a := &n.n.Attr[i]
		if a.Namespace == "" && a.Key == name {
			old, found = a.Val, true
			a.Val = value
			break
		}
	}
	if !found {
		n.n.Attr = append(n.n.Attr, html.Attribute{Key: name, Val: value})
	}

	n.doc.queue(MutationRecord{
		Type:          Attributes,
		Target:        n,
		AttributeName: name,
		OldValue:      old,
	})
	return nil
}

func getAttr(h *html.Node, name string) (string, bool) {
	for _, a := range h.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// Navigation

// Parent returns the parent node
func (n *Node) Parent() *Node {
	defer n.doc.lock().unlock()
	return n.doc.wrap(n.n.Parent)
}

// FirstChild returns the first child node
func (n *Node) FirstChild() *Node {
	defer n.doc.lock().unlock()
	return n.doc.wrap(n.n.FirstChild)
}

// LastChild returns the last child node
func (n *Node) LastChild() *Node {
	defer n.doc.lock().unlock()
	return n.doc.wrap(n.n.LastChild)
}

// NextSibling returns the next sibling node
func (n *Node) NextSibling() *Node {
	defer n.doc.lock().unlock()
	return n.doc.wrap(n.n.NextSibling)
}

// PreviousSibling returns the previous sibling node
func (n *Node) PreviousSibling() *Node {
	defer n.doc.lock().unlock()
	return n.doc.wrap(n.n.PrevSibling)
}

// ChildNodes returns a snapshot of all child nodes
func (n *Node) ChildNodes() []*Node {
	defer n.doc.lock().unlock()

	var out []*Node
	for c := n.n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, n.doc.wrap(c))
	}
	return out
}

// Children returns a snapshot of the child elements
func (n *Node) Children() []*Node {
	defer n.doc.lock().unlock()

	var out []*Node
	for c := n.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, n.doc.wrap(c))
		}
	}
	return out
}

// FirstElementChild returns the first child element
func (n *Node) FirstElementChild() *Node {
	defer n.doc.lock().unlock()
	return n.doc.wrap(nextElement(n.n.FirstChild))
}

// NextElementSibling returns the next sibling element
func (n *Node) NextElementSibling() *Node {
	defer n.doc.lock().unlock()
	return n.doc.wrap(nextElement(n.n.NextSibling))
}

func nextElement(h *html.Node) *html.Node {
	for ; h != nil; h = h.NextSibling {
		if h.Type == html.ElementNode {
			return h
		}
	}
	return nil
}

// Contains reports whether other is n or one of its descendants
func (n *Node) Contains(other *Node) bool {
	if other == nil {
		return false
	}
	defer n.doc.lock().unlock()
	for h := other.n; h != nil; h = h.Parent {
		if h == n.n {
			return true
		}
	}
	return false
}

// Tree edits

// AppendChild moves child to the end of n's child list
func (n *Node) AppendChild(child *Node) error {
	return n.InsertBefore(child, nil)
}

// InsertBefore moves child in front of ref; a nil ref appends. A child that
// already has a parent is removed from it first, queuing its own record.
func (n *Node) InsertBefore(child, ref *Node) error {
	if child == nil {
		return ErrNilNode
	}
	if child.doc != n.doc || (ref != nil && ref.doc != n.doc) {
		return ErrWrongDocument
	}

	defer n.doc.lock().unlock()

	if n.n.Type != html.ElementNode && n.n.Type != html.DocumentNode {
		return ErrHierarchy
	}
	if child.n.Type == html.DocumentNode {
		return ErrHierarchy
	}
	for h := n.n; h != nil; h = h.Parent {
		if h == child.n {
			return ErrHierarchy
		}
	}
	if ref != nil && ref.n.Parent != n.n {
		return ErrNotChild
	}
	if ref == child {
		ref = n.doc.wrap(child.n.NextSibling)
	}

	if child.n.Parent != nil {
		n.doc.detach(child)
	}

	var refNode *html.Node
	prev := n.n.LastChild
	if ref != nil {
		refNode = ref.n
		prev = ref.n.PrevSibling
	}
	n.n.InsertBefore(child.n, refNode)
	if n.doc.contains(n.n) {
		n.doc.adopt(child.n)
	}

	n.doc.queue(MutationRecord{
		Type:            ChildList,
		Target:          n,
		AddedNodes:      []*Node{child},
		PreviousSibling: n.doc.wrap(prev),
		NextSibling:     ref,
	})
	return nil
}

// RemoveChild detaches child from n
func (n *Node) RemoveChild(child *Node) error {
	if child == nil {
		return ErrNilNode
	}

	defer n.doc.lock().unlock()
	if child.doc != n.doc || child.n.Parent != n.n {
		return ErrNotChild
	}
	n.doc.detach(child)
	return nil
}

// Remove detaches n from its parent, if any
func (n *Node) Remove() {
	defer n.doc.lock().unlock()
	if n.n.Parent != nil {
		n.doc.detach(n)
	}
}

// detach unlinks child from its parent and queues the removal. Caller holds
// the lock.
func (d *Document) detach(child *Node) {
	parent := child.n.Parent
	prev, next := child.n.PrevSibling, child.n.NextSibling
	attached := d.contains(parent)
	parent.RemoveChild(child.n)
	if attached {
		d.release(child.n)
	}

	d.queue(MutationRecord{
		Type:            ChildList,
		Target:          d.wrap(parent),
		RemovedNodes:    []*Node{child},
		PreviousSibling: d.wrap(prev),
		NextSibling:     d.wrap(next),
	})
}

// replaceChildren swaps every child of n for nodes as a single record.
// Caller holds the lock.
func (n *Node) replaceChildren(nodes []*html.Node) {
	attached := n.doc.contains(n.n)

	var removed []*Node
	for c := n.n.FirstChild; c != nil; {
		next := c.NextSibling
		n.n.RemoveChild(c)
		removed = append(removed, n.doc.wrap(c))
		if attached {
			n.doc.release(c)
		}
		c = next
	}

	added := make([]*Node, 0, len(nodes))
	for _, h := range nodes {
		if h.Parent != nil {
			h.Parent.RemoveChild(h)
		}
		n.n.AppendChild(h)
		if attached {
			n.doc.adopt(h)
		}
		added = append(added, n.doc.wrap(h))
	}

	if len(removed) == 0 && len(added) == 0 {
		return
	}
	n.doc.queue(MutationRecord{
		Type:         ChildList,
		Target:       n,
		AddedNodes:   added,
		RemovedNodes: removed,
	})
}

// Content

// TextContent returns the concatenated text of n and its descendants
func (n *Node) TextContent() string {
	defer n.doc.lock().unlock()
	if n.n.Type == html.TextNode || n.n.Type == html.CommentNode {
		return n.n.Data
	}
	return htmlquery.InnerText(n.n)
}

// SetTextContent replaces the children of an element with one text node, or
// the data of a text node
func (n *Node) SetTextContent(text string) {
	defer n.doc.lock().unlock()

	switch n.n.Type {
	case html.TextNode, html.CommentNode:
		n.n.Data = text
	case html.ElementNode:
		var nodes []*html.Node
		if text != "" {
			nodes = append(nodes, &html.Node{Type: html.TextNode, Data: text})
		}
		n.replaceChildren(nodes)
	}
}

// InnerHTML serializes the children of n
func (n *Node) InnerHTML() string {
	defer n.doc.lock().unlock()
	return htmlquery.OutputHTML(n.n, false)
}

// OuterHTML serializes n itself
func (n *Node) OuterHTML() string {
	defer n.doc.lock().unlock()
	return htmlquery.OutputHTML(n.n, true)
}

// SetInnerHTML parses markup in the context of n and replaces its children
func (n *Node) SetInnerHTML(markup string) error {
	defer n.doc.lock().unlock()

	if n.n.Type != html.ElementNode {
		return ErrNotElement
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), n.n)
	if err != nil {
		return err
	}
	n.replaceChildren(nodes)
	return nil
}

// Queries

// QuerySelectorAll matches a CSS selector against the descendants of n. An
// invalid selector matches nothing.
func (n *Node) QuerySelectorAll(selector string) []*Node {
	defer n.doc.lock().unlock()
	sel := goquery.NewDocumentFromNode(n.n).Find(selector)
	return n.doc.wrapAll(sel.Nodes)
}

// QuerySelector returns the first match of QuerySelectorAll
func (n *Node) QuerySelector(selector string) *Node {
	if all := n.QuerySelectorAll(selector); len(all) > 0 {
		return all[0]
	}
	return nil
}

// Frames

// ContentDocument returns the document attached to a frame element
func (n *Node) ContentDocument() *Document {
	defer n.doc.lock().unlock()
	return n.content
}

// SetContentDocument attaches doc as the content of n. doc and any frames it
// already hosts join n's delivery loop, so flushing the top document drains
// them too.
func (n *Node) SetContentDocument(doc *Document) {
	parent := n.doc.lock()
	defer parent.unlock()

	n.content = doc
	if doc == nil {
		return
	}
	if doc.loop != parent {
		parent.merge(doc.loop)
	}
	doc.owner = n
}
