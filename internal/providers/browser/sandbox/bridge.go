package sandbox

import (
	"errors"

	"github.com/dop251/goja"
	"golang.org/x/net/html"

	"github.com/GriffinCanCode/replaypatch/internal/dom"
)

// bridge exposes dom nodes to scripts. Every node maps to exactly one JS
// object, so identity comparisons in scripts behave like in a browser.
type bridge struct {
	rt *Runtime
	vm *goja.Runtime

	objects   map[*dom.Node]*goja.Object
	nodes     map[*goja.Object]*dom.Node
	styles    map[*dom.Node]*goja.Object
	locations map[*dom.Document]*goja.Object
	windows   map[*dom.Document]*goja.Object
	observers map[*goja.Object]*dom.Observer

	ctors map[string]*goja.Object

	nodeProto     *goja.Object
	elementProto  *goja.Object
	charDataProto *goja.Object
	documentProto *goja.Object
	observerProto *goja.Object
}

func newBridge(rt *Runtime) *bridge {
	b := &bridge{
		rt:        rt,
		vm:        rt.vm,
		objects:   map[*dom.Node]*goja.Object{},
		nodes:     map[*goja.Object]*dom.Node{},
		styles:    map[*dom.Node]*goja.Object{},
		locations: map[*dom.Document]*goja.Object{},
		windows:   map[*dom.Document]*goja.Object{},
		observers: map[*goja.Object]*dom.Observer{},
		ctors:     map[string]*goja.Object{},
	}

	b.nodeProto = b.constructor("Node", nil)
	b.elementProto = b.constructor("Element", b.nodeProto)
	b.charDataProto = b.constructor("CharacterData", b.nodeProto)
	b.documentProto = b.constructor("Document", b.nodeProto)
	b.observerProto = b.observerConstructor()

	b.setupNode()
	b.setupElement()
	b.setupCharacterData()
	b.setupDocument()
	b.setupObserver()
	return b
}

// constructor creates an illegal constructor whose prototype inherits from
// parent, and returns that prototype
func (b *bridge) constructor(name string, parent *goja.Object) *goja.Object {
	ctor := b.vm.ToValue(func(goja.ConstructorCall) *goja.Object {
		panic(b.vm.NewTypeError("Illegal constructor"))
	}).(*goja.Object)
	proto := ctor.Get("prototype").(*goja.Object)
	if parent != nil {
		proto.SetPrototype(parent)
	}
	b.ctors[name] = ctor
	return proto
}

// exposeConstructors publishes the DOM interfaces as globals so scripts can
// use instanceof and the node type constants
func (b *bridge) exposeConstructors() {
	node := b.ctors["Node"]
	for name, value := range map[string]html.NodeType{
		"ELEMENT_NODE":  html.ElementNode,
		"TEXT_NODE":     html.TextNode,
		"COMMENT_NODE":  html.CommentNode,
		"DOCUMENT_NODE": html.DocumentNode,
	} {
		node.Set(name, domNodeType(value))
	}

	for name, ctor := range b.ctors {
		b.vm.Set(name, ctor)
	}
	b.vm.Set("HTMLElement", b.ctors["Element"])
	b.vm.Set("Text", b.ctors["CharacterData"])
	b.vm.Set("HTMLDocument", b.ctors["Document"])
}

// wrap returns the JS object for n, creating it on first use
func (b *bridge) wrap(n *dom.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	if obj, ok := b.objects[n]; ok {
		return obj
	}

	obj := b.vm.NewObject()
	switch n.Type() {
	case html.ElementNode:
		obj.SetPrototype(b.elementProto)
	case html.TextNode, html.CommentNode:
		obj.SetPrototype(b.charDataProto)
	case html.DocumentNode:
		obj.SetPrototype(b.documentProto)
	default:
		obj.SetPrototype(b.nodeProto)
	}
	b.objects[n] = obj
	b.nodes[obj] = n
	return obj
}

func (b *bridge) wrapAll(nodes []*dom.Node) goja.Value {
	out := make([]interface{}, len(nodes))
	for i, n := range nodes {
		out[i] = b.wrap(n)
	}
	return b.vm.NewArray(out...)
}

// nodeOf returns the node behind a bridged object, or nil
func (b *bridge) nodeOf(obj *goja.Object) *dom.Node {
	return b.nodes[obj]
}

// this resolves the receiver of a DOM method or accessor
func (b *bridge) this(call goja.FunctionCall) *dom.Node {
	if obj, ok := call.This.(*goja.Object); ok {
		if n := b.nodes[obj]; n != nil {
			return n
		}
	}
	panic(b.vm.NewTypeError("Illegal invocation"))
}

// nodeArg converts a script argument to a node; null and undefined map to nil
func (b *bridge) nodeArg(v goja.Value, method string) *dom.Node {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if obj, ok := v.(*goja.Object); ok {
		if n := b.nodes[obj]; n != nil {
			return n
		}
	}
	panic(b.vm.NewTypeError("Failed to execute '%s': parameter is not of type 'Node'", method))
}

// throw rethrows a dom error as a DOMException-like error
func (b *bridge) throw(err error) {
	if err == nil {
		return
	}
	name := "Error"
	switch {
	case errors.Is(err, dom.ErrNotChild):
		name = "NotFoundError"
	case errors.Is(err, dom.ErrHierarchy):
		name = "HierarchyRequestError"
	case errors.Is(err, dom.ErrWrongDocument):
		name = "WrongDocumentError"
	case errors.Is(err, dom.ErrNotElement), errors.Is(err, dom.ErrNilNode):
		name = "InvalidNodeTypeError"
	}
	e := b.vm.NewGoError(err)
	e.Set("name", name)
	panic(e)
}

func (b *bridge) getter(proto *goja.Object, name string, get func(n *dom.Node) goja.Value) {
	b.accessor(proto, name, get, nil)
}

func (b *bridge) accessor(proto *goja.Object, name string, get func(n *dom.Node) goja.Value, set func(n *dom.Node, v goja.Value)) {
	getter := b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return get(b.this(call))
	})
	var setter goja.Value
	if set != nil {
		setter = b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(b.this(call), call.Argument(0))
			return goja.Undefined()
		})
	}
	proto.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

func (b *bridge) method(proto *goja.Object, name string, fn func(n *dom.Node, call goja.FunctionCall) goja.Value) {
	proto.Set(name, func(call goja.FunctionCall) goja.Value {
		return fn(b.this(call), call)
	})
}

func (b *bridge) str(s string) goja.Value {
	return b.vm.ToValue(s)
}

func (b *bridge) setupNode() {
	p := b.nodeProto

	b.getter(p, "nodeType", func(n *dom.Node) goja.Value {
		return b.vm.ToValue(domNodeType(n.Type()))
	})
	b.getter(p, "nodeName", func(n *dom.Node) goja.Value { return b.str(n.NodeName()) })
	b.getter(p, "parentNode", func(n *dom.Node) goja.Value { return b.wrap(n.Parent()) })
	b.getter(p, "parentElement", func(n *dom.Node) goja.Value {
		if parent := n.Parent(); parent != nil && parent.IsElement() {
			return b.wrap(parent)
		}
		return goja.Null()
	})
	b.getter(p, "firstChild", func(n *dom.Node) goja.Value { return b.wrap(n.FirstChild()) })
	b.getter(p, "lastChild", func(n *dom.Node) goja.Value { return b.wrap(n.LastChild()) })
	b.getter(p, "nextSibling", func(n *dom.Node) goja.Value { return b.wrap(n.NextSibling()) })
	b.getter(p, "previousSibling", func(n *dom.Node) goja.Value { return b.wrap(n.PreviousSibling()) })
	b.getter(p, "childNodes", func(n *dom.Node) goja.Value { return b.wrapAll(n.ChildNodes()) })
	b.getter(p, "children", func(n *dom.Node) goja.Value { return b.wrapAll(n.Children()) })
	b.getter(p, "firstElementChild", func(n *dom.Node) goja.Value { return b.wrap(n.FirstElementChild()) })
	b.getter(p, "nextElementSibling", func(n *dom.Node) goja.Value { return b.wrap(n.NextElementSibling()) })
	b.getter(p, "ownerDocument", func(n *dom.Node) goja.Value {
		if n.Type() == html.DocumentNode {
			return goja.Null()
		}
		return b.wrap(n.Document().Root())
	})
	b.getter(p, "isConnected", func(n *dom.Node) goja.Value {
		return b.vm.ToValue(n.Document().Root().Contains(n))
	})
	b.accessor(p, "textContent",
		func(n *dom.Node) goja.Value {
			if n.Type() == html.DocumentNode {
				return goja.Null()
			}
			return b.str(n.TextContent())
		},
		func(n *dom.Node, v goja.Value) {
			if goja.IsNull(v) || goja.IsUndefined(v) {
				n.SetTextContent("")
				return
			}
			n.SetTextContent(v.String())
		},
	)

	b.method(p, "appendChild", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		child := b.nodeArg(call.Argument(0), "appendChild")
		b.throw(n.AppendChild(child))
		return call.Argument(0)
	})
	b.method(p, "insertBefore", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		child := b.nodeArg(call.Argument(0), "insertBefore")
		ref := b.nodeArg(call.Argument(1), "insertBefore")
		b.throw(n.InsertBefore(child, ref))
		return call.Argument(0)
	})
	b.method(p, "removeChild", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		child := b.nodeArg(call.Argument(0), "removeChild")
		b.throw(n.RemoveChild(child))
		return call.Argument(0)
	})
	b.method(p, "replaceChild", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		child := b.nodeArg(call.Argument(0), "replaceChild")
		old := b.nodeArg(call.Argument(1), "replaceChild")
		if old == nil || old.Parent() != n {
			b.throw(dom.ErrNotChild)
		}
		if child != old {
			b.throw(n.InsertBefore(child, old))
			b.throw(n.RemoveChild(old))
		}
		return call.Argument(1)
	})
	b.method(p, "remove", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		n.Remove()
		return goja.Undefined()
	})
	b.method(p, "contains", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		other := b.nodeArg(call.Argument(0), "contains")
		return b.vm.ToValue(other != nil && n.Contains(other))
	})
	b.method(p, "hasChildNodes", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		return b.vm.ToValue(n.FirstChild() != nil)
	})
	b.method(p, "querySelectorAll", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		return b.wrapAll(n.QuerySelectorAll(call.Argument(0).String()))
	})
	b.method(p, "querySelector", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		return b.wrap(n.QuerySelector(call.Argument(0).String()))
	})

	// Events never fire in a replayed page
	noop := func(n *dom.Node, call goja.FunctionCall) goja.Value { return goja.Undefined() }
	b.method(p, "addEventListener", noop)
	b.method(p, "removeEventListener", noop)
}

// reflectedAttributes are element properties that read and write the
// attribute of the same name
var reflectedAttributes = map[string]string{
	"id":        "id",
	"className": "class",
	"src":       "src",
	"href":      "href",
	"srcset":    "srcset",
	"action":    "action",
	"data":      "data",
	"poster":    "poster",
	"rel":       "rel",
	"type":      "type",
	"name":      "name",
}

func (b *bridge) setupElement() {
	p := b.elementProto

	b.getter(p, "tagName", func(n *dom.Node) goja.Value { return b.str(n.NodeName()) })
	b.getter(p, "localName", func(n *dom.Node) goja.Value { return b.str(n.TagName()) })

	for prop, attr := range reflectedAttributes {
		attr := attr
		b.accessor(p, prop,
			func(n *dom.Node) goja.Value {
				if v, ok := n.URLProperty(attr); ok {
					return b.str(v)
				}
				v, _ := n.GetAttribute(attr)
				return b.str(v)
			},
			func(n *dom.Node, v goja.Value) {
				b.throw(n.SetAttribute(attr, v.String()))
			},
		)
	}

	b.method(p, "getAttribute", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		if v, ok := n.GetAttribute(call.Argument(0).String()); ok {
			return b.str(v)
		}
		return goja.Null()
	})
	b.method(p, "setAttribute", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		b.throw(n.SetAttribute(call.Argument(0).String(), call.Argument(1).String()))
		return goja.Undefined()
	})
	b.method(p, "removeAttribute", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		n.RemoveAttribute(call.Argument(0).String())
		return goja.Undefined()
	})
	b.method(p, "hasAttribute", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		return b.vm.ToValue(n.HasAttribute(call.Argument(0).String()))
	})
	b.method(p, "getAttributeNames", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		attrs := n.Attributes()
		names := make([]interface{}, len(attrs))
		for i, a := range attrs {
			names[i] = a.Key
		}
		return b.vm.NewArray(names...)
	})

	b.accessor(p, "innerHTML",
		func(n *dom.Node) goja.Value { return b.str(n.InnerHTML()) },
		func(n *dom.Node, v goja.Value) { b.throw(n.SetInnerHTML(v.String())) },
	)
	b.getter(p, "outerHTML", func(n *dom.Node) goja.Value { return b.str(n.OuterHTML()) })
	b.accessor(p, "style",
		func(n *dom.Node) goja.Value { return b.style(n) },
		func(n *dom.Node, v goja.Value) { b.throw(n.SetAttribute("style", v.String())) },
	)

	b.getter(p, "contentDocument", func(n *dom.Node) goja.Value {
		if doc := n.ContentDocument(); doc != nil {
			return b.wrap(doc.Root())
		}
		return goja.Null()
	})
	b.getter(p, "contentWindow", func(n *dom.Node) goja.Value {
		if doc := n.ContentDocument(); doc != nil {
			return b.window(doc)
		}
		return goja.Null()
	})
}

func (b *bridge) setupCharacterData() {
	p := b.charDataProto

	data := func(n *dom.Node) goja.Value { return b.str(n.TextContent()) }
	setData := func(n *dom.Node, v goja.Value) { n.SetTextContent(v.String()) }
	b.accessor(p, "data", data, setData)
	b.accessor(p, "nodeValue", data, setData)
	b.getter(p, "length", func(n *dom.Node) goja.Value {
		return b.vm.ToValue(len([]rune(n.TextContent())))
	})
}

func (b *bridge) setupDocument() {
	p := b.documentProto

	b.getter(p, "documentElement", func(n *dom.Node) goja.Value { return b.wrap(n.Document().DocumentElement()) })
	b.getter(p, "head", func(n *dom.Node) goja.Value { return b.wrap(n.Document().Head()) })
	b.getter(p, "body", func(n *dom.Node) goja.Value { return b.wrap(n.Document().Body()) })
	b.getter(p, "location", func(n *dom.Node) goja.Value { return b.location(n.Document()) })
	b.getter(p, "URL", func(n *dom.Node) goja.Value { return b.str(n.Document().Location().Href) })
	b.getter(p, "defaultView", func(n *dom.Node) goja.Value { return b.window(n.Document()) })

	b.method(p, "createElement", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		return b.wrap(n.Document().CreateElement(call.Argument(0).String()))
	})
	b.method(p, "createTextNode", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		return b.wrap(n.Document().CreateTextNode(call.Argument(0).String()))
	})
	b.method(p, "getElementById", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		return b.wrap(n.Document().GetElementByID(call.Argument(0).String()))
	})
	b.method(p, "getElementsByTagName", func(n *dom.Node, call goja.FunctionCall) goja.Value {
		return b.wrapAll(n.QuerySelectorAll(call.Argument(0).String()))
	})
}

// location returns the read-only location object of doc
func (b *bridge) location(doc *dom.Document) goja.Value {
	if obj, ok := b.locations[doc]; ok {
		return obj
	}
	loc := doc.Location()
	obj := b.vm.NewObject()
	for name, value := range map[string]string{
		"href":     loc.Href,
		"protocol": loc.Protocol,
		"host":     loc.Host,
		"hostname": loc.Hostname,
		"port":     loc.Port,
		"pathname": loc.Pathname,
		"search":   loc.Search,
		"hash":     loc.Hash,
		"origin":   loc.Origin,
	} {
		obj.DefineDataProperty(name, b.str(value), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}
	obj.Set("toString", func(goja.FunctionCall) goja.Value { return b.str(loc.Href) })
	b.locations[doc] = obj
	return obj
}

// window returns the window of doc: the global object for the bound page,
// a minimal stand-in for frames
func (b *bridge) window(doc *dom.Document) goja.Value {
	if doc == b.rt.doc {
		return b.vm.GlobalObject()
	}
	if obj, ok := b.windows[doc]; ok {
		return obj
	}
	obj := b.vm.NewObject()
	obj.Set("document", b.wrap(doc.Root()))
	obj.Set("location", b.location(doc))
	b.windows[doc] = obj
	return obj
}

// domNodeType maps parse node types to DOM nodeType values
func domNodeType(t html.NodeType) int {
	switch t {
	case html.ElementNode:
		return 1
	case html.TextNode:
		return 3
	case html.CommentNode:
		return 8
	case html.DocumentNode:
		return 9
	case html.DoctypeNode:
		return 10
	}
	return 0
}
