package sandbox

import (
	"strings"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/replaypatch/internal/dom"
)

// objectMembers resolve through Object.prototype instead of the declarations
var objectMembers = map[string]bool{
	"constructor":          true,
	"toString":             true,
	"toLocaleString":       true,
	"valueOf":              true,
	"hasOwnProperty":       true,
	"isPrototypeOf":        true,
	"propertyIsEnumerable": true,
	"__proto__":            true,
}

// styleObject is the CSSStyleDeclaration of one element. Properties read
// and write the style attribute through dom.Style.
type styleObject struct {
	b     *bridge
	style dom.Style
	fns   map[string]goja.Value
}

func (b *bridge) style(n *dom.Node) goja.Value {
	if obj, ok := b.styles[n]; ok {
		return obj
	}
	s := &styleObject{b: b, style: n.Style()}
	s.fns = map[string]goja.Value{
		"getPropertyValue": b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			return b.str(s.style.GetPropertyValue(call.Argument(0).String()))
		}),
		"setProperty": b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			value := ""
			if v := call.Argument(1); !goja.IsNull(v) && !goja.IsUndefined(v) {
				value = v.String()
			}
			b.throw(s.style.SetProperty(call.Argument(0).String(), value))
			return goja.Undefined()
		}),
		"removeProperty": b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			old := s.style.GetPropertyValue(name)
			b.throw(s.style.RemoveProperty(name))
			return b.str(old)
		}),
	}
	obj := b.vm.NewDynamicObject(s)
	b.styles[n] = obj
	return obj
}

func (s *styleObject) Get(key string) goja.Value {
	if fn, ok := s.fns[key]; ok {
		return fn
	}
	if key == "cssText" {
		return s.b.str(s.style.CSSText())
	}
	if objectMembers[key] || !isPropertyName(key) {
		return nil
	}
	return s.b.str(s.style.GetPropertyValue(key))
}

func (s *styleObject) Set(key string, val goja.Value) bool {
	if _, ok := s.fns[key]; ok || objectMembers[key] || !isPropertyName(key) {
		return false
	}
	value := ""
	if !goja.IsNull(val) && !goja.IsUndefined(val) {
		value = val.String()
	}
	if key == "cssText" {
		s.b.throw(s.style.SetCSSText(value))
		return true
	}
	s.b.throw(s.style.SetProperty(key, value))
	return true
}

func (s *styleObject) Has(key string) bool {
	return s.Get(key) != nil
}

func (s *styleObject) Delete(key string) bool {
	return true
}

// Keys lists the declared properties in CSSOM camelCase form
func (s *styleObject) Keys() []string {
	var keys []string
	for _, name := range s.style.PropertyNames() {
		keys = append(keys, camelCase(name))
	}
	return keys
}

func isPropertyName(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '-') {
			return false
		}
	}
	return true
}

// camelCase maps a CSS property name to its CSSOM form
func camelCase(name string) string {
	if name == "float" {
		return "cssFloat"
	}
	parts := strings.Split(name, "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
