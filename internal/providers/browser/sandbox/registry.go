package sandbox

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/replaypatch/internal/intercept"
)

// Registry exposes the page's request primitives to intercept.Install:
// the global fetch and XMLHttpRequest.prototype.open. Primitive string
// arguments reach Go as string, everything else as goja.Value.
func (r *Runtime) Registry() intercept.Registry {
	return &scriptRegistry{r: r}
}

type scriptRegistry struct {
	r *Runtime
}

// holder returns the object carrying the primitive for c and its property
func (s *scriptRegistry) holder(c intercept.Capability) (*goja.Object, string, error) {
	vm := s.r.vm
	switch c {
	case intercept.Fetch:
		return vm.GlobalObject(), "fetch", nil
	case intercept.XHROpen:
		ctor, ok := vm.Get("XMLHttpRequest").(*goja.Object)
		if !ok {
			return nil, "", fmt.Errorf("%w: XMLHttpRequest is not defined", intercept.ErrUnknownCapability)
		}
		proto, ok := ctor.Get("prototype").(*goja.Object)
		if !ok {
			return nil, "", fmt.Errorf("%w: XMLHttpRequest has no prototype", intercept.ErrUnknownCapability)
		}
		return proto, "open", nil
	}
	return nil, "", fmt.Errorf("%w: %s", intercept.ErrUnknownCapability, c)
}

func (s *scriptRegistry) Get(c intercept.Capability) (intercept.Func, bool) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	if s.r.vm == nil {
		return nil, false
	}
	obj, name, err := s.holder(c)
	if err != nil {
		return nil, false
	}
	fn, ok := goja.AssertFunction(obj.Get(name))
	if !ok {
		return nil, false
	}

	vm := s.r.vm
	return func(inv intercept.Invocation) (any, error) {
		args := make([]goja.Value, len(inv.Args))
		for i, a := range inv.Args {
			args[i] = toScript(vm, a)
		}
		return fn(toScript(vm, inv.This), args...)
	}, true
}

func (s *scriptRegistry) Set(c intercept.Capability, fn intercept.Func) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	if s.r.vm == nil {
		return ErrClosed
	}
	obj, name, err := s.holder(c)
	if err != nil {
		return err
	}

	vm := s.r.vm
	native := func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = fromScript(a)
		}
		out, err := fn(intercept.Invocation{This: call.This, Args: args})
		if err != nil {
			var ex *goja.Exception
			if errors.As(err, &ex) {
				panic(ex)
			}
			panic(vm.NewGoError(err))
		}
		return toScript(vm, out)
	}
	return obj.Set(name, native)
}

// Claim defines a hidden global marker
func (s *scriptRegistry) Claim(key string) bool {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	if s.r.vm == nil {
		return false
	}
	global := s.r.vm.GlobalObject()
	if v := global.Get(key); v != nil && !goja.IsUndefined(v) {
		return false
	}
	err := global.DefineDataProperty(key, s.r.vm.ToValue(true), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	return err == nil
}

func fromScript(v goja.Value) any {
	if goja.IsString(v) {
		return v.String()
	}
	return v
}

func toScript(vm *goja.Runtime, v any) goja.Value {
	switch v := v.(type) {
	case nil:
		return goja.Undefined()
	case goja.Value:
		return v
	}
	return vm.ToValue(v)
}
