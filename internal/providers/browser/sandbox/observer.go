package sandbox

import (
	"errors"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/replaypatch/internal/dom"
)

// observerConstructor defines the MutationObserver global and returns its
// prototype. Callbacks run when the runtime flushes, after each task.
func (b *bridge) observerConstructor() *goja.Object {
	ctor := b.vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(b.vm.NewTypeError("Failed to construct 'MutationObserver': parameter 1 is not of type 'MutationCallback'"))
		}
		this := call.This
		b.observers[this] = dom.NewObserver(func(records []dom.MutationRecord, _ *dom.Observer) {
			if _, err := fn(this, b.records(records), this); err != nil {
				b.rt.log("error", "Uncaught "+err.Error())
			}
		})
		return nil
	}).(*goja.Object)
	b.ctors["MutationObserver"] = ctor
	return ctor.Get("prototype").(*goja.Object)
}

func (b *bridge) setupObserver() {
	p := b.observerProto

	observer := func(call goja.FunctionCall) *dom.Observer {
		if obj, ok := call.This.(*goja.Object); ok {
			if o := b.observers[obj]; o != nil {
				return o
			}
		}
		panic(b.vm.NewTypeError("Illegal invocation"))
	}

	p.Set("observe", func(call goja.FunctionCall) goja.Value {
		o := observer(call)
		target := b.nodeArg(call.Argument(0), "observe")
		if target == nil {
			panic(b.vm.NewTypeError("Failed to execute 'observe' on 'MutationObserver': parameter 1 is not of type 'Node'"))
		}
		err := o.Observe(target, b.observeOptions(call.Argument(1)))
		if errors.Is(err, dom.ErrInvalidObserveOptions) {
			panic(b.vm.NewTypeError("Failed to execute 'observe' on 'MutationObserver': %s", err))
		}
		b.throw(err)
		return goja.Undefined()
	})
	p.Set("disconnect", func(call goja.FunctionCall) goja.Value {
		observer(call).Disconnect()
		return goja.Undefined()
	})
	p.Set("takeRecords", func(call goja.FunctionCall) goja.Value {
		return b.records(observer(call).TakeRecords())
	})
}

func (b *bridge) observeOptions(v goja.Value) dom.ObserveOptions {
	var opts dom.ObserveOptions
	obj, ok := v.(*goja.Object)
	if !ok {
		return opts
	}
	flag := func(name string) bool {
		f := obj.Get(name)
		return f != nil && f.ToBoolean()
	}
	opts.ChildList = flag("childList")
	opts.Attributes = flag("attributes")
	opts.AttributeOldValue = flag("attributeOldValue")
	opts.Subtree = flag("subtree")
	if filter := obj.Get("attributeFilter"); filter != nil && !goja.IsUndefined(filter) && !goja.IsNull(filter) {
		if err := b.vm.ExportTo(filter, &opts.AttributeFilter); err != nil {
			panic(b.vm.NewTypeError("attributeFilter must be a list of attribute names"))
		}
	}
	return opts
}

// records converts mutation records to MutationRecord-shaped objects
func (b *bridge) records(records []dom.MutationRecord) goja.Value {
	out := make([]interface{}, len(records))
	for i, rec := range records {
		obj := b.vm.NewObject()
		obj.Set("type", string(rec.Type))
		obj.Set("target", b.wrap(rec.Target))
		obj.Set("addedNodes", b.wrapAll(rec.AddedNodes))
		obj.Set("removedNodes", b.wrapAll(rec.RemovedNodes))
		obj.Set("previousSibling", b.wrap(rec.PreviousSibling))
		obj.Set("nextSibling", b.wrap(rec.NextSibling))
		if rec.Type == dom.Attributes {
			obj.Set("attributeName", rec.AttributeName)
		} else {
			obj.Set("attributeName", goja.Null())
		}
		if rec.OldValue != "" {
			obj.Set("oldValue", rec.OldValue)
		} else {
			obj.Set("oldValue", goja.Null())
		}
		out[i] = obj
	}
	return b.vm.NewArray(out...)
}
