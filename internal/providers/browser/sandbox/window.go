package sandbox

import (
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/replaypatch/internal/dom"
	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/replaypatch/internal/rewrite"
)

//go:embed prelude.js
var prelude string

const configGlobal = "__webrecorder"

var (
	ErrAlreadyBound = errors.New("runtime already hosts a document")
	ErrNotBound     = errors.New("runtime hosts no document")
	ErrNoArchive    = errors.New("no __webrecorder configuration in page")
	ErrNoHost       = errors.New("no network host configured")
)

// Bind makes doc the page of this runtime: window.location, document, the
// MutationObserver constructor and, when enabled, fetch and XMLHttpRequest.
func (r *Runtime) Bind(doc *dom.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return ErrClosed
	}
	if r.doc != nil {
		return ErrAlreadyBound
	}

	r.doc = doc
	r.bridge = newBridge(r)

	r.vm.Set("location", r.bridge.location(doc))
	r.vm.Set("document", r.bridge.wrap(doc.Root()))
	r.bridge.exposeConstructors()

	if r.config.EnableFetch {
		if err := r.installNetwork(); err != nil {
			r.doc, r.bridge = nil, nil
			return err
		}
	}
	return nil
}

// Document returns the bound document
func (r *Runtime) Document() *dom.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc
}

func (r *Runtime) installNetwork() error {
	v, err := r.vm.RunScript("prelude.js", prelude)
	if err != nil {
		return fmt.Errorf("load network prelude: %w", err)
	}
	setup, ok := goja.AssertFunction(v)
	if !ok {
		return errors.New("network prelude did not evaluate to a function")
	}

	host := r.vm.NewObject()
	host.Set("request", r.hostRequest)
	if _, err := setup(goja.Undefined(), r.vm.GlobalObject(), host); err != nil {
		return fmt.Errorf("run network prelude: %w", err)
	}
	return nil
}

// hostRequest backs fetch and XMLHttpRequest:
// request(capability, method, url, headers, body)
func (r *Runtime) hostRequest(call goja.FunctionCall) goja.Value {
	capability := call.Argument(0).String()
	req := HostRequest{
		Capability: capability,
		Method:     strings.ToUpper(call.Argument(1).String()),
		Header:     exportHeader(call.Argument(3)),
	}
	if body := call.Argument(4); !goja.IsUndefined(body) && !goja.IsNull(body) {
		req.Body = body.String()
	}

	if r.host == nil {
		panic(r.vm.NewGoError(ErrNoHost))
	}
	target, err := r.doc.Location().Resolve(call.Argument(2).String())
	if err != nil {
		panic(r.vm.NewGoError(err))
	}
	req.URL = target

	timer := monitoring.NewTimer(r.metrics, capability)
	res, err := r.host.Do(r.ctx, req)
	if err != nil {
		timer.Stop("error")
		panic(r.vm.NewGoError(err))
	}
	timer.Stop(strconv.Itoa(res.Status))

	headers := r.vm.NewObject()
	for name, value := range res.Header {
		headers.Set(strings.ToLower(name), value)
	}
	if res.URL == "" {
		res.URL = target
	}

	out := r.vm.NewObject()
	out.Set("status", res.Status)
	out.Set("statusText", res.StatusText)
	out.Set("url", res.URL)
	out.Set("headers", headers)
	out.Set("body", res.Body)
	return out
}

func exportHeader(v goja.Value) map[string]string {
	out := map[string]string{}
	obj, ok := v.(*goja.Object)
	if !ok {
		return out
	}
	for _, key := range obj.Keys() {
		out[strings.ToLower(key)] = obj.Get(key).String()
	}
	return out
}

// SetArchive defines the __webrecorder global the embedding environment
// normally injects
func (r *Runtime) SetArchive(a rewrite.Archive) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return ErrClosed
	}
	cfg := r.vm.NewObject()
	cfg.Set("origin", a.Origin)
	cfg.Set("host", a.Host)
	cfg.Set("hostname", a.Hostname)
	cfg.Set("server_base", a.ServerBase)
	return r.vm.Set(configGlobal, cfg)
}

// Archive reads the __webrecorder global, or the flattened
// __webrecorder_origin, _host, _hostname and _server_base globals. Missing
// host fields are derived from the origin.
func (r *Runtime) Archive() (rewrite.Archive, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return rewrite.Archive{}, ErrClosed
	}

	get := func(name string) string {
		if cfg, ok := r.vm.Get(configGlobal).(*goja.Object); ok {
			return stringValue(cfg.Get(name))
		}
		return stringValue(r.vm.Get(configGlobal + "_" + name))
	}

	a := rewrite.Archive{
		Origin:     get("origin"),
		Host:       get("host"),
		Hostname:   get("hostname"),
		ServerBase: get("server_base"),
	}
	if a.Origin == "" {
		return rewrite.Archive{}, ErrNoArchive
	}
	if a.Host == "" || a.Hostname == "" {
		derived, err := rewrite.ArchiveFromOrigin(a.Origin, a.ServerBase)
		if err != nil {
			return rewrite.Archive{}, err
		}
		a.Host = firstNonEmpty(a.Host, derived.Host)
		a.Hostname = firstNonEmpty(a.Hostname, derived.Hostname)
	}
	return a, nil
}

func stringValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
