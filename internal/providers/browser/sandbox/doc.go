/*
Package sandbox hosts page scripts in a goja runtime.

# Overview

A Runtime is one isolated page environment. Bind attaches a dom.Document
and exposes it the way a browser would:

  - window, self and document globals with a location object
  - Node, Element, Document and MutationObserver constructors
  - fetch, Headers, Request, Response and XMLHttpRequest backed by a Host
  - console capture, setTimeout and requestAnimationFrame

Node wrappers are canonical: the same dom.Node always maps to the same
script object, so identity checks and observer records line up.

# Scheduling

Execute runs a script, then delivers pending mutation records, then runs
queued timers in due order, flushing after each one. This mirrors the
microtask checkpoint a browser runs between tasks. Delivery is capped by
dom.MaxFlushRounds; hitting the cap is logged and counted.

# Network

fetch and XMLHttpRequest resolve their URL against the page location and
hand the request to the configured Host. Registry exposes both primitives
to intercept.Install, which wraps them before any page script runs.

# Archive configuration

The embedding environment describes the archive with a __webrecorder
global (origin, host, hostname, server_base) or the flattened
__webrecorder_* globals. SetArchive and Archive write and read it.

# Usage Example

	rt, _ := sandbox.New(sandbox.DefaultConfig(), sandbox.WithHost(host))
	defer rt.Close()

	if err := rt.Bind(doc); err != nil {
		return err
	}
	result, err := rt.Execute(ctx, script)

# Limits

Execution is interrupted on Config.Timeout or context cancellation. The
call stack is bounded by Config.MaxCallStackSize, and at most
Config.MaxTimers timer callbacks run per Execute.
*/
package sandbox
