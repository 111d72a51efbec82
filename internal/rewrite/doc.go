/*
Package rewrite maps URLs found in a replayed page onto the replay server.

A page captured from an archive origin is served by the replay server from a
different origin. Every URL the page references has to be expressed in the
replay server's path space so the browser asks the replay server for it:

	http://127.0.0.1:8080/img.png  ->  /https://example.com/img.png
	/img.png                        ->  /https://example.com/img.png
	//cdn.example.com/a.js          ->  /http://cdn.example.com/a.js
	/#top                           ->  #top
	mailto:a@b.com                  ->  mailto:a@b.com

Absolute results that fall under the server base path are re-relativized
instead of prefixed. Results of the form "/http(s):..." are recognized and
returned unchanged, which makes rewriting idempotent: a watcher that observes
its own writes reaches a fixed point after one round.

The functions are total. Anything that does not look like a URL they know how
to handle is returned as is.

# Diagnostics

WithDiagnostics and WithRecorder decorate both functions to report changed
input/output pairs without altering results:

	rw := rewrite.New(ctx, rewrite.WithDiagnostics(logger))
*/
package rewrite
