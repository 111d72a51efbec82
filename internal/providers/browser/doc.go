/*
Package browser hosts replayed pages in-process.

# Overview

A hosted page is a dom.Document bound to a pooled sandbox runtime. Loading
a page runs these steps in order:

 1. Read the capture: raw bytes, a file (gzip and zstd are inflated) or a
    URL fetched through the HTTP client
 2. Reject binary content and decode the charset to UTF-8
 3. Parse the document and attach srcdoc frames as content documents
 4. Bind a runtime, run the optional bootstrap script and resolve the
    archive identity (request, then __webrecorder, then Config.Archive)
 5. Install the fetch and XMLHttpRequest interceptors
 6. Arm the document watcher and deliver the initial records
 7. Optionally run the inline classic scripts in document order

Requests made by page scripts leave through the same HTTP client, after
the interceptors rewrote their URL.

# Usage

	p, err := browser.New(browser.DefaultConfig(), browser.WithLogger(log))
	page, err := p.Load(ctx, browser.LoadRequest{
		Path:    "capture.html.gz",
		PageURL: "http://localhost:8080/capture.html",
		Archive: &rewrite.Archive{Origin: "https://www.example.com"},
	})
	defer page.Close()

	html, err := page.HTML()

Page.Exec runs more script in the page; its mutations are patched before it
returns. Page.Snapshot renders the body through a bluemonday UGC policy for
display outside the sandbox.

# Limits

External scripts, module scripts and scripts inserted by other scripts are
not run. Frames loaded by src are not fetched.
*/
package browser
