// Package ws hosts interactive page sessions over WebSocket.
//
// A connection loads one page at a time and can run script in it; every
// mutation the script makes is patched before the reply is sent, so a
// client sees the markup a replayed page would end up with.
//
// Message Types (Client → Server):
//   - load: Host a page (html or url, page_url, archive_origin, server_base)
//   - exec: Run script in the page
//   - html: Serialize the page
//   - snapshot: Serialize the sanitized body
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - system: Connected
//   - loaded: Page hosted, with title and archive
//   - result: Script value, console output and record count
//   - html, snapshot: Markup
//   - error: Error occurred
//
// Example Usage:
//
//	handler := ws.NewHandler(provider, logger, nil)
//	router.GET("/v1/session", handler.HandleConnection)
package ws
