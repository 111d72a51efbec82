// Package client is the outbound HTTP layer used while replaying a page.
//
// Two paths share one pooled transport, one rate limiter and a group of
// per-host circuit breakers:
//   - FetchPage loads the page document through go-retryablehttp, retrying
//     connection errors and 5xx answers with exponential backoff
//   - Do serves fetch and XMLHttpRequest calls made by page scripts through
//     go-resty; every status is returned to the page as a response
//
// A host's breaker ("fetch/<host>") trips after ten consecutive failures or
// a 70% failure ratio over twenty requests, and fails fast with
// ErrUnavailable while open. Other hosts are unaffected.
//
// Example Usage:
//
//	c := client.NewClient(client.WithConfig(cfg), client.WithLogger(log))
//	page, err := c.FetchPage(ctx, "https://example.com/")
//	resp, err := c.Do(ctx, client.Request{Method: "GET", URL: page.URL + "api"})
package client
