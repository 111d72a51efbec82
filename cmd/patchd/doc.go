// Command patchd serves page patching over HTTP.
//
// A replay server posts a captured page, or names one to fetch, and gets
// back the markup with every URL pointed at the archive. Pages can also be
// hosted interactively over a WebSocket session.
//
// Usage:
//
//	patchd [-config patchd.yaml] [-port 8000] [-archive-origin https://www.example.com] [-dev]
//
// Endpoints:
//
//	POST /v1/patch        JSON page in, JSON patched page out
//	GET  /v1/patch?url=   Fetch and patch a live page
//	POST /v1/patch/html   Raw HTML in, raw HTML out
//	GET  /v1/session      WebSocket page session
//	GET  /health          Pool and breaker state
//	GET  /metrics         Prometheus text format
//
// Configuration comes from the environment (PORT, HOST, CORS_ORIGINS,
// RATE_LIMIT_*, REPLAY_*, FETCH_*, SANDBOX_*, LOG_*) overlaid by the
// optional config file; flags win.
package main
