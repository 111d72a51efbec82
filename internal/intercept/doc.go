// Package intercept wraps the request primitives of a hosted page so that
// the URL each request targets is rewritten before the original primitive
// runs.
package intercept
