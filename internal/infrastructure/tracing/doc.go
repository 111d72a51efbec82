/*
Package tracing provides lightweight request tracing for the patch service.

# Overview

Every request handled by the service gets a span. The trace id is taken from
the caller's X-Trace-ID header when present, so a replay server that patches
pages through the service can follow one page load across both logs. Outgoing
page fetches carry the same headers.

# Features

- Trace context propagation via HTTP headers
- Span creation with parent-child relationships
- uuid trace and span ids
- Gin middleware for automatic instrumentation
- Buffered span collection logged through zap

# Usage

	tracer := tracing.New("patchd", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "load page")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

# Trace Format

- X-Trace-ID: Unique identifier for entire request flow
- X-Span-ID: Identifier for current operation
*/
package tracing
