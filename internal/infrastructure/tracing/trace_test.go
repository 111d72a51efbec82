package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStartSpan(t *testing.T) {
	tracer := New("test", zap.NewNop())
	defer tracer.Close()

	root, ctx := tracer.StartSpan(context.Background(), "root")
	assert.NotEmpty(t, root.TraceID)
	assert.Empty(t, root.ParentID)
	assert.Equal(t, root.TraceID, GetTraceID(ctx))
	assert.Equal(t, root.SpanID, GetSpanID(ctx))

	child, _ := tracer.StartSpan(ctx, "child")
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.NotEqual(t, root.SpanID, child.SpanID)
}

func TestInjectExtract(t *testing.T) {
	headers := map[string]string{}
	InjectTraceContext(context.Background(), headers)
	assert.Empty(t, headers)

	InjectTraceContext(WithTrace(context.Background(), "t1", "s1"), headers)
	traceID, spanID := ExtractTraceContext(headers)
	assert.Equal(t, TraceID("t1"), traceID)
	assert.Equal(t, SpanID("s1"), spanID)
	assert.Equal(t, "[trace:t1 span:s1]", FormatTrace(traceID, spanID))
}

func TestSpanError(t *testing.T) {
	s := &Span{Tags: map[string]string{}}
	s.SetStatus(404)
	s.SetError(errors.New("boom"))
	assert.Equal(t, 500, s.StatusCode)

	s.SetStatus(502)
	s.SetError(errors.New("upstream"))
	assert.Equal(t, 502, s.StatusCode)
}

func TestCloseDrainsSpans(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := New("test", zap.New(core))

	span, _ := tracer.StartSpan(context.Background(), "op")
	span.Finish()
	tracer.Submit(span)
	tracer.Close()
	tracer.Close()

	require.Equal(t, 1, logs.FilterMessage("span completed").Len())
	tracer.Submit(span)
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := New("test", zap.New(core))

	var seen TraceID
	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/items/:id", func(c *gin.Context) {
		seen = GetTraceID(c.Request.Context())
		c.Status(http.StatusTeapot)
	})

	req := httptest.NewRequest("GET", "/items/7", nil)
	req.Header.Set(TraceHeader, "caller-trace")
	req.Header.Set(SpanHeader, "caller-span")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	tracer.Close()

	assert.Equal(t, TraceID("caller-trace"), seen)
	assert.Equal(t, "caller-trace", w.Header().Get(TraceHeader))
	assert.NotEmpty(t, w.Header().Get(SpanHeader))
	assert.NotEqual(t, "caller-span", w.Header().Get(SpanHeader))

	entries := logs.FilterMessage("span completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET /items/:id", fields["operation"])
	assert.Equal(t, "caller-span", fields["parent_id"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
}
