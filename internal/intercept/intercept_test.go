package intercept

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/replaypatch/internal/rewrite"
)

func newRewriter(t *testing.T) *rewrite.Rewriter {
	t.Helper()
	ctx, err := rewrite.NewContext("http://127.0.0.1:8080/", rewrite.Archive{
		Origin:     "https://www.example.com",
		Host:       "www.example.com",
		Hostname:   "www.example.com",
		ServerBase: "https://example.com",
	})
	require.NoError(t, err)
	return rewrite.New(ctx)
}

type capture struct {
	calls []Invocation
	ret   any
}

func (c *capture) fn(inv Invocation) (any, error) {
	c.calls = append(c.calls, inv)
	return c.ret, nil
}

func TestInstallRewritesFetchURL(t *testing.T) {
	fetch := &capture{ret: "response"}
	xhr := &capture{}
	reg := NewMapRegistry(map[Capability]Func{Fetch: fetch.fn, XHROpen: xhr.fn})

	require.NoError(t, Install(reg, newRewriter(t)))

	reqInit := map[string]any{"method": "POST", "body": "x"}
	res, err := reg.Call(Fetch, Invocation{This: "window", Args: []any{"http://127.0.0.1:8080/api", reqInit}})
	require.NoError(t, err)
	assert.Equal(t, "response", res)

	require.Len(t, fetch.calls, 1)
	got := fetch.calls[0]
	assert.Equal(t, "/https://www.example.com/api", got.Args[0])
	assert.Equal(t, reqInit, got.Args[1])
	assert.Equal(t, "window", got.This)
	assert.Len(t, got.Args, 2)
}

func TestInstallRewritesXHROpenURL(t *testing.T) {
	xhr := &capture{}
	reg := NewMapRegistry(map[Capability]Func{Fetch: (&capture{}).fn, XHROpen: xhr.fn})
	require.NoError(t, Install(reg, newRewriter(t)))

	_, err := reg.Call(XHROpen, Invocation{Args: []any{"GET", "/data.json", true}})
	require.NoError(t, err)

	require.Len(t, xhr.calls, 1)
	assert.Equal(t, []any{"GET", "/https://www.example.com/data.json", true}, xhr.calls[0].Args)
}

func TestInstallPassesThroughOddArguments(t *testing.T) {
	fetch := &capture{}
	xhr := &capture{}
	reg := NewMapRegistry(map[Capability]Func{Fetch: fetch.fn, XHROpen: xhr.fn})
	require.NoError(t, Install(reg, newRewriter(t)))

	type request struct{ URL string }
	req := &request{URL: "/a"}

	_, _ = reg.Call(Fetch, Invocation{Args: []any{req}})
	_, _ = reg.Call(Fetch, Invocation{})
	_, _ = reg.Call(XHROpen, Invocation{Args: []any{"GET"}})
	_, _ = reg.Call(XHROpen, Invocation{Args: []any{"GET", nil}})

	require.Len(t, fetch.calls, 2)
	assert.Same(t, req, fetch.calls[0].Args[0])
	assert.Empty(t, fetch.calls[1].Args)
	assert.Equal(t, []any{"GET"}, xhr.calls[0].Args)
	assert.Equal(t, []any{"GET", nil}, xhr.calls[1].Args)
}

func TestInstallDoesNotMutateCallerArgs(t *testing.T) {
	fetch := &capture{}
	reg := NewMapRegistry(map[Capability]Func{Fetch: fetch.fn, XHROpen: (&capture{}).fn})
	require.NoError(t, Install(reg, newRewriter(t)))

	args := []any{"/a"}
	_, _ = reg.Call(Fetch, Invocation{Args: args})
	assert.Equal(t, "/a", args[0])
}

func TestInstallOnce(t *testing.T) {
	fetch := &capture{}
	reg := NewMapRegistry(map[Capability]Func{Fetch: fetch.fn, XHROpen: (&capture{}).fn})
	rw := newRewriter(t)

	require.NoError(t, Install(reg, rw))
	assert.ErrorIs(t, Install(reg, rw), ErrAlreadyInstalled)

	// a single layer of wrapping
	_, _ = reg.Call(Fetch, Invocation{Args: []any{"/a"}})
	assert.Equal(t, "/https://www.example.com/a", fetch.calls[0].Args[0])
}

func TestInstallUnknownCapability(t *testing.T) {
	reg := NewMapRegistry(map[Capability]Func{Fetch: (&capture{}).fn})

	err := Install(reg, newRewriter(t))
	assert.ErrorIs(t, err, ErrUnknownCapability)
	// nothing claimed, a complete registry can still be installed later
	require.NoError(t, reg.Set(XHROpen, (&capture{}).fn))
	assert.NoError(t, Install(reg, newRewriter(t)))

	_, err = NewMapRegistry(nil).Call(Fetch, Invocation{})
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

func TestInstallPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	reg := NewMapRegistry(map[Capability]Func{
		Fetch:   func(Invocation) (any, error) { return nil, boom },
		XHROpen: (&capture{}).fn,
	})
	require.NoError(t, Install(reg, newRewriter(t)))

	_, err := reg.Call(Fetch, Invocation{Args: []any{"/x"}})
	assert.ErrorIs(t, err, boom)
}

func TestInstallMetrics(t *testing.T) {
	m := monitoring.NewMetrics()
	reg := NewMapRegistry(map[Capability]Func{Fetch: (&capture{}).fn, XHROpen: (&capture{}).fn})
	require.NoError(t, Install(reg, newRewriter(t), WithMetrics(m)))

	_, _ = reg.Call(Fetch, Invocation{Args: []any{"/a"}})
	_, _ = reg.Call(Fetch, Invocation{Args: []any{"/b"}})
	_, _ = reg.Call(XHROpen, Invocation{Args: []any{"GET", "/c"}})

	assert.Equal(t, float64(2), testutil.ToFloat64(m.InterceptedCalls.WithLabelValues("fetch")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InterceptedCalls.WithLabelValues("xhr.open")))
	assert.Equal(t, int64(3), m.Snapshot().InterceptedCalls)
}

func TestURLArgument(t *testing.T) {
	idx, ok := URLArgument(Fetch)
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	idx, ok = URLArgument(XHROpen)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = URLArgument("beacon")
	assert.False(t, ok)
}
