package sandbox

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/replaypatch/internal/intercept"
	"github.com/GriffinCanCode/replaypatch/internal/rewrite"
)

type recordingHost struct {
	mu       sync.Mutex
	requests []HostRequest
	err      error
}

func (h *recordingHost) Do(_ context.Context, req HostRequest) (*HostResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
	if h.err != nil {
		return nil, h.err
	}
	return &HostResponse{
		Status:     200,
		StatusText: "OK",
		Header:     map[string]string{"Content-Type": "application/json"},
		Body:       `{"url":"` + req.URL + `"}`,
	}, nil
}

func (h *recordingHost) urls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, r := range h.requests {
		out = append(out, r.URL)
	}
	return out
}

func TestFetch(t *testing.T) {
	host := &recordingHost{}
	metrics := monitoring.NewMetrics()
	rt, _ := newPage(t, `<body></body>`, WithHost(host), WithMetrics(metrics))

	run(t, rt, `
		var got = {};
		fetch('data.json?x=1', { method: 'post', headers: { 'X-Test': 'yes' }, body: 'payload' })
			.then(function (res) {
				got.status = res.status;
				got.ok = res.ok;
				got.type = res.headers.get('content-type');
				return res.json();
			})
			.then(function (data) { got.url = data.url; });
	`)

	assert.Equal(t, int64(200), run(t, rt, "got.status"))
	assert.Equal(t, true, run(t, rt, "got.ok"))
	assert.Equal(t, "application/json", run(t, rt, "got.type"))
	assert.Equal(t, "https://example.com/page/data.json?x=1", run(t, rt, "got.url"))

	require.Len(t, host.requests, 1)
	req := host.requests[0]
	assert.Equal(t, "fetch", req.Capability)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "yes", req.Header["x-test"])
	assert.Equal(t, "payload", req.Body)

	assert.Equal(t, int64(1), metrics.Snapshot().HostRequests)
}

func TestFetchRejectsOnHostError(t *testing.T) {
	host := &recordingHost{err: errors.New("connection refused")}
	rt, _ := newPage(t, `<body></body>`, WithHost(host))

	run(t, rt, `
		var failure = null;
		fetch('/x').catch(function (e) { failure = e.name + ': ' + e.message; });
	`)
	assert.Contains(t, run(t, rt, "failure"), "TypeError: Failed to fetch")
}

func TestFetchWithoutHost(t *testing.T) {
	rt, _ := newPage(t, `<body></body>`)

	run(t, rt, "var failed = false; fetch('/x').catch(function () { failed = true; });")
	assert.Equal(t, true, run(t, rt, "failed"))
}

func TestXMLHttpRequest(t *testing.T) {
	host := &recordingHost{}
	rt, _ := newPage(t, `<body></body>`, WithHost(host))

	run(t, rt, `
		var events = [];
		var xhr = new XMLHttpRequest();
		xhr.onload = function () { events.push('load:' + this.status); };
		xhr.addEventListener('loadend', function () { events.push('loadend'); });
		xhr.open('get', '//cdn.example.com/lib.js');
		xhr.setRequestHeader('Accept', 'text/plain');
		xhr.send();
	`)

	assert.Equal(t, "load:200,loadend", run(t, rt, "events.join(',')"))
	assert.Equal(t, int64(4), run(t, rt, "xhr.readyState"))
	assert.Equal(t, "application/json", run(t, rt, "xhr.getResponseHeader('Content-Type')"))

	require.Len(t, host.requests, 1)
	assert.Equal(t, "xhr", host.requests[0].Capability)
	assert.Equal(t, "GET", host.requests[0].Method)
	assert.Equal(t, "https://cdn.example.com/lib.js", host.requests[0].URL)
	assert.Equal(t, "text/plain", host.requests[0].Header["accept"])
}

func TestNetworkDisabled(t *testing.T) {
	config := DefaultConfig()
	config.EnableFetch = false

	rt, err := New(config)
	require.NoError(t, err)
	defer rt.Close()

	result, err := rt.Execute(context.Background(), "typeof fetch + ',' + typeof XMLHttpRequest")
	require.NoError(t, err)
	assert.Equal(t, "undefined,undefined", result.Value)
}

func TestInterceptInstall(t *testing.T) {
	host := &recordingHost{}
	rt, doc := newPage(t, `<body></body>`, WithHost(host))

	ctx, err := rewrite.NewContext(doc.Location().Href, rewrite.Archive{
		Origin:     "https://archive.example",
		Host:       "archive.example",
		Hostname:   "archive.example",
		ServerBase: "https://archive.example",
	})
	require.NoError(t, err)
	rw := rewrite.New(ctx)

	require.NoError(t, intercept.Install(rt.Registry(), rw))
	assert.ErrorIs(t, intercept.Install(rt.Registry(), rw), intercept.ErrAlreadyInstalled)

	run(t, rt, `
		fetch('/api/items');
		fetch(new Request('/untouched'));
		var xhr = new XMLHttpRequest();
		xhr.open('GET', 'https://example.com/feed?page=2', true);
		xhr.send();
	`)

	assert.Equal(t, []string{
		"https://example.com/api/items",
		"https://example.com/untouched",
		"https://example.com/feed?page=2",
	}, host.urls())

	// The marker is hidden from page enumeration
	assert.Equal(t, false, run(t, rt, "Object.keys(window).some(function (k) { return k.indexOf('replaypatch') >= 0; })"))
}

func TestInterceptRewritesToServerBase(t *testing.T) {
	host := &recordingHost{}
	rt, doc := newPage(t, `<body></body>`, WithHost(host))

	ctx, err := rewrite.NewContext(doc.Location().Href, rewrite.Archive{
		Origin:     "https://archive.example",
		Host:       "archive.example",
		Hostname:   "archive.example",
		ServerBase: "https://replay.local",
	})
	require.NoError(t, err)
	require.NoError(t, intercept.Install(rt.Registry(), rewrite.New(ctx)))

	run(t, rt, "fetch('/api/items')")
	assert.Equal(t, []string{"https://example.com/https://archive.example/api/items"}, host.urls())
}

func TestInterceptErrorsReachScript(t *testing.T) {
	rt, doc := newPage(t, `<body></body>`)

	ctx, err := rewrite.NewContext(doc.Location().Href, rewrite.Archive{Origin: "https://archive.example", ServerBase: "https://archive.example"})
	require.NoError(t, err)
	require.NoError(t, intercept.Install(rt.Registry(), rewrite.New(ctx)))

	run(t, rt, `
		var caught = null;
		try {
			XMLHttpRequest.prototype.open.call(null, 'GET', '/x');
		} catch (e) {
			caught = e instanceof TypeError;
		}
	`)
	assert.Equal(t, true, run(t, rt, "caught"))
}

func TestRegistryWithoutNetwork(t *testing.T) {
	config := DefaultConfig()
	config.EnableFetch = false

	rt, err := New(config)
	require.NoError(t, err)
	defer rt.Close()

	err = intercept.Install(rt.Registry(), rewrite.New(rewrite.Context{}))
	assert.ErrorIs(t, err, intercept.ErrUnknownCapability)
}

func TestArchiveGlobals(t *testing.T) {
	rt, err := New(DefaultConfig())
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.Archive()
	assert.ErrorIs(t, err, ErrNoArchive)

	want := rewrite.Archive{
		Origin:     "https://archive.example:8443",
		Host:       "archive.example:8443",
		Hostname:   "archive.example",
		ServerBase: "https://replay.local/",
	}
	require.NoError(t, rt.SetArchive(want))

	got, err := rt.Archive()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	result, err := rt.Execute(context.Background(), "__webrecorder.server_base")
	require.NoError(t, err)
	assert.Equal(t, "https://replay.local/", result.Value)
}

func TestArchiveFlattenedGlobals(t *testing.T) {
	rt, err := New(DefaultConfig())
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.Execute(context.Background(), `
		var __webrecorder_origin = 'http://old.example.org';
		var __webrecorder_server_base = 'https://replay.local/';
	`)
	require.NoError(t, err)

	got, err := rt.Archive()
	require.NoError(t, err)
	assert.Equal(t, rewrite.Archive{
		Origin:     "http://old.example.org",
		Host:       "old.example.org",
		Hostname:   "old.example.org",
		ServerBase: "https://replay.local/",
	}, got)
}
