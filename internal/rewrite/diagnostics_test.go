package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithDiagnostics(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	rw := New(testContext(t), WithDiagnostics(zap.New(core)))

	assert.Equal(t, "/https://www.example.com/a.png", rw.URL("/a.png"))
	assert.Equal(t, "./b.png", rw.URL("./b.png"))

	entries := logs.FilterMessage("patched").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "url", fields["kind"])
	assert.Equal(t, "/a.png", fields["from"])
	assert.Equal(t, "/https://www.example.com/a.png", fields["to"])
}

func TestWithRecorder(t *testing.T) {
	var report Report
	plain := New(testContext(t))
	rw := New(testContext(t), WithRecorder(&report))

	in := []string{"/a.png", "mailto:x@y", "url('/bg.png')"}
	assert.Equal(t, plain.URL(in[0]), rw.URL(in[0]))
	assert.Equal(t, plain.URL(in[1]), rw.URL(in[1]))
	assert.Equal(t, plain.StyleURL(in[2]), rw.StyleURL(in[2]))

	// the style rewrite goes through the decorated URL function as well
	assert.Equal(t, []Entry{
		{Kind: KindURL, From: "/a.png", To: "/https://www.example.com/a.png"},
		{Kind: KindURL, From: "/bg.png", To: "/https://www.example.com/bg.png"},
		{Kind: KindStyle, From: "url('/bg.png')", To: "url('/https://www.example.com/bg.png')"},
	}, report.Entries())
}

func TestRecorderFunc(t *testing.T) {
	var kinds []Kind
	rw := New(testContext(t), WithRecorder(RecorderFunc(func(kind Kind, in, out string) {
		kinds = append(kinds, kind)
	})))

	rw.StyleURL("url(/x.png)")
	assert.Equal(t, []Kind{KindURL, KindStyle}, kinds)
}
