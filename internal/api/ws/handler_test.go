package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/replaypatch/internal/dom"
	"github.com/GriffinCanCode/replaypatch/internal/providers/browser"
)

func dial(t *testing.T, allowOrigin func(string) bool, header map[string]string) (*websocket.Conn, *browser.Provider) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := browser.DefaultConfig()
	cfg.PoolSize = 1
	provider, err := browser.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { provider.Close() })

	router := gin.New()
	router.GET("/v1/session", NewHandler(provider, zap.NewNop(), allowOrigin).HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	h := map[string][]string{}
	for k, v := range header {
		h[k] = []string{v}
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/session", h)
	if err != nil {
		return nil, provider
	}
	t.Cleanup(func() { conn.Close() })

	require.Equal(t, TypeSystem, read(t, conn)["type"])
	return conn, provider
}

func send(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	data, err := sonic.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func read(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, sonic.Unmarshal(data, &out))
	return out
}

func TestSession(t *testing.T) {
	conn, provider := dial(t, nil, nil)

	send(t, conn, Message{Type: "ping"})
	assert.Equal(t, TypePong, read(t, conn)["type"])

	send(t, conn, Message{Type: "exec", Script: "1"})
	msg := read(t, conn)
	assert.Equal(t, TypeError, msg["type"])
	assert.Equal(t, "no page loaded", msg["message"])

	send(t, conn, Message{
		Type:          "load",
		HTML:          `<html><head><title>Live</title></head><body></body></html>`,
		PageURL:       "http://127.0.0.1:8080/page.html",
		ArchiveOrigin: "https://www.example.com",
		ServerBase:    "https://example.com",
	})
	msg = read(t, conn)
	require.Equal(t, TypeLoaded, msg["type"], msg)
	assert.Equal(t, "Live", msg["title"])
	assert.Equal(t, 0, provider.Stats()["available"])

	send(t, conn, Message{Type: "exec", Script: `
		var img = document.createElement('img');
		img.setAttribute('src', '/late.png');
		document.body.appendChild(img);
		console.log('added');
		img`})
	msg = read(t, conn)
	require.Equal(t, TypeResult, msg["type"], msg)
	assert.Equal(t, `<img src="/https://www.example.com/late.png"/>`, msg["value"])
	assert.Nil(t, msg["error"])
	require.Len(t, msg["console"], 1)

	send(t, conn, Message{Type: "exec", Script: `nope()`})
	msg = read(t, conn)
	assert.Equal(t, TypeResult, msg["type"])
	assert.Contains(t, msg["error"], "nope")

	send(t, conn, Message{Type: "html"})
	msg = read(t, conn)
	assert.Equal(t, TypeHTML, msg["type"])
	assert.Contains(t, msg["html"], `/https://www.example.com/late.png`)

	send(t, conn, Message{Type: "snapshot"})
	msg = read(t, conn)
	assert.Equal(t, TypeSnapshot, msg["type"])
	assert.NotContains(t, msg["html"], "<title>")

	send(t, conn, Message{Type: "bogus"})
	assert.Equal(t, "unknown message type", read(t, conn)["message"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	assert.Equal(t, TypeError, read(t, conn)["type"])
}

func TestSessionLoadError(t *testing.T) {
	conn, _ := dial(t, nil, nil)

	send(t, conn, Message{Type: "load", HTML: "<p>x</p>", PageURL: "http://127.0.0.1/"})
	msg := read(t, conn)
	assert.Equal(t, TypeError, msg["type"])
	assert.Equal(t, browser.ErrNoArchive.Error(), msg["message"])
}

func TestSessionReleasesPage(t *testing.T) {
	conn, provider := dial(t, nil, nil)

	send(t, conn, Message{
		Type:          "load",
		HTML:          `<p>x</p>`,
		PageURL:       "http://127.0.0.1/",
		ArchiveOrigin: "https://www.example.com",
	})
	require.Equal(t, TypeLoaded, read(t, conn)["type"])
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return provider.Stats()["available"] == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestOriginCheck(t *testing.T) {
	allow := func(origin string) bool { return origin == "https://ok.example" }

	conn, _ := dial(t, allow, map[string]string{"Origin": "https://evil.example"})
	assert.Nil(t, conn)

	conn, _ = dial(t, allow, map[string]string{"Origin": "https://ok.example"})
	assert.NotNil(t, conn)
}

func TestJSONValue(t *testing.T) {
	doc, err := dom.ParseString(`<p id="a">hi</p>`, dom.Location{Href: "http://127.0.0.1/"})
	require.NoError(t, err)
	p := doc.GetElementByID("a")
	require.NotNil(t, p)

	assert.Equal(t, `<p id="a">hi</p>`, jsonValue(p))
	assert.Equal(t, "hi", jsonValue(p.FirstChild()))
	assert.Equal(t, int64(3), jsonValue(int64(3)))
	assert.Nil(t, jsonValue(nil))
	assert.Equal(t, []interface{}{"a", 1.0}, jsonValue([]interface{}{"a", 1.0}))
	assert.IsType(t, "", jsonValue(func() {}))
}
