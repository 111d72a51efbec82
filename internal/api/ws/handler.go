package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/replaypatch/internal/dom"
	"github.com/GriffinCanCode/replaypatch/internal/providers/browser"
	"github.com/GriffinCanCode/replaypatch/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/replaypatch/internal/rewrite"
)

const (
	// MaxMessageSize bounds one client message
	MaxMessageSize = 32 << 20
	writeWait      = 10 * time.Second
	execTimeout    = time.Minute
)

// Handler manages page sessions over WebSocket. Each connection hosts at
// most one page; loading another closes the previous one.
type Handler struct {
	provider *browser.Provider
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. allowOrigin decides which
// browser origins may connect; nil allows all.
func NewHandler(provider *browser.Provider, logger *zap.Logger, allowOrigin func(origin string) bool) *Handler {
	h := &Handler{
		provider: provider,
		logger:   logger.Named("ws"),
	}
	h.upgrader.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowOrigin == nil || allowOrigin(origin)
	}
	return h
}

type session struct {
	h    *Handler
	conn *websocket.Conn
	page *browser.Page
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(MaxMessageSize)

	s := &session{h: h, conn: conn}
	defer s.close()

	reqCtx := c.Request.Context()

	s.send(map[string]interface{}{
		"type":    TypeSystem,
		"message": "connected to replaypatch",
	})

	for {
		var msg Message
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		if err := sonic.Unmarshal(data, &msg); err != nil {
			s.sendError("malformed message: " + err.Error())
			continue
		}

		switch msg.Type {
		case "load":
			s.load(reqCtx, msg)
		case "exec":
			s.exec(reqCtx, msg)
		case "html":
			s.html()
		case "snapshot":
			s.snapshot()
		case "ping":
			s.send(map[string]interface{}{"type": TypePong})
		default:
			s.sendError("unknown message type")
		}
	}
}

func (s *session) load(ctx context.Context, msg Message) {
	req := browser.LoadRequest{
		URL:        msg.URL,
		PageURL:    msg.PageURL,
		Bootstrap:  msg.Bootstrap,
		RunScripts: msg.RunScripts,
	}
	if msg.HTML != "" {
		req.HTML = []byte(msg.HTML)
	}
	if msg.ArchiveOrigin != "" {
		archive, err := rewrite.ArchiveFromOrigin(msg.ArchiveOrigin, msg.ServerBase)
		if err != nil {
			s.sendError(err.Error())
			return
		}
		req.Archive = &archive
	}

	s.closePage()
	page, err := s.h.provider.Load(ctx, req)
	if err != nil {
		s.sendError(err.Error())
		return
	}
	s.page = page

	s.send(map[string]interface{}{
		"type":      TypeLoaded,
		"page_url":  page.Document().Location().Href,
		"title":     page.Title(),
		"archive":   page.Archive(),
		"records":   page.Records(),
		"console":   console(page.Console()),
		"timestamp": time.Now().Unix(),
	})
}

func (s *session) exec(ctx context.Context, msg Message) {
	if s.page == nil {
		s.sendError("no page loaded")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	res, err := s.page.Exec(ctx, msg.Script)
	out := map[string]interface{}{
		"type":      TypeResult,
		"timestamp": time.Now().Unix(),
	}
	if res != nil {
		out["value"] = jsonValue(res.Value)
		out["console"] = console(res.Console)
		out["records"] = res.Records
		out["duration_ms"] = res.Duration.Milliseconds()
	}
	if err != nil {
		out["error"] = err.Error()
	}
	s.send(out)
}

func (s *session) html() {
	if s.page == nil {
		s.sendError("no page loaded")
		return
	}
	markup, err := s.page.HTML()
	if err != nil {
		s.sendError(err.Error())
		return
	}
	s.send(map[string]interface{}{"type": TypeHTML, "html": markup})
}

func (s *session) snapshot() {
	if s.page == nil {
		s.sendError("no page loaded")
		return
	}
	markup, err := s.page.Snapshot()
	if err != nil {
		s.sendError(err.Error())
		return
	}
	s.send(map[string]interface{}{"type": TypeSnapshot, "html": markup})
}

func (s *session) closePage() {
	if s.page == nil {
		return
	}
	if err := s.page.Close(); err != nil {
		s.h.logger.Warn("close page", zap.Error(err))
	}
	s.page = nil
}

func (s *session) close() {
	s.closePage()
	s.conn.Close()
}

func (s *session) send(data interface{}) error {
	payload, err := sonic.Marshal(data)
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *session) sendError(msg string) error {
	return s.send(map[string]interface{}{
		"type":      TypeError,
		"message":   msg,
		"timestamp": time.Now().Unix(),
	})
}

func console(logs []sandbox.LogEntry) []map[string]interface{} {
	out := make([]map[string]interface{}, len(logs))
	for i, l := range logs {
		out[i] = map[string]interface{}{"level": l.Level, "message": l.Message}
	}
	return out
}

// jsonValue makes a script result safe to encode: nodes become their
// markup and values JSON cannot hold are formatted.
func jsonValue(v interface{}) interface{} {
	switch v := v.(type) {
	case nil, string, bool, int64, float64:
		return v
	case *dom.Node:
		if v.IsElement() {
			return v.OuterHTML()
		}
		return v.TextContent()
	}
	if _, err := sonic.Marshal(v); err != nil {
		return fmt.Sprint(v)
	}
	return v
}
