package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/randalmurphal/promptfinder/internal/page"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// Live message types.
const (
	MsgInput    = "input"
	MsgRescan   = "rescan"
	MsgPing     = "ping"
	MsgRendered = "rendered"
	MsgPong     = "pong"
	MsgError    = "error"
)

// LiveMessage is a message from the client of a live session.
type LiveMessage struct {
	Type  string `json:"type"`
	Step  string `json:"step,omitempty"`
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

// LiveReply is a message sent to the client of a live session.
type LiveReply struct {
	Type    string        `json:"type"`
	Updates []page.Update `json:"updates,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// LiveHandler serves live render sessions: one page controller per
// connection, re-rendered as the client reports input.
type LiveHandler struct {
	upgrader    websocket.Upgrader
	server      *Server
	logger      *slog.Logger
	mu          sync.RWMutex
	connections map[*websocket.Conn]*liveConnection
}

// liveConnection tracks a single session. Only readPump touches the
// controller.
type liveConnection struct {
	conn       *websocket.Conn
	controller *page.Controller
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

// NewLiveHandler creates a live session handler.
func NewLiveHandler(server *Server, logger *slog.Logger) *LiveHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &LiveHandler{
		server:      server,
		logger:      logger,
		connections: make(map[*websocket.Conn]*liveConnection),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(server.allowedOrigins, r.Header.Get("Origin"))
		},
	}
	return h
}

// ServeHTTP resolves the workflow and profile layer, upgrades the
// connection and sends the boot render as the first message.
// Query: user=<uid>&logged_in=1.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wf, err := h.server.workflow(r.PathValue("wf"))
	if err != nil {
		HandleError(w, err)
		return
	}
	pv, _, err := h.server.profileFor(r.Context(), wf, r.URL.Query().Get("user"), queryFlag(r, "logged_in"))
	if err != nil {
		HandleError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &liveConnection{
		conn:       conn,
		controller: page.New(pv, h.server.pageOptions()...),
		send:       make(chan []byte, 16),
		done:       make(chan struct{}),
	}

	h.mu.Lock()
	h.connections[conn] = c
	h.mu.Unlock()

	h.logger.Debug("live session opened", "workflow", wf.ID)
	h.reply(c, LiveReply{Type: MsgRendered, Updates: c.controller.Boot(wf.Document())})

	go h.readPump(c)
	go h.writePump(c)
}

// ConnectionCount returns the number of open sessions.
func (h *LiveHandler) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// CloseAll closes every open session.
func (h *LiveHandler) CloseAll() {
	h.mu.RLock()
	conns := make([]*liveConnection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.closeConnection(c)
	}
}

// readPump reads client messages and applies them to the controller.
func (h *LiveHandler) readPump(c *liveConnection) {
	defer h.closeConnection(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		h.handleMessage(c, message)
	}
}

// writePump writes queued replies and keeps the connection alive. When a
// write fails the session is closed so a reply blocked on send returns.
func (h *LiveHandler) writePump(c *liveConnection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.closeConnection(c)
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage applies one client message.
func (h *LiveHandler) handleMessage(c *liveConnection, data []byte) {
	var msg LiveMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.reply(c, LiveReply{Type: MsgError, Error: "invalid message format"})
		return
	}

	switch msg.Type {
	case MsgInput:
		h.reply(c, LiveReply{Type: MsgRendered, Updates: c.controller.SetInput(msg.Step, msg.Key, msg.Value)})
	case MsgRescan:
		h.reply(c, LiveReply{Type: MsgRendered, Updates: c.controller.Rescan()})
	case MsgPing:
		h.reply(c, LiveReply{Type: MsgPong})
	default:
		h.reply(c, LiveReply{Type: MsgError, Error: "unknown message type: " + msg.Type})
	}
}

// reply queues a message for the client. It gives up once the session is
// closed.
func (h *LiveHandler) reply(c *liveConnection, msg LiveReply) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode live reply", "error", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	}
}

func (h *LiveHandler) closeConnection(c *liveConnection) {
	c.closeOnce.Do(func() {
		h.mu.Lock()
		delete(h.connections, c.conn)
		h.mu.Unlock()
		close(c.done)
		h.logger.Debug("live session closed")
	})
}
