package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialLive(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readReply(t *testing.T, ws *websocket.Conn) LiveReply {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply LiveReply
	require.NoError(t, ws.ReadJSON(&reply))
	return reply
}

func TestLiveSession(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ws := dialLive(t, ts, "/api/workflows/greeting/live")

	boot := readReply(t, ws)
	assert.Equal(t, MsgRendered, boot.Type)
	require.Len(t, boot.Updates, 2)
	assert.Equal(t, "hello-1", boot.Updates[0].TemplateID)
	assert.Equal(t, "Hello friend from us on 2025-01-15", boot.Updates[0].Text)
	assert.Equal(t, "Bye {name}", boot.Updates[1].Text)

	require.NoError(t, ws.WriteJSON(LiveMessage{Type: MsgInput, Step: "hello", Key: "Name", Value: "Ada"}))
	upd := readReply(t, ws)
	assert.Equal(t, MsgRendered, upd.Type)
	require.Len(t, upd.Updates, 1, "only the input's step re-renders")
	assert.Equal(t, "Hello Ada from us on 2025-01-15", upd.Updates[0].Text)

	// The live store is shared by the page, so a rescan picks it up in
	// other steps.
	require.NoError(t, ws.WriteJSON(LiveMessage{Type: MsgRescan}))
	all := readReply(t, ws)
	require.Len(t, all.Updates, 2)
	assert.Equal(t, "Bye Ada", all.Updates[1].Text)

	require.NoError(t, ws.WriteJSON(LiveMessage{Type: MsgPing}))
	assert.Equal(t, MsgPong, readReply(t, ws).Type)

	require.NoError(t, ws.WriteJSON(LiveMessage{Type: "subscribe"}))
	errReply := readReply(t, ws)
	assert.Equal(t, MsgError, errReply.Type)
	assert.Contains(t, errReply.Error, "subscribe")

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, MsgError, readReply(t, ws).Type)

	// Input for an unknown step updates nothing visible.
	require.NoError(t, ws.WriteJSON(LiveMessage{Type: MsgInput, Step: "nowhere", Key: "name", Value: "x"}))
	assert.Empty(t, readReply(t, ws).Updates)
}

func TestLiveSession_ConnectionTracking(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ws := dialLive(t, ts, "/api/workflows/greeting/live")
	readReply(t, ws)
	assert.Equal(t, 1, srv.live.ConnectionCount())

	srv.live.CloseAll()
	assert.Equal(t, 0, srv.live.ConnectionCount())

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err, "server should close the session")
}

func TestLiveSession_UnknownWorkflow(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/workflows/missing/live"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLiveSession_WriteFailureClosesSession(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	h := NewLiveHandler(srv, nil)

	accepted := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	defer ts.Close()
	dialLive(t, ts, "/")

	var conn *websocket.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	c := &liveConnection{
		conn: conn,
		send: make(chan []byte, 1),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.connections[conn] = c
	h.mu.Unlock()

	// Every write from here on fails, as with a client that stopped reading
	// past the write deadline.
	require.NoError(t, conn.UnderlyingConn().Close())
	go h.writePump(c)

	replied := make(chan struct{})
	go func() {
		defer close(replied)
		for range 4 {
			h.reply(c, LiveReply{Type: MsgPong})
		}
	}()

	select {
	case <-replied:
	case <-time.After(2 * time.Second):
		t.Fatal("reply blocked after the writer stopped")
	}
	assert.Eventually(t, func() bool { return h.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
