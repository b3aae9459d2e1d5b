package panel_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"archsync/internal/panel"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	server   *panel.Server
	received chan panel.Inbound
}

func (h *recordingHandler) HandleMessage(ctx context.Context, msg panel.Inbound) {
	h.received <- msg
}

func (h *recordingHandler) Connected(ctx context.Context, client string) {
	h.server.SendTo(client, panel.NewOutbound(panel.InitData, `{"hello":true}`))
}

func newTestPanel(t *testing.T) (*panel.Server, *recordingHandler, *httptest.Server) {
	t.Helper()
	h := &recordingHandler{received: make(chan panel.Inbound, 8)}
	s := panel.NewServer(h)
	h.server = s
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, h, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) panel.Outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg panel.Outbound
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestConnectSendsInitialData(t *testing.T) {
	_, _, ts := newTestPanel(t)
	conn := dial(t, ts)

	msg := read(t, conn)
	assert.Equal(t, panel.InitData, msg.Command)
	assert.JSONEq(t, `{"hello":true}`, string(msg.Data))
}

func TestInboundReachesHandler(t *testing.T) {
	_, h, ts := newTestPanel(t)
	conn := dial(t, ts)
	read(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]any{
		"command":   panel.RemovePorts,
		"detail":    map[string]any{"ports": []any{}},
		"save":      true,
		"fromPopup": true,
	}))

	select {
	case msg := <-h.received:
		assert.Equal(t, panel.RemovePorts, msg.Command)
		assert.True(t, msg.Save)
		assert.True(t, msg.FromPopup)
		assert.JSONEq(t, `{"ports":[]}`, string(msg.Detail))
	case <-time.After(2 * time.Second):
		t.Fatal("message never reached the handler")
	}
}

func TestForeignOriginRefused(t *testing.T) {
	s, _, ts := newTestPanel(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	if conn != nil {
		conn.Close()
	}
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, s.Clients())

	conn, _, err = websocket.DefaultDialer.Dial(url, http.Header{"Origin": {ts.URL}})
	require.NoError(t, err)
	conn.Close()
}

func TestPostBroadcasts(t *testing.T) {
	s, _, ts := newTestPanel(t)
	a := dial(t, ts)
	b := dial(t, ts)
	read(t, a)
	read(t, b)
	assert.Equal(t, 2, s.Clients())

	require.NoError(t, s.Post(panel.Outbound{Command: panel.Undo}))
	assert.Equal(t, panel.Undo, read(t, a).Command)
	assert.Equal(t, panel.Undo, read(t, b).Command)
}

func TestStaticAndMetrics(t *testing.T) {
	_, _, ts := newTestPanel(t)

	for path, want := range map[string]string{
		"/static/": "WebSocket",
		"/metrics": "archsync_panel_clients",
	} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err, path)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, string(body), want, path)
	}
}

func TestStartReturnsURL(t *testing.T) {
	s := panel.NewServer(nil)
	defer s.Close()

	url, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://127.0.0.1:"))
	assert.True(t, strings.HasSuffix(url, "/static/"))

	again, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)
	assert.Equal(t, url, again)
	assert.Equal(t, url, s.URL())
}

func TestNewOutbound(t *testing.T) {
	out := panel.NewOutbound(panel.InitData, `{"error":"parse"}`)
	assert.JSONEq(t, `{"error":"parse"}`, string(out.Data))

	out = panel.NewOutbound(panel.InitData, "plain text")
	var s string
	require.NoError(t, json.Unmarshal(out.Data, &s))
	assert.Equal(t, "plain text", s)

	out = panel.NewOutbound(panel.Undo, "")
	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"undo"}`, string(data))
}
