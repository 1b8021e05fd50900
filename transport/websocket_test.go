package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mini-wsrpc/protocol"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// newPeer starts an httptest server whose handler gets the raw server-side conn.
func newPeer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketEcho(t *testing.T) {
	url := newPeer(t, func(conn *websocket.Conn) {
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	})

	ws, err := DialWebSocket(context.Background(), url)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.Send(context.Background(), protocol.Text([]byte(`{"id":1,"method":"echo","params":null}`))))
	f, err := ws.Recv()
	require.NoError(t, err)
	assert.Equal(t, protocol.FrameText, f.Type)
	assert.Equal(t, `{"id":1,"method":"echo","params":null}`, string(f.Data))

	require.NoError(t, ws.Send(context.Background(), protocol.Frame{Type: protocol.FrameBinary, Data: []byte{1, 2}}))
	f, err = ws.Recv()
	require.NoError(t, err)
	assert.Equal(t, protocol.FrameBinary, f.Type)
}

// ping/pong 由 gorilla 的 handler 消费，这里要确认上层依然能看到
func TestWebSocketSurfacesControlFrames(t *testing.T) {
	gotPong := make(chan string, 1)
	url := newPeer(t, func(conn *websocket.Conn) {
		conn.SetPongHandler(func(appData string) error {
			gotPong <- appData
			return nil
		})
		_ = conn.WriteControl(websocket.PingMessage, []byte("srv"), time.Now().Add(time.Second))
		_ = conn.WriteControl(websocket.PongMessage, []byte("unsolicited"), time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"notification","channel":"x"}`))
		// keep reading so the pong handler runs
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ws, err := DialWebSocket(context.Background(), url)
	require.NoError(t, err)
	defer ws.Close()

	want := []protocol.FrameType{protocol.FramePing, protocol.FramePong, protocol.FrameText}
	for _, ft := range want {
		f, err := ws.Recv()
		require.NoError(t, err)
		assert.Equal(t, ft, f.Type)
	}

	select {
	case data := <-gotPong:
		assert.Equal(t, "srv", data)
	case <-time.After(time.Second):
		t.Fatal("ping was not answered")
	}
}

func TestWebSocketNormalCloseIsEOF(t *testing.T) {
	url := newPeer(t, func(conn *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage()
	})

	ws, err := DialWebSocket(context.Background(), url)
	require.NoError(t, err)
	defer ws.Close()

	_, err = ws.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWebSocketAbnormalClose(t *testing.T) {
	url := newPeer(t, func(conn *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "boom")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage()
	})

	ws, err := DialWebSocket(context.Background(), url)
	require.NoError(t, err)
	defer ws.Close()

	_, err = ws.Recv()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr))
}

func TestDialWebSocketBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := DialWebSocket(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestWriteDeadline(t *testing.T) {
	assert.True(t, writeDeadline(context.Background(), 0).IsZero())

	d := writeDeadline(context.Background(), time.Hour)
	assert.WithinDuration(t, time.Now().Add(time.Hour), d, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	d = writeDeadline(ctx, time.Hour)
	assert.WithinDuration(t, time.Now().Add(time.Minute), d, time.Second)
}
