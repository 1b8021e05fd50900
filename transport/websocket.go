package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mini-wsrpc/protocol"
)

var _ Transport = (*WebSocket)(nil)

// WebSocket adapts a gorilla websocket connection to Transport.
//
// gorilla consumes ping and pong frames inside ReadMessage; the handlers
// installed here queue them so Recv still reports every frame the peer sent.
type WebSocket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex // gorilla allows one concurrent writer
	queue        []protocol.Frame
	closeOnce    sync.Once
	closeErr     error
}

// NewWebSocket wraps an established connection.
func NewWebSocket(conn *websocket.Conn, opts ...Option) *WebSocket {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}

	ws := &WebSocket{
		conn:         conn,
		writeTimeout: o.WriteTimeout,
	}
	if o.ReadLimit > 0 {
		conn.SetReadLimit(o.ReadLimit)
	}
	conn.SetPingHandler(ws.onPing)
	conn.SetPongHandler(ws.onPong)
	return ws
}

// DialWebSocket performs the opening handshake against url and wraps the result.
func DialWebSocket(ctx context.Context, url string, opts ...Option) (*WebSocket, error) {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: o.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, o.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial websocket %s: %w (status %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("dial websocket %s: %w", url, err)
	}
	return NewWebSocket(conn, opts...), nil
}

// onPing runs inside ReadMessage on the Recv goroutine.
func (ws *WebSocket) onPing(appData string) error {
	ws.queue = append(ws.queue, protocol.Frame{Type: protocol.FramePing, Data: []byte(appData)})

	err := ws.conn.WriteControl(websocket.PongMessage, []byte(appData), writeDeadline(context.Background(), ws.writeTimeout))
	if err == websocket.ErrCloseSent {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return nil
	}
	return err
}

func (ws *WebSocket) onPong(appData string) error {
	ws.queue = append(ws.queue, protocol.Frame{Type: protocol.FramePong, Data: []byte(appData)})
	return nil
}

func (ws *WebSocket) Send(ctx context.Context, f protocol.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := writeDeadline(ctx, ws.writeTimeout)

	switch f.Type {
	case protocol.FramePing, protocol.FramePong, protocol.FrameClose:
		// WriteControl may run concurrently with WriteMessage
		return ws.conn.WriteControl(int(f.Type), f.Data, deadline)
	case protocol.FrameText, protocol.FrameBinary:
		ws.writeMu.Lock()
		defer ws.writeMu.Unlock()
		if err := ws.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		return ws.conn.WriteMessage(int(f.Type), f.Data)
	default:
		return fmt.Errorf("websocket: unsupported frame type %s", f.Type)
	}
}

func (ws *WebSocket) Recv() (protocol.Frame, error) {
	for len(ws.queue) == 0 {
		mt, data, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return protocol.Frame{}, io.EOF
			}
			return protocol.Frame{}, err
		}
		ws.queue = append(ws.queue, protocol.Frame{Type: protocol.FrameType(mt), Data: data})
	}

	f := ws.queue[0]
	ws.queue[0] = protocol.Frame{}
	ws.queue = ws.queue[1:]
	return f, nil
}

// Close sends a normal-closure frame (best effort) and closes the socket.
func (ws *WebSocket) Close() error {
	ws.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = ws.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		ws.closeErr = ws.conn.Close()
	})
	return ws.closeErr
}

// RemoteAddr returns the peer address.
func (ws *WebSocket) RemoteAddr() net.Addr {
	return ws.conn.RemoteAddr()
}
