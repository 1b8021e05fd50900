package transport

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"mini-wsrpc/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamSendRecv(t *testing.T) {
	a, b := net.Pipe()
	client := NewStream(a)
	peer := NewStream(b)
	defer client.Close()
	defer peer.Close()

	go func() {
		_ = client.Send(context.Background(), protocol.Text([]byte(`{"id":0,"method":"public/ping","params":null}`)))
	}()

	f, err := peer.Recv()
	require.NoError(t, err)
	assert.Equal(t, protocol.FrameText, f.Type)
	assert.Equal(t, `{"id":0,"method":"public/ping","params":null}`, string(f.Data))
}

// 收到 ping 时自动回复 pong，并且 ping 本身也交给上层
func TestStreamAnswersPing(t *testing.T) {
	a, b := net.Pipe()
	client := NewStream(a)
	defer client.Close()
	defer b.Close()

	pong := make(chan *protocol.Frame, 1)
	go func() {
		_ = protocol.Encode(b, &protocol.Frame{Type: protocol.FramePing, Data: []byte("hb")})
		f, err := protocol.Decode(b)
		if err == nil {
			pong <- f
		}
	}()

	f, err := client.Recv()
	require.NoError(t, err)
	assert.Equal(t, protocol.FramePing, f.Type)

	select {
	case p := <-pong:
		assert.Equal(t, protocol.FramePong, p.Type)
		assert.Equal(t, "hb", string(p.Data))
	case <-time.After(time.Second):
		t.Fatal("no pong received")
	}
}

func TestStreamCloseFrameIsEOF(t *testing.T) {
	a, b := net.Pipe()
	client := NewStream(a)
	defer client.Close()
	defer b.Close()

	go func() {
		_ = protocol.Encode(b, &protocol.Frame{Type: protocol.FrameClose})
	}()

	_, err := client.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamPeerGone(t *testing.T) {
	a, b := net.Pipe()
	client := NewStream(a)
	defer client.Close()

	require.NoError(t, b.Close())
	_, err := client.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamSendCancelled(t *testing.T) {
	a, b := net.Pipe()
	client := NewStream(a)
	defer client.Close()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := client.Send(ctx, protocol.Text([]byte("{}")))
	assert.ErrorIs(t, err, context.Canceled)
}

// 没有人读的时候写入要在超时后返回
func TestStreamWriteTimeout(t *testing.T) {
	a, b := net.Pipe()
	client := NewStream(a, WithWriteTimeout(50*time.Millisecond))
	defer client.Close()
	defer b.Close()

	err := client.Send(context.Background(), protocol.Text([]byte("{}")))
	require.Error(t, err)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}
