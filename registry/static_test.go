package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticRegisterAndDiscover(t *testing.T) {
	ctx := context.Background()
	reg := NewStaticRegistry()

	inst1 := ServiceInstance{Addr: "ws://127.0.0.1:8001/ws", Weight: 10, Version: "1.0"}
	inst2 := ServiceInstance{Addr: "ws://127.0.0.1:8002/ws", Weight: 5, Version: "1.0"}
	require.NoError(t, reg.Register(ctx, "deribit", inst1, 10))
	require.NoError(t, reg.Register(ctx, "deribit", inst2, 10))
	// 重复注册同一个地址只保留一份
	require.NoError(t, reg.Register(ctx, "deribit", inst1, 10))

	instances, err := reg.Discover(ctx, "deribit")
	require.NoError(t, err)
	assert.Len(t, instances, 2)

	require.NoError(t, reg.Deregister(ctx, "deribit", inst1.Addr))
	instances, err = reg.Discover(ctx, "deribit")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, inst2.Addr, instances[0].Addr)

	instances, err = reg.Discover(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestStaticWatch(t *testing.T) {
	reg := NewStaticRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	ch := reg.Watch(ctx, "svc")
	assert.Empty(t, <-ch)

	require.NoError(t, reg.Register(ctx, "svc", ServiceInstance{Addr: "ws://a"}, 0))
	require.NoError(t, reg.Register(ctx, "svc", ServiceInstance{Addr: "ws://b"}, 0))

	select {
	case list := <-ch:
		// 只保留最新的一次更新
		assert.Len(t, list, 2)
	case <-time.After(time.Second):
		t.Fatal("no update")
	}

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed")
	}
}

func TestNetworkRegistry(t *testing.T) {
	reg, err := NewNetworkRegistry("testnet", "deribit")
	require.NoError(t, err)

	instances, err := reg.Discover(context.Background(), "deribit")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, TestnetURL, instances[0].Addr)

	_, err = NewNetworkRegistry("devnet", "deribit")
	assert.Error(t, err)
}

func TestDiscoverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStaticRegistry().Discover(ctx, "svc")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServiceKey(t *testing.T) {
	key := serviceKey("deribit", "ws://127.0.0.1:8001/ws")
	assert.Equal(t, "/mini-wsrpc/deribit/ws:%2F%2F127.0.0.1:8001%2Fws", key)
	assert.Equal(t, "ws://127.0.0.1:8001/ws", trimKey("deribit", key))
}
