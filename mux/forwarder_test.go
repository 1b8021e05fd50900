package mux

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-wsrpc/message"
)

func note(i int) *message.Notification {
	return &message.Notification{Channel: fmt.Sprintf("c%d", i)}
}

func TestForwarderOrderAndClose(t *testing.T) {
	f := newForwarder(0)
	for i := 0; i < 50; i++ {
		require.NoError(t, f.push(note(i)))
	}
	f.close()

	i := 0
	for n := range f.out {
		assert.Equal(t, fmt.Sprintf("c%d", i), n.Channel)
		i++
	}
	assert.Equal(t, 50, i)
}

func TestForwarderPushNeverBlocks(t *testing.T) {
	f := newForwarder(0)
	defer f.closeSink()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			_ = f.push(note(i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked without a consumer")
	}
}

func TestForwarderLimit(t *testing.T) {
	f := newForwarder(1)
	defer f.closeSink()

	var overflow int
	for i := 0; i < 5; i++ {
		if err := f.push(note(i)); err != nil {
			assert.ErrorIs(t, err, errNotificationOverflow)
			overflow++
		}
	}
	assert.GreaterOrEqual(t, overflow, 3)
}

func TestForwarderCloseSink(t *testing.T) {
	f := newForwarder(0)
	require.NoError(t, f.push(note(0)))

	f.closeSink()
	f.closeSink()
	assert.ErrorIs(t, f.push(note(1)), ErrSinkClosed)

	select {
	case <-f.exited:
	case <-time.After(time.Second):
		t.Fatal("pump did not exit")
	}
}
