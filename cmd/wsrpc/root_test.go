package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-wsrpc/server"
)

func TestCallCommand(t *testing.T) {
	svr, err := server.New()
	require.NoError(t, err)
	registerDemoHandlers(svr)
	hs := httptest.NewServer(svr.Handler())
	defer hs.Close()
	defer svr.Shutdown(context.Background())

	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"call", "--endpoint", url, "--log-level", "error", "--timeout", "2s", "public/test"})
	require.NoError(t, rootCmd.Execute())
	assert.JSONEq(t, `{"version":"`+version+`"}`, out.String())

	rootCmd.SetArgs([]string{"call", "--endpoint", url, "--timeout", "2s", "public/test", "{bad"})
	assert.ErrorContains(t, rootCmd.Execute(), "not valid JSON")
}

func TestPublishTime(t *testing.T) {
	svr, err := server.New()
	require.NoError(t, err)
	defer svr.Shutdown(context.Background())

	serveTicker = 10 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// 没有订阅者时只是空发布，ctx 结束后退出
	done := make(chan struct{})
	go func() {
		publishTime(ctx, svr)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishTime did not stop")
	}
}
