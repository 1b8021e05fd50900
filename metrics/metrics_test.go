package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.SetPending(3)
	m.Outcome(OutcomeResult)
	m.Notification()
	m.DroppedNotification()
	m.ControlFrame("ping")
	m.ObserveCall("public/ping", OutcomeResult, time.Millisecond)

	var s *ServerMetrics
	s.ConnOpened()
	s.ConnClosed()
	s.Handle("Arith.Add", "0")
	s.Publish(2)
}

func TestClientMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetPending(2)
	m.Outcome(OutcomeResult)
	m.Outcome(OutcomeResult)
	m.Outcome(OutcomeRemote)
	m.Notification()
	m.ControlFrame("pong")
	m.ObserveCall("public/ping", OutcomeResult, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Pending))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues(OutcomeResult)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(OutcomeRemote)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ControlFrames.WithLabelValues("pong")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "wsrpc_client_call_duration_seconds")
	assert.Contains(t, names, "wsrpc_client_pending_requests")
}

func TestServerMetrics(t *testing.T) {
	m := NewServer(prometheus.NewRegistry())
	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()
	m.Handle("Arith.Add", "0")
	m.Publish(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Handled.WithLabelValues("Arith.Add", "0")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Published))
}

func TestNewWithoutRegisterer(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}
