// ABOUTME: Tests for the Prometheus collectors and the /metrics handler
// ABOUTME: Verifies recorder methods update the expected series

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveBroadcast(t *testing.T) {
	m := New()

	m.ObserveBroadcast("agent_message", 3, 1)
	m.ObserveBroadcast("agent_message", 2, 0)
	m.ObserveBroadcast("system_error", 0, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BroadcastsTotal.WithLabelValues("agent_message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BroadcastsTotal.WithLabelValues("system_error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("failed")))
}

func TestObserveLiveConnections(t *testing.T) {
	m := New()

	m.ObserveLiveConnections(2, 5)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LiveRooms))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.LiveConnections))

	m.ObserveLiveConnections(0, 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LiveConnections))
}

func TestObservePersist(t *testing.T) {
	m := New()

	m.ObservePersist(true)
	m.ObservePersist(true)
	m.ObservePersist(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PersistTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistTotal.WithLabelValues("failed")))
}

func TestObserveSession(t *testing.T) {
	m := New()

	m.SessionStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))
	m.ObserveSession("terminated", 3*time.Second)
	m.SessionEnded()

	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("terminated")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SessionDuration))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObservePersist(true)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `hercules_transcript_writes_total{result="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNew_IndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := New()
	b := New()
	a.ObservePersist(true)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.PersistTotal.WithLabelValues("ok")))
}
