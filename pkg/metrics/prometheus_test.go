package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_OwnRegistry(t *testing.T) {
	// Two instances must not collide on registration.
	a := NewMetrics("realtime")
	b := NewMetrics("realtime")
	require.NotSame(t, a.GetRegistry(), b.GetRegistry())
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics("realtime")

	m.AddWebSocketConnections("chat", 1)
	m.AddWebSocketConnections("chat", 1)
	m.AddWebSocketConnections("chat", -1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.websocketConnections.WithLabelValues("chat")))

	m.RecordMessageRelayed("call", "offer")
	m.RecordMessageDropped("chat", "unsupported")
	m.RecordSessionReaped("chat")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesRelayed.WithLabelValues("call", "offer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesDropped.WithLabelValues("chat", "unsupported")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsReaped.WithLabelValues("chat")))

	m.RecordCallRoomTransition("ongoing")
	m.RecordCallLifecycleEvent("rest", "end")
	m.RecordCallDuration(95 * time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callRoomTransitions.WithLabelValues("ongoing")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.callDuration))

	m.SetRedisDegraded(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.redisDegraded))
	m.SetRedisDegraded(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.redisDegraded))

	m.SetMediaCircuitBreakerState(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.mediaCircuitBreaker))
}
