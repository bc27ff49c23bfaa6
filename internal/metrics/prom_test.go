package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	SetBuildInfo("1.0.0", "abc", "2024-01-01")
	SetConnections(2)
	RecordHandshake(true)
	RecordHandshake(false)
	RecordFrame("in", "text")
	RecordFrame("in", "text")
	RecordRequest("tools/call", OutcomeResult, 100*time.Millisecond)
	RecordRequest("tools/list", OutcomeLocal, 0)
	SetQueueDepth(3)
	RecordQueueDrop()
	RecordReplay(false)

	if v := testutil.ToFloat64(buildInfo.WithLabelValues("2024-01-01", "abc", "1.0.0")); v != 1 {
		t.Fatalf("build info: %v", v)
	}
	if v := testutil.ToFloat64(wsConnections); v != 2 {
		t.Fatalf("connections: %v", v)
	}
	if v := testutil.ToFloat64(wsHandshakes.WithLabelValues("rejected")); v != 1 {
		t.Fatalf("rejected handshakes: %v", v)
	}
	if v := testutil.ToFloat64(wsFrames.WithLabelValues("in", "text")); v != 2 {
		t.Fatalf("frames: %v", v)
	}
	if v := testutil.ToFloat64(requests.WithLabelValues("tools/call", OutcomeResult)); v != 1 {
		t.Fatalf("requests: %v", v)
	}
	if n := testutil.CollectAndCount(requestDuration); n != 1 {
		t.Fatalf("duration series: %d", n)
	}
	if v := testutil.ToFloat64(queueDepth); v != 3 {
		t.Fatalf("queue depth: %v", v)
	}
	if v := testutil.ToFloat64(queueDropped); v != 1 {
		t.Fatalf("queue dropped: %v", v)
	}
	if v := testutil.ToFloat64(queueReplayed.WithLabelValues("requeued")); v != 1 {
		t.Fatalf("replayed: %v", v)
	}
}
