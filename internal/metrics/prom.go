package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for forwarded requests.
const (
	OutcomeResult       = "result"
	OutcomeError        = "error"
	OutcomeTimeout      = "timeout"
	OutcomeDisconnected = "disconnected"
	OutcomeQueued       = "queued"
	OutcomeLocal        = "local"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "nfrx_browser_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "bridge"},
		},
		[]string{"date", "sha", "version"},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nfrx_browser_ws_connections",
			Help: "Extension connections with a completed handshake",
		},
	)

	wsHandshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfrx_browser_ws_handshakes_total",
			Help: "WebSocket handshakes by result",
		},
		[]string{"result"},
	)

	wsFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfrx_browser_ws_frames_total",
			Help: "WebSocket frames by direction and opcode",
		},
		[]string{"direction", "opcode"},
	)

	wsProtocolErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nfrx_browser_ws_protocol_errors_total",
			Help: "Connections closed because of a malformed frame",
		},
	)

	pendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nfrx_browser_pending_requests",
			Help: "Forwarded requests awaiting a response",
		},
	)

	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfrx_browser_requests_total",
			Help: "JSON-RPC requests by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nfrx_browser_request_duration_seconds",
			Help:    "Time from forward to terminal outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nfrx_browser_queue_depth",
			Help: "Requests waiting for an extension connection",
		},
	)

	queueDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nfrx_browser_queue_dropped_total",
			Help: "Queued requests evicted by the drop-oldest policy",
		},
	)

	queueReplayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfrx_browser_queue_replayed_total",
			Help: "Queued requests replayed on reconnect by result",
		},
		[]string{"result"},
	)
)

// Register registers all bridge collectors with r.
func Register(r prometheus.Registerer) {
	r.MustRegister(
		buildInfo,
		wsConnections, wsHandshakes, wsFrames, wsProtocolErrors,
		pendingRequests, requests, requestDuration,
		queueDepth, queueDropped, queueReplayed,
	)
}

// SetBuildInfo publishes the binary's version labels.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// SetConnections sets the live extension connection count.
func SetConnections(n int) { wsConnections.Set(float64(n)) }

// RecordHandshake counts a handshake attempt; ok=false covers malformed upgrades.
func RecordHandshake(ok bool) {
	if ok {
		wsHandshakes.WithLabelValues("accepted").Inc()
		return
	}
	wsHandshakes.WithLabelValues("rejected").Inc()
}

// RecordFrame counts a frame. direction is "in" or "out".
func RecordFrame(direction, opcode string) {
	wsFrames.WithLabelValues(direction, opcode).Inc()
}

// RecordProtocolError counts a connection torn down for a bad frame.
func RecordProtocolError() { wsProtocolErrors.Inc() }

// SetPending sets the number of requests awaiting the extension.
func SetPending(n int) { pendingRequests.Set(float64(n)) }

// RecordRequest counts a request outcome and, for forwarded ones, its latency.
func RecordRequest(method, outcome string, dur time.Duration) {
	requests.WithLabelValues(method, outcome).Inc()
	if outcome != OutcomeLocal && outcome != OutcomeQueued {
		requestDuration.WithLabelValues(outcome).Observe(dur.Seconds())
	}
}

// SetQueueDepth sets the offline queue length.
func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

// RecordQueueDrop counts an eviction from a full queue.
func RecordQueueDrop() { queueDropped.Inc() }

// RecordReplay counts a replayed request; ok=false means it was re-queued.
func RecordReplay(ok bool) {
	if ok {
		queueReplayed.WithLabelValues("sent").Inc()
		return
	}
	queueReplayed.WithLabelValues("requeued").Inc()
}
