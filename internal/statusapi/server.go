// Package statusapi serves the bridge's local HTTP status surface:
// health, state, Prometheus metrics and the OpenAPI description of them.
package statusapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/gaspardpetit/nfrx-browser/core/logx"
	"github.com/gaspardpetit/nfrx-browser/internal/bridgestate"
	"github.com/gaspardpetit/nfrx-browser/internal/mcpbroker"
	"github.com/gaspardpetit/nfrx-browser/internal/relay"
)

// ConnLister reports extension connections; *relay.Server satisfies it.
type ConnLister interface {
	Connections() []relay.ConnInfo
}

// Deps are the components the status API reads from.
type Deps struct {
	Tracker        *bridgestate.Tracker
	Broker         *mcpbroker.Broker
	Relay          ConnLister
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Version        string
	BuildSHA       string
	BuildDate      string
}

// Health is the /health body.
type Health struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	UptimeMs    int64  `json:"uptime_ms"`
	Goroutines  int    `json:"goroutines"`
	RSSBytes    uint64 `json:"rss_bytes,omitempty"`
	Connections int    `json:"connections"`
	Pending     int    `json:"pending"`
	Queued      int    `json:"queued"`
}

// StateView is the /state body.
type StateView struct {
	Bridge      bridgestate.State  `json:"bridge"`
	Connections []relay.ConnInfo   `json:"connections"`
	Broker      mcpbroker.Snapshot `json:"broker"`
	Build       map[string]string  `json:"build"`
}

type api struct {
	deps    Deps
	started time.Time
	proc    *process.Process
}

// New constructs the status HTTP handler.
func New(d Deps) http.Handler {
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	a := &api{deps: d, started: time.Now()}
	if p, err := process.NewProcessWithContext(context.Background(), int32(os.Getpid())); err == nil {
		a.proc = p
	}

	r := chi.NewRouter()
	if len(d.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.AllowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	r.Use(chiMiddleware.RequestID, requestLogger)

	r.Get("/health", a.health)
	r.Get("/state", a.state)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/openapi.json", openAPIHandler())
	return r
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	h := Health{
		Status:     bridgestate.StatusUnknown,
		Version:    a.deps.Version,
		UptimeMs:   time.Since(a.started).Milliseconds(),
		Goroutines: runtime.NumGoroutine(),
	}
	if a.proc != nil {
		if mi, err := a.proc.MemoryInfoWithContext(r.Context()); err == nil {
			h.RSSBytes = mi.RSS
		}
	}
	if a.deps.Tracker != nil {
		h.Status = a.deps.Tracker.State().Status
	}
	if a.deps.Relay != nil {
		for _, c := range a.deps.Relay.Connections() {
			if c.Ready {
				h.Connections++
			}
		}
	}
	if a.deps.Broker != nil {
		h.Pending = a.deps.Broker.Pending()
		h.Queued = a.deps.Broker.Queue().Len()
	}
	status := http.StatusOK
	if a.deps.Tracker != nil && a.deps.Tracker.IsDraining() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (a *api) state(w http.ResponseWriter, _ *http.Request) {
	v := StateView{
		Connections: []relay.ConnInfo{},
		Build: map[string]string{
			"version": a.deps.Version,
			"sha":     a.deps.BuildSHA,
			"date":    a.deps.BuildDate,
		},
	}
	if a.deps.Tracker != nil {
		v.Bridge = a.deps.Tracker.State()
	}
	if a.deps.Relay != nil {
		v.Connections = append(v.Connections, a.deps.Relay.Connections()...)
	}
	if a.deps.Broker != nil {
		v.Broker = a.deps.Broker.Snapshot()
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		logx.Log.Debug().Str("component", "status").Str("method", r.Method).Str("url", r.URL.String()).
			Int("status", rec.status).Dur("duration", time.Since(start)).
			Str("request_id", chiMiddleware.GetReqID(r.Context())).Msg("http")
	})
}

// ServeUntilContext serves h on addr until ctx is done and returns the
// bound address.
func ServeUntilContext(ctx context.Context, addr string, h http.Handler) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	actual := ln.Addr().String()
	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(c)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logx.Log.Error().Err(err).Str("addr", actual).Msg("status server error")
		}
	}()
	return actual, nil
}
