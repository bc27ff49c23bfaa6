package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gaspardpetit/nfrx-browser/core/logx"
	"github.com/gaspardpetit/nfrx-browser/core/secret"
	"github.com/gaspardpetit/nfrx-browser/internal/bridgestate"
	"github.com/gaspardpetit/nfrx-browser/internal/config"
	"github.com/gaspardpetit/nfrx-browser/internal/mcpbroker"
	"github.com/gaspardpetit/nfrx-browser/internal/metrics"
	"github.com/gaspardpetit/nfrx-browser/internal/relay"
	"github.com/gaspardpetit/nfrx-browser/internal/statusapi"
	"github.com/gaspardpetit/nfrx-browser/internal/stdio"
	"github.com/gaspardpetit/nfrx-browser/internal/tools"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

// serverName is reported to MCP hosts in initialize.
const serverName = "browser-mcp"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.BridgeConfig
	// defaults < file < env < args
	cfg.SetDefaults()
	cfg.ApplyEnv()
	if p, ok := config.ConfigPathFromArgs(os.Args[1:]); ok {
		cfg.ConfigFile = p
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	cfg.ApplyEnv()
	cfg.BindFlagsFromCurrent(flag.CommandLine)
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "nfrx-browser version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("nfrx-browser version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	logx.Configure(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logx.Log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		logx.Log.Fatal().Err(err).Msg("bridge failed")
	}
}

func run(ctx context.Context, cfg config.BridgeConfig) error {
	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	store := bridgestate.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rs, err := bridgestate.NewRedisStore(ctx, cfg.RedisAddr, strconv.Itoa(os.Getpid()), 0)
		if err != nil {
			return fmt.Errorf("connect redis %s: %w", secret.RedactURL(cfg.RedisAddr), err)
		}
		store = rs
		logx.Log.Info().Str("addr", secret.RedactURL(cfg.RedisAddr)).Msg("using redis state store")
	}
	defer func() { _ = store.Close() }()
	tracker := bridgestate.NewTracker(store, bridgestate.State{Version: version, PID: os.Getpid()})

	out := stdio.New(os.Stdin, os.Stdout)
	rl := relay.New(relay.Options{Host: cfg.BindHost, MaxPayload: cfg.MaxFrameBytes})
	local := tools.NewLocal(tools.ServerInfo{
		Name:    serverName,
		Version: version,
		Connected: func() bool {
			_, ok := rl.Primary()
			return ok
		},
		Catalog: tools.BrowserCatalog(),
	})
	br := mcpbroker.New(rl, mcpbroker.Options{
		Timeout:   cfg.RequestTimeout,
		QueueSize: cfg.QueueSize,
		Local:     local,
		Emit:      out.Emit,
	})
	syncQueue := func() {
		if n := br.Queue().Len(); n != tracker.State().QueueSize {
			tracker.Update(func(s *bridgestate.State) { s.QueueSize = n })
		}
	}
	rl.OnMessage(br.HandleMessage)
	rl.OnConnect(func(connID string) {
		tracker.SetConnections(rl.ConnectionCount())
		br.HandleConnect(connID)
		syncQueue()
	})
	rl.OnDisconnect(func(connID string) {
		br.HandleDisconnect(connID)
		tracker.SetConnections(rl.ConnectionCount())
	})

	port, err := rl.Start(cfg.Port, cfg.PortAttempts)
	if err != nil {
		return err
	}
	defer rl.Stop()

	statusCtx, stopStatus := context.WithCancel(ctx)
	defer stopStatus()
	statusAddr := ""
	if addr := cfg.ResolveStatusAddr(port); addr != "" {
		h := statusapi.New(statusapi.Deps{
			Tracker:        tracker,
			Broker:         br,
			Relay:          rl,
			Gatherer:       reg,
			AllowedOrigins: cfg.AllowedOrigins,
			Version:        version,
			BuildSHA:       buildSHA,
			BuildDate:      buildDate,
		})
		if a, err := statusapi.ServeUntilContext(statusCtx, addr, h); err != nil {
			logx.Log.Warn().Err(err).Str("addr", addr).Msg("status server disabled")
		} else {
			statusAddr = a
			logx.Log.Info().Str("addr", a).Msg("status server listening")
		}
	}
	tracker.Update(func(s *bridgestate.State) {
		s.Port = port
		s.StatusAddr = statusAddr
		s.Status = bridgestate.StatusWaiting
	})
	logx.Log.Info().Str("version", version).Int("port", port).Msg("nfrx-browser ready; waiting for extension")

	err = out.Serve(ctx, func(ctx context.Context, line []byte) {
		br.ServeLine(ctx, line)
		syncQueue()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logx.Log.Error().Err(err).Msg("stdio failed")
	}

	tracker.StartDrain()
	if n := br.Inflight(); n > 0 && cfg.DrainTimeout > 0 {
		logx.Log.Info().Int64("inflight", n).Dur("timeout", cfg.DrainTimeout).Msg("draining")
		dctx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
		if !br.Drain(dctx) {
			logx.Log.Warn().Msg("drain timeout; abandoning in-flight requests")
		}
		cancel()
	}
	br.Close()
	logx.Log.Info().Msg("nfrx-browser stopped")
	return nil
}
