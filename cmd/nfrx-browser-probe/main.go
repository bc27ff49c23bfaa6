package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gaspardpetit/nfrx-browser/core/logx"
	"github.com/gaspardpetit/nfrx-browser/core/reconnect"
	"github.com/gaspardpetit/nfrx-browser/internal/config"
	"github.com/gaspardpetit/nfrx-browser/internal/extclient"
	"github.com/gaspardpetit/nfrx-browser/internal/tools"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.ProbeConfig
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
	flag.Parse()
	if *showVersion {
		fmt.Printf("nfrx-browser-probe version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	logx.Configure(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := extclient.New(extclient.Options{
		URL:            cfg.ServerURL,
		Table:          tools.NewExtension("nfrx-browser-probe", version, tools.ProbeToolSet(cfg.ClientID)),
		Policy:         reconnect.Policy{Delay: cfg.ReconnectDelay, MaxAttempts: cfg.MaxAttempts},
		PingInterval:   cfg.PingInterval,
		RequestTimeout: cfg.RequestTimeout,
		OnConnect: func() {
			logx.Log.Info().Str("client_id", cfg.ClientID).Msg("probe ready")
		},
	})
	logx.Log.Info().Str("version", version).Str("url", cfg.ServerURL).Str("client_id", cfg.ClientID).Msg("starting probe")
	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logx.Log.Fatal().Err(err).Msg("probe stopped")
	}
	logx.Log.Info().Msg("probe stopped")
}
