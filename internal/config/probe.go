package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	commoncfg "github.com/gaspardpetit/nfrx-browser/core/config"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ProbeConfig holds configuration for the nfrx-browser-probe extension client.
type ProbeConfig struct {
	ServerURL      string        `yaml:"server_url"`
	ClientID       string        `yaml:"client_id"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	MaxAttempts    int           `yaml:"max_attempts"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	LogLevel       string        `yaml:"log_level"`
	ConfigFile     string        `yaml:"-"`
}

// SetDefaults initializes c with built-in defaults.
func (c *ProbeConfig) SetDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = "ws://127.0.0.1:8765"
	}
	if c.ClientID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "probe"
		}
		c.ClientID = host + "-" + uuid.NewString()[:8]
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ConfigFile == "" {
		c.ConfigFile = commoncfg.DefaultConfigPath("probe.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *ProbeConfig) ApplyEnv() {
	if v := commoncfg.GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := commoncfg.GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := commoncfg.GetEnv("SERVER_URL", ""); v != "" {
		c.ServerURL = v
	}
	if v := commoncfg.GetEnv("CLIENT_ID", ""); v != "" {
		c.ClientID = v
	}
	if v := commoncfg.GetEnv("RECONNECT_DELAY", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ReconnectDelay = d
		}
	}
	if v := commoncfg.GetEnv("MAX_ATTEMPTS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxAttempts = n
		}
	}
	if v := commoncfg.GetEnv("PING_INTERVAL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PingInterval = d
		}
	}
}

// BindFlagsFromCurrent binds command line flags on fs using the current
// config values as defaults.
func (c *ProbeConfig) BindFlagsFromCurrent(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "probe config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.StringVar(&c.ServerURL, "server-url", c.ServerURL, "bridge websocket url")
	fs.StringVar(&c.ClientID, "client-id", c.ClientID, "identifier reported by browser_info")
	fs.DurationVar(&c.ReconnectDelay, "reconnect-delay", c.ReconnectDelay, "delay between reconnect attempts")
	fs.IntVar(&c.MaxAttempts, "max-attempts", c.MaxAttempts, "consecutive failed connects before giving up (0 retries forever)")
	fs.DurationVar(&c.PingInterval, "ping-interval", c.PingInterval, "keepalive ping interval")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "timeout for requests the probe issues")
}

// LoadFile populates the config from a YAML file.
func (c *ProbeConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}
