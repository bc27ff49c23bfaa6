package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	commoncfg "github.com/gaspardpetit/nfrx-browser/core/config"
	"gopkg.in/yaml.v3"
)

// StatusDisabled turns the status HTTP server off when used as StatusAddr.
const StatusDisabled = "off"

// BridgeConfig holds configuration for the nfrx-browser bridge.
type BridgeConfig struct {
	Port           int           `yaml:"port"`
	PortAttempts   int           `yaml:"port_attempts"`
	BindHost       string        `yaml:"bind_host"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	QueueSize      int           `yaml:"queue_size"`
	MaxFrameBytes  uint64        `yaml:"max_frame_bytes"`
	StatusAddr     string        `yaml:"status_addr"`
	RedisAddr      string        `yaml:"redis_addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	LogLevel       string        `yaml:"log_level"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
	ConfigFile     string        `yaml:"-"`
}

// SetDefaults initializes c with built-in defaults.
func (c *BridgeConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Port == 0 {
		c.Port = 8765
	}
	if c.PortAttempts == 0 {
		c.PortAttempts = 10
	}
	if c.BindHost == "" {
		c.BindHost = "127.0.0.1"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.QueueSize == 0 {
		c.QueueSize = 100
	}
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = 16 << 20
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 5 * time.Second
	}
	if c.ConfigFile == "" {
		c.ConfigFile = commoncfg.DefaultConfigPath("browser.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *BridgeConfig) ApplyEnv() {
	if v := commoncfg.GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := commoncfg.GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := commoncfg.GetEnv("BROWSER_MCP_PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := commoncfg.GetEnv("PORT_ATTEMPTS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PortAttempts = n
		}
	}
	if v := commoncfg.GetEnv("BIND_HOST", ""); v != "" {
		c.BindHost = v
	}
	if v := commoncfg.GetEnv("REQUEST_TIMEOUT", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RequestTimeout = time.Duration(f * float64(time.Second))
		}
	}
	if v := commoncfg.GetEnv("QUEUE_SIZE", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.QueueSize = n
		}
	}
	if v := commoncfg.GetEnv("MAX_FRAME_BYTES", ""); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.MaxFrameBytes = n
		}
	}
	if v := commoncfg.GetEnv("STATUS_ADDR", ""); v != "" {
		c.StatusAddr = v
	}
	if v := commoncfg.GetEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
	if v := commoncfg.GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = commoncfg.SplitComma(v)
	}
	if v := commoncfg.GetEnv("DRAIN_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DrainTimeout = d
		}
	}
}

// BindFlagsFromCurrent binds command line flags on fs using the current
// config values as defaults.
func (c *BridgeConfig) BindFlagsFromCurrent(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "bridge config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.IntVar(&c.Port, "port", c.Port, "first WebSocket port to try for the extension")
	fs.IntVar(&c.PortAttempts, "port-attempts", c.PortAttempts, "number of consecutive ports to try")
	fs.StringVar(&c.BindHost, "bind-host", c.BindHost, "address the WebSocket listener binds to")
	fs.Func("request-timeout", "seconds to wait for the extension to answer a request", func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.RequestTimeout = time.Duration(f * float64(time.Second))
		return nil
	})
	fs.IntVar(&c.QueueSize, "queue-size", c.QueueSize, "requests kept while the extension is disconnected")
	fs.Uint64Var(&c.MaxFrameBytes, "max-frame-bytes", c.MaxFrameBytes, "largest accepted WebSocket frame or message")
	fs.StringVar(&c.StatusAddr, "status-addr", c.StatusAddr, "status HTTP listen address; defaults to the WebSocket port + 1, \"off\" disables it")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for publishing bridge state")
	fs.Func("allowed-origins", "comma separated list of allowed CORS origins for the status API", func(v string) error {
		c.AllowedOrigins = commoncfg.SplitComma(v)
		return nil
	})
	fs.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for in-flight requests on shutdown")
}

// LoadFile populates the config from a YAML file.
func (c *BridgeConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// ResolveStatusAddr returns the status listen address for the bound port,
// or "" when the status server is disabled.
func (c *BridgeConfig) ResolveStatusAddr(boundPort int) string {
	switch c.StatusAddr {
	case StatusDisabled:
		return ""
	case "":
		return fmt.Sprintf("%s:%d", c.BindHost, boundPort+1)
	}
	return c.StatusAddr
}

// Validate rejects values the bridge cannot run with.
func (c *BridgeConfig) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.PortAttempts < 1 {
		errs = append(errs, errors.New("port attempts must be at least 1"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.QueueSize < 1 {
		errs = append(errs, errors.New("queue size must be at least 1"))
	}
	if c.MaxFrameBytes == 0 {
		errs = append(errs, errors.New("max frame bytes must be positive"))
	}
	return errors.Join(errs...)
}

// ConfigPathFromArgs finds --config in args so the file can be loaded
// before flags are bound.
func ConfigPathFromArgs(args []string) (string, bool) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if (a == "--config" || a == "-config") && i+1 < len(args) {
			return args[i+1], true
		}
		for _, p := range []string{"--config=", "-config="} {
			if len(a) > len(p) && a[:len(p)] == p {
				return a[len(p):], true
			}
		}
	}
	return "", false
}
