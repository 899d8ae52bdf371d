// Package config owns the transport daemon configuration surface: the TOML
// file shape and the flat option-map form carried on listener URIs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// MaxFrameCeiling is the hard upper bound on max_frame_size, 256 MiB.
	MaxFrameCeiling = 1024 * 1024 * 256

	// DefaultConnectAttemptTimeoutMS bounds the wait for the first
	// handshake frame, measured from connection acceptance.
	DefaultConnectAttemptTimeoutMS = 30000
)

// Transport carries low-level socket options forwarded to accepted
// connections.
type Transport struct {
	NoDelay         bool `toml:"no_delay"`
	ReadBufferSize  int  `toml:"read_buffer_size"`
	WriteBufferSize int  `toml:"write_buffer_size"`
}

// NATS configures the frame dispatch collaborator.
type NATS struct {
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// Redis configures the optional presence mirror.
type Redis struct {
	Addr         string `toml:"addr"`
	SessionTTLMS int64  `toml:"session_ttl_ms"`
}

// Config is the daemon configuration.
type Config struct {
	ListenAddr  string `toml:"listen_addr"`
	WSAddr      string `toml:"ws_addr"`
	MetricsAddr string `toml:"metrics_addr"`

	// Protocols is the comma-separated enabled protocol list for
	// auto-detection; empty or "all" enables every supported protocol.
	Protocols string `toml:"protocols"`

	// AllowLinkStealing distinguishes unset from false: the MQTT
	// auto-enable only applies when the operator configured nothing.
	AllowLinkStealing *bool `toml:"allow_link_stealing"`

	MaxFrameSize            int   `toml:"max_frame_size"`
	ConnectAttemptTimeoutMS int64 `toml:"connect_attempt_timeout_ms"`
	WireVersion             int   `toml:"wire_version"`

	Transport Transport `toml:"transport"`
	NATS      NATS      `toml:"nats"`
	Redis     Redis     `toml:"redis"`
}

func Default() Config {
	return Config{
		ListenAddr:              ":61616",
		MaxFrameSize:            MaxFrameCeiling,
		ConnectAttemptTimeoutMS: DefaultConnectAttemptTimeoutMS,
		WireVersion:             1,
		NATS: NATS{
			SubjectPrefix: "autowire",
		},
		Redis: Redis{
			SessionTTLMS: 300000,
		},
	}
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyOptions overlays flat key=value options onto cfg. Recognized keys
// mirror the listener URI surface: protocols, allowLinkStealing,
// maxFrameSize, connectAttemptTimeout, transport.*, wireFormat.version.
// Unknown keys error so typos do not silently drop options.
func (c *Config) ApplyOptions(opts map[string]string) error {
	for key, value := range opts {
		if err := c.applyOption(key, value); err != nil {
			return err
		}
	}
	c.normalize()
	return c.Validate()
}

func (c *Config) applyOption(key, value string) error {
	switch key {
	case "protocols":
		c.Protocols = value
	case "allowLinkStealing":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config option %s: %w", key, err)
		}
		c.AllowLinkStealing = &v
	case "maxFrameSize":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config option %s: %w", key, err)
		}
		c.MaxFrameSize = n
	case "connectAttemptTimeout":
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("config option %s: %w", key, err)
		}
		c.ConnectAttemptTimeoutMS = ms
	case "transport.noDelay":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config option %s: %w", key, err)
		}
		c.Transport.NoDelay = v
	case "transport.readBufferSize":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config option %s: %w", key, err)
		}
		c.Transport.ReadBufferSize = n
	case "transport.writeBufferSize":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config option %s: %w", key, err)
		}
		c.Transport.WriteBufferSize = n
	case "wireFormat.version":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config option %s: %w", key, err)
		}
		c.WireVersion = n
	default:
		return fmt.Errorf("config: unknown option %q", key)
	}
	return nil
}

func (c *Config) normalize() {
	if c.MaxFrameSize <= 0 || c.MaxFrameSize > MaxFrameCeiling {
		c.MaxFrameSize = MaxFrameCeiling
	}
	if c.ConnectAttemptTimeoutMS <= 0 {
		c.ConnectAttemptTimeoutMS = DefaultConnectAttemptTimeoutMS
	}
	if c.WireVersion <= 0 {
		c.WireVersion = 1
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("config missing listen_addr")
	}
	if c.Redis.Addr != "" && c.Redis.SessionTTLMS <= 0 {
		return fmt.Errorf("config redis session_ttl_ms must be positive")
	}
	return nil
}

// EnabledProtocols splits the protocol list; empty means all.
func (c Config) EnabledProtocols() []string {
	raw := strings.TrimSpace(c.Protocols)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) ConnectAttemptTimeout() time.Duration {
	return time.Duration(c.ConnectAttemptTimeoutMS) * time.Millisecond
}

func (c Config) RedisSessionTTL() time.Duration {
	return time.Duration(c.Redis.SessionTTLMS) * time.Millisecond
}
