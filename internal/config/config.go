package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/tilepad-sdk/internal/auth"
	"github.com/danmuck/tilepad-sdk/internal/protocol/envelope"
	"github.com/danmuck/tilepad-sdk/internal/protocol/session"
)

// EnvConfigPath names a plugin config file when --config is not given.
const EnvConfigPath = "TILEPAD_PLUGIN_CONFIG"

var ErrInvalidConfig = errors.New("config: invalid plugin config")

// PluginConfig is everything a plugin process needs to reach its host.
type PluginConfig struct {
	PluginID    string
	ConnectURL  string
	AccessToken auth.Token
	Codec       string
	LogLevel    string
	Session     session.Config
}

type fileConfig struct {
	PluginID          string      `toml:"plugin_id"`
	ConnectURL        string      `toml:"connect_url"`
	AccessToken       string      `toml:"access_token"`
	Codec             string      `toml:"codec"`
	LogLevel          string      `toml:"log_level"`
	ConnectTimeout    string      `toml:"connect_timeout"`
	HandshakeTimeout  string      `toml:"handshake_timeout"`
	WriteTimeout      string      `toml:"write_timeout"`
	CallTimeout       string      `toml:"call_timeout"`
	HeartbeatInterval string      `toml:"heartbeat_interval"`
	SessionDeadAfter  string      `toml:"session_dead_after"`
	OutboundQueue     int         `toml:"outbound_queue"`
	SecurityMode      string      `toml:"security_mode"`
	Backoff           backoffFile `toml:"backoff"`
	TLS               tlsFile     `toml:"tls"`
}

type backoffFile struct {
	InitialDelay string  `toml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelay     string  `toml:"max_delay"`
	Jitter       bool    `toml:"jitter"`
}

type tlsFile struct {
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	CAFile             string `toml:"ca_file"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// Default returns the config used when no file is given.
func Default() PluginConfig {
	return PluginConfig{
		Codec:    envelope.CodecJSON,
		LogLevel: "info",
		Session:  session.DefaultConfig(),
	}
}

// Load applies the keys defined in path over Default.
func Load(path string) (PluginConfig, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return PluginConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return PluginConfig{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}

	if meta.IsDefined("plugin_id") {
		cfg.PluginID = strings.TrimSpace(raw.PluginID)
	}
	if meta.IsDefined("connect_url") {
		cfg.ConnectURL = strings.TrimSpace(raw.ConnectURL)
	}
	if meta.IsDefined("access_token") {
		cfg.AccessToken = auth.Token(strings.TrimSpace(raw.AccessToken))
	}
	if meta.IsDefined("codec") {
		cfg.Codec = strings.TrimSpace(raw.Codec)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("security_mode") {
		cfg.Session.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SecurityMode))
	}
	if meta.IsDefined("outbound_queue") {
		cfg.Session.OutboundQueue = raw.OutboundQueue
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.Session.HandshakeTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
		{"call_timeout", raw.CallTimeout, &cfg.Session.CallTimeout},
		{"heartbeat_interval", raw.HeartbeatInterval, &cfg.Session.HeartbeatInterval},
		{"session_dead_after", raw.SessionDeadAfter, &cfg.Session.SessionDeadAfter},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := parseDuration(d.key, d.raw)
		if err != nil {
			return PluginConfig{}, err
		}
		*d.dst = v
	}

	if meta.IsDefined("backoff", "initial_delay") {
		v, err := parseDuration("backoff.initial_delay", raw.Backoff.InitialDelay)
		if err != nil {
			return PluginConfig{}, err
		}
		cfg.Session.Backoff.InitialDelay = v
	}
	if meta.IsDefined("backoff", "max_delay") {
		v, err := parseDuration("backoff.max_delay", raw.Backoff.MaxDelay)
		if err != nil {
			return PluginConfig{}, err
		}
		cfg.Session.Backoff.MaxDelay = v
	}
	if meta.IsDefined("backoff", "multiplier") {
		cfg.Session.Backoff.Multiplier = raw.Backoff.Multiplier
	}
	if meta.IsDefined("backoff", "jitter") {
		cfg.Session.Backoff.Jitter = raw.Backoff.Jitter
	}

	if meta.IsDefined("tls") {
		cfg.Session.TLS = session.TLSConfig{
			Enabled:            raw.TLS.Enabled,
			Mutual:             raw.TLS.Mutual,
			CAFile:             strings.TrimSpace(raw.TLS.CAFile),
			CertFile:           strings.TrimSpace(raw.TLS.CertFile),
			KeyFile:            strings.TrimSpace(raw.TLS.KeyFile),
			ServerName:         strings.TrimSpace(raw.TLS.ServerName),
			InsecureSkipVerify: raw.TLS.InsecureSkipVerify,
		}
	}

	codec, err := envelope.CodecByName(cfg.Codec)
	if err != nil {
		return PluginConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.Session.Codec = codec
	return cfg, nil
}

// LoadFromEnv loads the file named by EnvConfigPath, or returns Default when unset.
func LoadFromEnv() (PluginConfig, error) {
	path := strings.TrimSpace(os.Getenv(EnvConfigPath))
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks the fields a running plugin cannot do without.
func (c PluginConfig) Validate() error {
	if strings.TrimSpace(c.PluginID) == "" {
		return fmt.Errorf("%w: missing plugin_id", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.ConnectURL) == "" {
		return fmt.Errorf("%w: missing connect_url", ErrInvalidConfig)
	}
	if _, err := envelope.CodecByName(c.Codec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	u, err := session.TargetURL(c.ConnectURL, c.PluginID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Session.ValidateClientTransport(u); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, key)
	}
	return d, nil
}
