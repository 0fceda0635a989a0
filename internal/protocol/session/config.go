package session

import (
	"time"

	"github.com/danmuck/tilepad-sdk/internal/protocol/envelope"
)

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// TLSConfig applies to wss:// targets.
type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

// Config defines connection reliability settings. Zero fields take defaults.
type Config struct {
	ConnectTimeout    time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	SessionDeadAfter  time.Duration
	CallTimeout       time.Duration
	OutboundQueue     int
	Backoff           BackoffConfig
	SecurityMode      SecurityMode
	TLS               TLSConfig

	Codec  envelope.Codec
	Dialer Dialer

	// OnStateChange observes every transition. It runs under the connection
	// lock and must not block or call back into the connection.
	OnStateChange func(from, to State)
}

// DefaultConfig returns the connection defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     10 * time.Second,
		CallTimeout:      10 * time.Second,
		OutboundQueue:    64,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     30 * time.Second,
			Jitter:       true,
		},
		SecurityMode: SecurityModeDevelopment,
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = def.CallTimeout
	}
	if c.OutboundQueue <= 0 {
		c.OutboundQueue = def.OutboundQueue
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = def.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier < 1.0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = def.Backoff.MaxDelay
	}
	if c.Backoff.MaxDelay < c.Backoff.InitialDelay {
		c.Backoff.MaxDelay = c.Backoff.InitialDelay
	}
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	if c.Codec == nil {
		c.Codec = envelope.JSONCodec{}
	}
	if c.Dialer == nil {
		c.Dialer = WebSocketDialer{}
	}
	return c
}

// stableLinkAfter is how long a link must stay up before a later drop starts
// the backoff over.
func (c Config) stableLinkAfter() time.Duration {
	d := time.Duration(float64(c.Backoff.InitialDelay) * c.Backoff.Multiplier)
	if c.HeartbeatInterval > d {
		d = c.HeartbeatInterval
	}
	return d
}
