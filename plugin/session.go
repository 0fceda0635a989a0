package plugin

import (
	"context"
	"strings"
	"time"

	"github.com/danmuck/tilepad-sdk/internal/auth"
	"github.com/danmuck/tilepad-sdk/internal/config"
	"github.com/danmuck/tilepad-sdk/internal/logging"
	"github.com/danmuck/tilepad-sdk/internal/protocol/correlation"
	"github.com/danmuck/tilepad-sdk/internal/protocol/dispatch"
	"github.com/danmuck/tilepad-sdk/internal/protocol/envelope"
	"github.com/danmuck/tilepad-sdk/internal/protocol/session"
	"github.com/rs/zerolog"
)

type (
	// Payload is the structured data carried by calls, replies, and events.
	Payload = envelope.Payload
	// Handler receives one event for a subscribed topic.
	Handler = dispatch.Handler
	// Subscription is the handle returned by Subscribe.
	Subscription = dispatch.Subscription

	ConnectionConfig = session.Config
	BackoffConfig    = session.BackoffConfig
	TLSConfig        = session.TLSConfig
	State            = session.State
	PendingRequest   = correlation.PendingRequest
	Identity         = session.Identity
)

const (
	StateDisconnected = session.StateDisconnected
	StateConnecting   = session.StateConnecting
	StateConnected    = session.StateConnected
	StateClosing      = session.StateClosing

	// AllTopics subscribes a handler to every event topic.
	AllTopics = dispatch.AllTopics
)

// Options are fixed at construction.
type Options struct {
	PluginID    string
	ConnectURL  string
	AccessToken string
	Connection  ConnectionConfig
	// Logger defaults to the "plugin" component logger.
	Logger *zerolog.Logger
}

// OptionsFromConfig maps a loaded plugin config onto session options.
func OptionsFromConfig(cfg config.PluginConfig) Options {
	return Options{
		PluginID:    cfg.PluginID,
		ConnectURL:  cfg.ConnectURL,
		AccessToken: cfg.AccessToken.Value(),
		Connection:  cfg.Session,
	}
}

// Session is a plugin's handle to the host: correlated calls, event
// subscriptions, and a connection that reconnects on its own.
type Session struct {
	conn *session.Connection
	log  zerolog.Logger
}

func New(opts Options) (*Session, error) {
	log := logging.Component("plugin")
	if opts.Logger != nil {
		log = *opts.Logger
	}
	conn, err := session.NewConnection(opts.ConnectURL, session.Identity{
		PluginID:    strings.TrimSpace(opts.PluginID),
		AccessToken: auth.Token(strings.TrimSpace(opts.AccessToken)),
	}, opts.Connection, log)
	if err != nil {
		return nil, err
	}
	return &Session{conn: conn, log: log}, nil
}

// Dial builds a session, starts it, and waits for the first handshake. ctx
// bounds the wait only; the session runs until Close.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	s, err := New(opts)
	if err != nil {
		return nil, err
	}
	if err := s.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}
	if err := s.WaitConnected(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Start begins connecting in the background; ctx bounds the session lifetime.
func (s *Session) Start(ctx context.Context) error {
	return s.conn.Start(ctx)
}

// Call sends method with data and waits for the host's reply. A timeout <= 0
// uses the configured call timeout.
func (s *Session) Call(ctx context.Context, method string, data Payload, timeout time.Duration) (Payload, error) {
	return s.conn.Call(ctx, method, data, timeout)
}

func (s *Session) Subscribe(topic string, h Handler) Subscription {
	return s.conn.Subscribe(topic, h)
}

func (s *Session) Unsubscribe(sub Subscription) bool {
	return s.conn.Unsubscribe(sub)
}

// OnConnected runs fn with the handshake reply after every (re)connect.
func (s *Session) OnConnected(fn func(ack Payload)) {
	s.conn.OnConnected(fn)
}

// Close is terminal; pending calls fail with ErrClosed.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) State() State { return s.conn.State() }

func (s *Session) WaitConnected(ctx context.Context) error {
	return s.conn.WaitConnected(ctx)
}

// Identity is the plugin id and access token sent on every handshake.
func (s *Session) Identity() Identity { return s.conn.Identity() }

func (s *Session) PluginID() string { return s.conn.Identity().PluginID }

func (s *Session) Pending() []PendingRequest { return s.conn.Pending() }

func (s *Session) Logger() zerolog.Logger { return s.log }
