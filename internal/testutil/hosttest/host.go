// Package hosttest runs an in-process WebSocket host that speaks the plugin
// envelope protocol, for end-to-end tests of the SDK.
package hosttest

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/tilepad-sdk/internal/auth"
	"github.com/danmuck/tilepad-sdk/internal/protocol/envelope"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const Path = "/plugins/ws"

// MethodFunc answers one plugin call. A non-nil ErrorBody becomes an error frame.
type MethodFunc func(pluginID string, data envelope.Payload) (envelope.Payload, *envelope.ErrorBody)

// Host accepts plugin connections and answers their calls.
type Host struct {
	srv       *httptest.Server
	upgrader  websocket.Upgrader
	validator auth.Validator
	codec     envelope.Codec
	log       zerolog.Logger

	mu      sync.Mutex
	methods map[string]MethodFunc
	conns   []*Conn

	registered chan *Conn
	calls      chan envelope.Envelope
}

type Option func(*Host)

// WithValidator requires a bearer token accepted by v on upgrade.
func WithValidator(v auth.Validator) Option {
	return func(h *Host) { h.validator = v }
}

func WithMethod(name string, fn MethodFunc) Option {
	return func(h *Host) { h.methods[name] = fn }
}

func WithCodec(c envelope.Codec) Option {
	return func(h *Host) { h.codec = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(h *Host) { h.log = l }
}

// New starts a plain ws host; tlsCfg switches it to wss.
func New(t testing.TB, tlsCfg *tls.Config, opts ...Option) *Host {
	t.Helper()
	h := &Host{
		codec:      envelope.JSONCodec{},
		log:        zerolog.Nop(),
		methods:    make(map[string]MethodFunc),
		registered: make(chan *Conn, 16),
		calls:      make(chan envelope.Envelope, 256),
	}
	for _, opt := range opts {
		opt(h)
	}
	mux := http.NewServeMux()
	mux.HandleFunc(Path, h.serveWS)
	h.srv = httptest.NewUnstartedServer(mux)
	if tlsCfg != nil {
		h.srv.TLS = tlsCfg
		h.srv.StartTLS()
	} else {
		h.srv.Start()
	}
	t.Cleanup(h.Close)
	return h
}

// URL is the connect address plugins dial.
func (h *Host) URL() string {
	u := h.srv.URL + Path
	if strings.HasPrefix(u, "https://") {
		return "wss://" + strings.TrimPrefix(u, "https://")
	}
	return "ws://" + strings.TrimPrefix(u, "http://")
}

func (h *Host) Handle(name string, fn MethodFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.methods[name] = fn
}

// NextRegistration waits for a connection to complete its handshake.
func (h *Host) NextRegistration(t testing.TB, within time.Duration) *Conn {
	t.Helper()
	select {
	case c := <-h.registered:
		return c
	case <-time.After(within):
		t.Fatalf("hosttest: no registration within %s", within)
		return nil
	}
}

// NextCall waits for the next non-handshake call from any plugin.
func (h *Host) NextCall(t testing.TB, within time.Duration) envelope.Envelope {
	t.Helper()
	select {
	case env := <-h.calls:
		return env
	case <-time.After(within):
		t.Fatalf("hosttest: no call within %s", within)
		return envelope.Envelope{}
	}
}

// Close drops every live connection and stops the server.
func (h *Host) Close() {
	h.mu.Lock()
	conns := append([]*Conn(nil), h.conns...)
	h.conns = nil
	h.mu.Unlock()
	for _, c := range conns {
		c.Drop()
	}
	h.srv.Close()
}

func (h *Host) serveWS(w http.ResponseWriter, r *http.Request) {
	if h.validator != nil {
		tok, err := auth.FromRequest(r)
		if err == nil {
			err = h.validator.Validate(tok.Value())
		}
		if err != nil {
			h.log.Warn().Err(err).Msg("hosttest.Host.serveWS rejected")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("hosttest.Host.serveWS upgrade failed")
		return
	}
	c := &Conn{
		host:     h,
		ws:       ws,
		pluginID: r.URL.Query().Get("plugin_id"),
	}
	h.mu.Lock()
	h.conns = append(h.conns, c)
	h.mu.Unlock()
	go c.serve()
}

func (h *Host) method(name string) (MethodFunc, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn, ok := h.methods[name]
	return fn, ok
}

// Conn is one accepted plugin connection.
type Conn struct {
	host     *Host
	ws       *websocket.Conn
	pluginID string

	wmu sync.Mutex
}

func (c *Conn) PluginID() string { return c.pluginID }

// Emit pushes an event frame to the plugin.
func (c *Conn) Emit(topic string, data envelope.Payload) error {
	return c.write(envelope.NewEvent(topic, data))
}

// WriteRaw sends bytes as-is, for malformed-frame tests.
func (c *Conn) WriteRaw(raw []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

// Drop closes the socket without a close handshake.
func (c *Conn) Drop() {
	_ = c.ws.Close()
}

func (c *Conn) write(env envelope.Envelope) error {
	raw, err := c.host.codec.Encode(env)
	if err != nil {
		return err
	}
	mt := websocket.TextMessage
	if c.host.codec.FrameType() == envelope.FrameBinary {
		mt = websocket.BinaryMessage
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(mt, raw)
}

func (c *Conn) serve() {
	defer c.Drop()
	registered := false
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		env, err := c.host.codec.Decode(raw)
		if err != nil {
			c.host.log.Warn().Err(err).Msg("hosttest.Conn.serve malformed frame")
			continue
		}
		if env.Kind != envelope.KindCall {
			continue
		}
		if env.Method == "register" {
			id, _ := env.Data["plugin_id"].(string)
			if c.pluginID != "" && id != c.pluginID {
				_ = c.write(envelope.NewError(env.ID, 403, "plugin_id mismatch"))
				continue
			}
			c.pluginID = id
			if err := c.write(envelope.NewResponse(env.ID, envelope.Payload{"plugin_id": id})); err != nil {
				return
			}
			if !registered {
				registered = true
				c.host.registered <- c
			}
			continue
		}
		if !registered {
			_ = c.write(envelope.NewError(env.ID, 412, "not registered"))
			continue
		}
		select {
		case c.host.calls <- env:
		default:
		}
		c.answer(env)
	}
}

func (c *Conn) answer(env envelope.Envelope) {
	fn, ok := c.host.method(env.Method)
	if !ok {
		_ = c.write(envelope.NewError(env.ID, 404, "unknown method: "+env.Method))
		return
	}
	out, errBody := fn(c.pluginID, env.Data)
	if errBody != nil {
		_ = c.write(envelope.NewError(env.ID, errBody.Code, errBody.Message))
		return
	}
	_ = c.write(envelope.NewResponse(env.ID, out))
}
