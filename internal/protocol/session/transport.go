package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danmuck/tilepad-sdk/internal/protocol/envelope"
	"github.com/gorilla/websocket"
)

// Transport is one physical duplex connection carrying one envelope per frame.
// Close must unblock a pending ReadMessage.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(ctx context.Context, ft envelope.FrameType, data []byte) error
	Close() error
}

// Pinger is implemented by transports that support keepalive pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DialRequest carries everything a Dialer needs for one attempt.
type DialRequest struct {
	URL    *url.URL
	Header http.Header
	TLS    *tls.Config
	// DeadAfter bounds silence on the link; zero disables the read deadline.
	DeadAfter time.Duration
}

type Dialer interface {
	Dial(ctx context.Context, req DialRequest) (Transport, error)
}

const pluginIDParam = "plugin_id"

// TargetURL normalizes raw into a ws/wss URL carrying the plugin_id query parameter.
func TargetURL(raw, pluginID string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "http":
		u.Scheme = "ws"
	case "wss", "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidTarget)
	}
	q := u.Query()
	if q.Get(pluginIDParam) == "" && strings.TrimSpace(pluginID) != "" {
		q.Set(pluginIDParam, strings.TrimSpace(pluginID))
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	ReadBufferSize   int
	WriteBufferSize  int
}

func (d WebSocketDialer) Dial(ctx context.Context, req DialRequest) (Transport, error) {
	if req.URL == nil {
		return nil, fmt.Errorf("%w: nil", ErrInvalidTarget)
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		ReadBufferSize:   d.ReadBufferSize,
		WriteBufferSize:  d.WriteBufferSize,
		TLSClientConfig:  req.TLS,
	}
	conn, resp, err := dialer.DialContext(ctx, req.URL.String(), req.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("session: dial %s: %w (status %d)", redactedTarget(req.URL), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("session: dial %s: %w", redactedTarget(req.URL), err)
	}
	t := &wsTransport{conn: conn, deadAfter: req.DeadAfter}
	if t.deadAfter > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(t.deadAfter))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(t.deadAfter))
		})
	}
	return t, nil
}

type wsTransport struct {
	conn      *websocket.Conn
	deadAfter time.Duration
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if t.deadAfter > 0 {
			_ = t.conn.SetReadDeadline(time.Now().Add(t.deadAfter))
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (t *wsTransport) WriteMessage(ctx context.Context, ft envelope.FrameType, data []byte) error {
	deadline, _ := ctx.Deadline()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	mt := websocket.TextMessage
	if ft == envelope.FrameBinary {
		mt = websocket.BinaryMessage
	}
	return t.conn.WriteMessage(mt, data)
}

func (t *wsTransport) Ping(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}
	return t.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (t *wsTransport) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return t.conn.Close()
}

// redactedTarget drops query values so tokens passed in the URL stay out of logs.
func redactedTarget(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.User = nil
	return c.String()
}
