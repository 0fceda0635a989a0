package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/tilepad-sdk/internal/protocol/envelope"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var errFakeClosed = errors.New("fake transport closed")

// fakeTransport is both ends of an in-memory link: the connection reads from
// in and writes to out; the test plays host on the opposite channels.
type fakeTransport struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case b := <-f.in:
		return b, nil
	case <-f.closed:
		return nil, errFakeClosed
	}
}

func (f *fakeTransport) WriteMessage(ctx context.Context, _ envelope.FrameType, data []byte) error {
	cp := append([]byte(nil), data...)
	select {
	case f.out <- cp:
		return nil
	case <-f.closed:
		return errFakeClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// recv returns the next frame the connection wrote.
func (f *fakeTransport) recv(t *testing.T) envelope.Envelope {
	t.Helper()
	env, err := f.tryRecv(2 * time.Second)
	require.NoError(t, err)
	return env
}

// tryRecv is recv for helper goroutines, which must not call t.Fatal.
func (f *fakeTransport) tryRecv(within time.Duration) (envelope.Envelope, error) {
	select {
	case raw := <-f.out:
		return envelope.JSONCodec{}.Decode(raw)
	case <-time.After(within):
		return envelope.Envelope{}, errors.New("timed out waiting for outbound frame")
	}
}

func (f *fakeTransport) send(t *testing.T, env envelope.Envelope) {
	t.Helper()
	require.NoError(t, f.trySend(env))
}

func (f *fakeTransport) trySend(env envelope.Envelope) error {
	raw, err := envelope.JSONCodec{}.Encode(env)
	if err != nil {
		return err
	}
	f.sendRaw(raw)
	return nil
}

func (f *fakeTransport) sendRaw(raw []byte) {
	f.in <- raw
}

// acceptHandshake expects the register call and acknowledges it.
func (f *fakeTransport) acceptHandshake(t *testing.T) envelope.Envelope {
	t.Helper()
	env := f.recv(t)
	require.Equal(t, envelope.KindCall, env.Kind)
	require.Equal(t, MethodRegister, env.Method)
	f.send(t, envelope.NewResponse(env.ID, envelope.Payload{"plugin_id": env.Data["plugin_id"]}))
	return env
}

type fakeDialer struct {
	mu        sync.Mutex
	attempts  int
	failFirst int
	reqs      []DialRequest
	conns     chan *fakeTransport
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeTransport, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, req DialRequest) (Transport, error) {
	d.mu.Lock()
	d.attempts++
	n := d.attempts
	d.reqs = append(d.reqs, req)
	d.mu.Unlock()

	if n <= d.failFirst {
		return nil, errors.New("dial refused")
	}
	t := newFakeTransport()
	select {
	case d.conns <- t:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) next(t *testing.T) *fakeTransport {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

func testConfig(d Dialer) Config {
	return Config{
		ConnectTimeout:   time.Second,
		HandshakeTimeout: time.Second,
		WriteTimeout:     time.Second,
		CallTimeout:      2 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 5 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     40 * time.Millisecond,
		},
		Dialer: d,
	}
}

func newTestConnection(t *testing.T, cfg Config) *Connection {
	t.Helper()
	c, err := NewConnection("ws://127.0.0.1:59371/plugins/ws", Identity{
		PluginID:    "com.example.echo",
		AccessToken: "tok-123",
	}, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// startConnected starts c and completes the first handshake.
func startConnected(t *testing.T, c *Connection, d *fakeDialer) *fakeTransport {
	t.Helper()
	require.NoError(t, c.Start(context.Background()))
	host := d.next(t)
	host.acceptHandshake(t)
	waitConnected(t, c)
	return host
}

func waitConnected(t *testing.T, c *Connection) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.WaitConnected(ctx))
}
