package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/danmuck/tilepad-sdk/internal/auth"
	"github.com/danmuck/tilepad-sdk/internal/observability"
	"github.com/danmuck/tilepad-sdk/internal/protocol/correlation"
	"github.com/danmuck/tilepad-sdk/internal/protocol/dispatch"
	"github.com/danmuck/tilepad-sdk/internal/protocol/envelope"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// CodeUnsupported answers host-originated calls; plugins expose no methods.
const CodeUnsupported = 501

// Connection owns one logical link to the host and keeps it alive.
type Connection struct {
	cfg     Config
	id      Identity
	target  *url.URL
	header  http.Header
	tlsCfg  *tls.Config
	table   *correlation.Table
	events  *dispatch.Dispatcher
	backoff *Backoff
	log     zerolog.Logger

	mu        sync.Mutex
	state     State
	link      *link
	ack       envelope.Payload
	hooks     []func(envelope.Payload)
	connected chan struct{}
	closedCh  chan struct{}
	closed    bool
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// link is one physical connection and its outbound queue.
type link struct {
	t    Transport
	out  chan outbound
	done chan struct{}
}

type outbound struct {
	raw  []byte
	kind envelope.Kind
}

// NewConnection validates inputs; nothing is dialed until Start.
func NewConnection(target string, id Identity, cfg Config, log zerolog.Logger) (*Connection, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	u, err := TargetURL(target, id.PluginID)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateClientTransport(u); err != nil {
		return nil, err
	}
	tlsCfg, err := cfg.clientTLSConfig(u)
	if err != nil {
		return nil, err
	}
	log = log.With().Str("plugin_id", id.PluginID).Logger()
	return &Connection{
		cfg:       cfg,
		id:        id,
		target:    u,
		header:    auth.BearerHeader(id.AccessToken),
		tlsCfg:    tlsCfg,
		table:     correlation.NewTable(correlation.WithLogger(log)),
		events:    dispatch.NewDispatcher(log),
		backoff:   NewBackoff(cfg.Backoff, nil),
		log:       log,
		state:     StateDisconnected,
		connected: make(chan struct{}),
		closedCh:  make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start launches the supervisor loop. It returns immediately.
func (c *Connection) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(runCtx)
	return nil
}

func (c *Connection) Identity() Identity { return c.id }

func (c *Connection) Target() *url.URL {
	u := *c.target
	return &u
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WaitConnected blocks until the handshake completes, ctx ends, or Close.
func (c *Connection) WaitConnected(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		if c.state == StateConnected {
			c.mu.Unlock()
			return nil
		}
		ch := c.connected
		c.mu.Unlock()

		select {
		case <-ch:
		case <-c.closedCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// OnConnected registers fn to run after every successful handshake. When the
// connection is already up, fn also runs once for the current link.
func (c *Connection) OnConnected(fn func(ack envelope.Payload)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	up := c.state == StateConnected
	ack := c.ack.Clone()
	c.mu.Unlock()
	if up {
		go fn(ack)
	}
}

func (c *Connection) Subscribe(topic string, h dispatch.Handler) dispatch.Subscription {
	return c.events.Subscribe(topic, h)
}

func (c *Connection) Unsubscribe(s dispatch.Subscription) bool {
	return c.events.Unsubscribe(s)
}

func (c *Connection) Pending() []correlation.PendingRequest {
	return c.table.Pending()
}

// Call sends one correlated request and waits for its outcome. A timeout <= 0
// uses Config.CallTimeout.
func (c *Connection) Call(ctx context.Context, method string, data envelope.Payload, timeout time.Duration) (envelope.Payload, error) {
	if timeout <= 0 {
		timeout = c.cfg.CallTimeout
	}
	start := time.Now()
	out, err := c.call(ctx, method, data, timeout)
	observability.RecordCall(c.id.PluginID, method, outcomeLabel(err), time.Since(start))
	observability.SetPendingRequests(c.id.PluginID, c.table.Len())
	return out, err
}

func (c *Connection) call(ctx context.Context, method string, data envelope.Payload, timeout time.Duration) (envelope.Payload, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	l := c.link
	if l == nil {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrConnectionLost, state)
	}
	id, w := c.table.Register(method, time.Now().Add(timeout))
	c.mu.Unlock()

	raw, err := c.cfg.Codec.Encode(envelope.NewCall(id, method, data))
	if err != nil {
		c.table.Remove(id)
		return nil, err
	}

	cctx, cancel := context.WithTimeoutCause(ctx, timeout, ErrTimeout)
	defer cancel()

	select {
	case l.out <- outbound{raw: raw, kind: envelope.KindCall}:
	case <-l.done:
		// The link is gone; FailAll resolves the waiter.
	case <-cctx.Done():
		return c.abandon(cctx, id, w)
	}

	select {
	case out := <-w.Done():
		return out.Data, out.Err
	case <-cctx.Done():
		return c.abandon(cctx, id, w)
	}
}

// abandon drops the pending entry unless a resolution already won the race.
func (c *Connection) abandon(ctx context.Context, id string, w *correlation.Waiter) (envelope.Payload, error) {
	if c.table.Remove(id) {
		return nil, context.Cause(ctx)
	}
	out := <-w.Done()
	return out.Data, out.Err
}

// Close is terminal: pending calls fail with ErrClosed and no reconnect follows.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(StateClosing)
	c.closed = true
	close(c.closedCh)
	l := c.link
	cancel := c.cancel
	started := c.started
	c.mu.Unlock()

	n := c.table.FailAll(ErrClosed)
	if cancel != nil {
		cancel()
	}
	if l != nil {
		_ = l.t.Close()
	}
	if started {
		<-c.done
	}
	c.events.Close()
	observability.SetPendingRequests(c.id.PluginID, 0)
	c.log.Info().Int("failed_pending", n).Msg("session.Connection.Close closed")
	return nil
}

func (c *Connection) setStateLocked(to State) {
	if c.closed || c.state == to {
		return
	}
	from := c.state
	c.state = to
	observability.SetConnectionState(c.id.PluginID, int(to))
	c.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("session.Connection state")
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(from, to)
	}
}

func (c *Connection) setState(to State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(to)
}

func (c *Connection) run(ctx context.Context) {
	defer close(c.done)
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if attempt > 1 {
			observability.RecordReconnect(c.id.PluginID)
		}
		c.setState(StateConnecting)
		t, ack, err := c.connect(ctx)
		if err != nil {
			c.setState(StateDisconnected)
			if ctx.Err() != nil {
				return
			}
			delay := c.backoff.Next()
			c.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("session.Connection.run connect failed")
			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}
		up := time.Now()
		err = c.runLink(ctx, t, ack)
		if ctx.Err() != nil {
			return
		}
		delay := c.linkRetryDelay(time.Since(up))
		c.log.Warn().Err(err).Dur("retry_in", delay).Msg("session.Connection.run link lost")
		if !sleepCtx(ctx, delay) {
			return
		}
	}
}

func (c *Connection) connect(ctx context.Context) (Transport, envelope.Payload, error) {
	dctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	t, err := c.cfg.Dialer.Dial(dctx, DialRequest{
		URL:       c.target,
		Header:    c.header.Clone(),
		TLS:       c.tlsCfg,
		DeadAfter: c.cfg.SessionDeadAfter,
	})
	cancel()
	if err != nil {
		return nil, nil, err
	}
	ack, err := handshake(ctx, t, c.cfg.Codec, c.id, correlation.NewID(), c.cfg.HandshakeTimeout, c.log)
	if err != nil {
		_ = t.Close()
		return nil, nil, err
	}
	observability.RecordFrame(c.id.PluginID, "out", string(envelope.KindCall))
	observability.RecordFrame(c.id.PluginID, "in", string(envelope.KindResponse))
	return t, ack, nil
}

// runLink serves one physical connection until it fails or ctx ends.
func (c *Connection) runLink(ctx context.Context, t Transport, ack envelope.Payload) error {
	l := &link{
		t:    t,
		out:  make(chan outbound, c.cfg.OutboundQueue),
		done: make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = t.Close()
		return ErrClosed
	}
	c.link = l
	c.ack = ack
	c.setStateLocked(StateConnected)
	close(c.connected)
	hooks := append(([]func(envelope.Payload))(nil), c.hooks...)
	c.mu.Unlock()

	c.log.Info().Str("target", redactedTarget(c.target)).Msg("session.Connection.runLink connected")
	for _, fn := range hooks {
		go fn(ack.Clone())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx, l) })
	g.Go(func() error { return c.writeLoop(gctx, l) })
	if p, ok := t.(Pinger); ok && c.cfg.HeartbeatInterval > 0 {
		g.Go(func() error { return c.keepalive(gctx, p) })
	}
	g.Go(func() error {
		<-gctx.Done()
		_ = t.Close()
		return nil
	})
	err := g.Wait()

	c.mu.Lock()
	c.link = nil
	c.ack = nil
	c.connected = make(chan struct{})
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
	close(l.done)

	n := c.table.FailAll(ErrConnectionLost)
	observability.SetPendingRequests(c.id.PluginID, c.table.Len())
	if n > 0 {
		c.log.Warn().Int("failed_pending", n).Msg("session.Connection.runLink pending calls failed")
	}
	return err
}

func (c *Connection) readLoop(ctx context.Context, l *link) error {
	for {
		raw, err := l.t.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: read: %v", ErrConnectionLost, err)
		}
		env, err := c.cfg.Codec.Decode(raw)
		if err != nil {
			observability.RecordMalformedFrame(c.id.PluginID)
			c.log.Warn().Err(err).Int("bytes", len(raw)).Msg("session.Connection.readLoop malformed frame skipped")
			continue
		}
		observability.RecordFrame(c.id.PluginID, "in", string(env.Kind))
		c.route(l, env)
	}
}

func (c *Connection) route(l *link, env envelope.Envelope) {
	switch env.Kind {
	case envelope.KindResponse:
		c.table.Resolve(env.ID, correlation.Outcome{Data: env.Data})
	case envelope.KindError:
		method := ""
		if req, ok := c.table.Get(env.ID); ok {
			method = req.Method
		}
		c.table.Resolve(env.ID, correlation.Outcome{Err: remoteErrorFrom(method, env.Error)})
	case envelope.KindEvent:
		c.events.Dispatch(env.Topic, env.Data)
	case envelope.KindCall:
		c.rejectHostCall(l, env)
	}
}

func (c *Connection) rejectHostCall(l *link, env envelope.Envelope) {
	raw, err := c.cfg.Codec.Encode(envelope.NewError(env.ID, CodeUnsupported, "unsupported method: "+env.Method))
	if err != nil {
		c.log.Error().Err(err).Msg("session.Connection.rejectHostCall encode failed")
		return
	}
	select {
	case l.out <- outbound{raw: raw, kind: envelope.KindError}:
	default:
		c.log.Warn().Str("method", env.Method).Msg("session.Connection.rejectHostCall outbound queue full")
	}
}

func (c *Connection) writeLoop(ctx context.Context, l *link) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-l.out:
			wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
			err := l.t.WriteMessage(wctx, c.cfg.Codec.FrameType(), f.raw)
			cancel()
			if err != nil {
				return fmt.Errorf("%w: write: %v", ErrConnectionLost, err)
			}
			observability.RecordFrame(c.id.PluginID, "out", string(f.kind))
		}
	}
}

func (c *Connection) keepalive(ctx context.Context, p Pinger) error {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
			err := p.Ping(pctx)
			cancel()
			if err != nil {
				return fmt.Errorf("%w: ping: %v", ErrConnectionLost, err)
			}
		}
	}
}

// linkRetryDelay restarts the backoff only when the lost link had been stable,
// so a host that accepts and immediately drops still sees growing delays.
func (c *Connection) linkRetryDelay(upFor time.Duration) time.Duration {
	if upFor >= c.cfg.stableLinkAfter() {
		c.backoff.Reset()
	}
	return c.backoff.Next()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConnectionLost):
		return "connection_lost"
	case errors.Is(err, ErrRemote):
		return "remote_error"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
