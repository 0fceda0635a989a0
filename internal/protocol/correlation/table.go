package correlation

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/tilepad-sdk/internal/protocol/envelope"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Outcome is the single resolution delivered to a waiter.
type Outcome struct {
	Data envelope.Payload
	Err  error
}

// PendingRequest describes one call awaiting its reply.
type PendingRequest struct {
	ID           string
	Method       string
	RegisteredAt time.Time
	Deadline     time.Time
}

// Waiter receives exactly one Outcome.
type Waiter struct {
	id string
	ch chan Outcome
}

func (w *Waiter) ID() string { return w.id }

// Done yields the outcome once the request is resolved.
func (w *Waiter) Done() <-chan Outcome { return w.ch }

type entry struct {
	req    PendingRequest
	waiter *Waiter
}

// Table maps outstanding correlation ids to their waiters.
type Table struct {
	mu    sync.Mutex
	items map[string]entry
	newID func() string
	now   func() time.Time
	log   zerolog.Logger
}

type Option func(*Table)

// WithIDFunc overrides correlation id generation.
func WithIDFunc(fn func() string) Option {
	return func(t *Table) {
		if fn != nil {
			t.newID = fn
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(t *Table) { t.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(t *Table) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTable(opts ...Option) *Table {
	t := &Table{
		items: make(map[string]entry),
		newID: NewID,
		now:   time.Now,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// maxIDAttempts bounds retries against a custom id source before falling back to NewID.
const maxIDAttempts = 8

// NewID returns a time-ordered UUID (v7), falling back to v4.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Register allocates a fresh id and a single-resolution waiter.
func (t *Table) Register(method string, deadline time.Time) (string, *Waiter) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.newID()
	for tries := 1; ; tries++ {
		if _, exists := t.items[id]; !exists && id != "" {
			break
		}
		if tries >= maxIDAttempts {
			t.log.Warn().Int("attempts", tries).Msg("correlation.Table.Register id source keeps colliding, using uuid")
			id = NewID()
			continue
		}
		id = t.newID()
	}
	w := &Waiter{id: id, ch: make(chan Outcome, 1)}
	t.items[id] = entry{
		req: PendingRequest{
			ID:           id,
			Method:       strings.TrimSpace(method),
			RegisteredAt: t.now(),
			Deadline:     deadline,
		},
		waiter: w,
	}
	return id, w
}

// Resolve removes id and delivers out to its waiter. Unknown ids are ignored.
func (t *Table) Resolve(id string, out Outcome) bool {
	t.mu.Lock()
	e, ok := t.items[id]
	if ok {
		delete(t.items, id)
	}
	t.mu.Unlock()

	if !ok {
		t.log.Debug().Str("id", id).Msg("correlation.Table.Resolve unknown id ignored")
		return false
	}
	e.waiter.ch <- out
	return true
}

// Remove drops id without delivering an outcome.
func (t *Table) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.items[id]; !ok {
		return false
	}
	delete(t.items, id)
	return true
}

// FailAll resolves every pending request with err and returns how many were failed.
func (t *Table) FailAll(err error) int {
	t.mu.Lock()
	drained := make([]entry, 0, len(t.items))
	for id, e := range t.items {
		drained = append(drained, e)
		delete(t.items, id)
	}
	t.mu.Unlock()

	for _, e := range drained {
		e.waiter.ch <- Outcome{Err: err}
	}
	if len(drained) > 0 {
		t.log.Debug().Int("count", len(drained)).Err(err).Msg("correlation.Table.FailAll")
	}
	return len(drained)
}

func (t *Table) Get(id string) (PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.items[id]
	return e.req, ok
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Pending returns a snapshot ordered by registration time, then id.
func (t *Table) Pending() []PendingRequest {
	t.mu.Lock()
	out := make([]PendingRequest, 0, len(t.items))
	for _, e := range t.items {
		out = append(out, e.req)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out
}
