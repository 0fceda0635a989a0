package correlation

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/tilepad-sdk/internal/protocol/envelope"
	"github.com/danmuck/tilepad-sdk/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errLost = errors.New("lost")

func TestRegisterResolveDeliversOnce(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable()
	id, w := tbl.Register("get_properties", time.Time{})
	require.NotEmpty(t, id)
	assert.Equal(t, id, w.ID())
	assert.Equal(t, 1, tbl.Len())

	assert.True(t, tbl.Resolve(id, Outcome{Data: envelope.Payload{"ok": true}}))
	assert.False(t, tbl.Resolve(id, Outcome{Data: envelope.Payload{"ok": false}}))
	assert.Equal(t, 0, tbl.Len())

	out := <-w.Done()
	assert.Equal(t, envelope.Payload{"ok": true}, out.Data)
	select {
	case extra := <-w.Done():
		t.Fatalf("second outcome delivered: %+v", extra)
	default:
	}
}

func TestResolveUnknownIsNoop(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable()
	assert.False(t, tbl.Resolve("missing", Outcome{}))
	assert.Equal(t, 0, tbl.FailAll(errLost))
}

func TestConcurrentCallsGetTheirOwnReplies(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable()
	const n = 200

	type reg struct {
		id string
		w  *Waiter
	}
	regs := make(chan reg, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, w := tbl.Register("echo", time.Time{})
			regs <- reg{id: id, w: w}
		}()
	}
	wg.Wait()
	close(regs)

	all := make([]reg, 0, n)
	for r := range regs {
		all = append(all, r)
	}
	require.Len(t, all, n)

	var rw sync.WaitGroup
	for _, r := range all {
		rw.Add(1)
		go func(r reg) {
			defer rw.Done()
			tbl.Resolve(r.id, Outcome{Data: envelope.Payload{"id": r.id}})
		}(r)
	}
	rw.Wait()

	for _, r := range all {
		out := <-r.w.Done()
		assert.Equal(t, r.id, out.Data["id"])
	}
	assert.Equal(t, 0, tbl.Len())
}

func TestFailAllResolvesEveryPendingOnce(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable()
	const n = 25
	waiters := make([]*Waiter, 0, n)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, w := tbl.Register(fmt.Sprintf("m%d", i), time.Time{})
		ids = append(ids, id)
		waiters = append(waiters, w)
	}

	assert.Equal(t, n, tbl.FailAll(errLost))
	assert.Equal(t, 0, tbl.FailAll(errLost))
	for _, id := range ids {
		assert.False(t, tbl.Resolve(id, Outcome{}))
	}
	for _, w := range waiters {
		out := <-w.Done()
		assert.ErrorIs(t, out.Err, errLost)
		assert.Len(t, w.Done(), 0)
	}
}

func TestRemoveDropsWithoutOutcome(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable()
	id, w := tbl.Register("slow", time.Now().Add(time.Second))
	assert.True(t, tbl.Remove(id))
	assert.False(t, tbl.Remove(id))
	assert.False(t, tbl.Resolve(id, Outcome{}))
	assert.Len(t, w.Done(), 0)
}

func TestPendingSnapshotOrdering(t *testing.T) {
	testlog.Start(t)
	base := time.Unix(1700000000, 0)
	tick := 0
	seq := 0
	tbl := NewTable(
		WithClock(func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		}),
		WithIDFunc(func() string {
			seq++
			return fmt.Sprintf("id-%02d", seq)
		}),
	)
	deadline := base.Add(time.Minute)
	tbl.Register(" get_properties ", deadline)
	tbl.Register("open_url", time.Time{})

	got := tbl.Pending()
	require.Len(t, got, 2)
	assert.Equal(t, "id-01", got[0].ID)
	assert.Equal(t, "get_properties", got[0].Method)
	assert.Equal(t, deadline, got[0].Deadline)
	assert.Equal(t, "id-02", got[1].ID)

	req, ok := tbl.Get("id-02")
	require.True(t, ok)
	assert.Equal(t, "open_url", req.Method)
}

func TestRegisterSkipsCollidingIDs(t *testing.T) {
	testlog.Start(t)
	ids := []string{"dup", "dup", "fresh"}
	i := 0
	tbl := NewTable(WithIDFunc(func() string {
		id := ids[i]
		i++
		return id
	}))
	first, _ := tbl.Register("a", time.Time{})
	second, _ := tbl.Register("b", time.Time{})
	assert.Equal(t, "dup", first)
	assert.Equal(t, "fresh", second)
}

func TestRegisterFallsBackWhenIDSourceIsStuck(t *testing.T) {
	testlog.Start(t)
	calls := 0
	tbl := NewTable(WithIDFunc(func() string {
		calls++
		return "same"
	}))
	first, _ := tbl.Register("a", time.Time{})
	second, _ := tbl.Register("b", time.Time{})
	third, _ := tbl.Register("c", time.Time{})

	assert.Equal(t, "same", first)
	assert.NotEqual(t, "same", second)
	assert.NotEmpty(t, second)
	assert.NotEqual(t, second, third)
	assert.Equal(t, 3, tbl.Len())
	assert.LessOrEqual(t, calls, 1+2*maxIDAttempts)
}

func TestRegisterNeverUsesEmptyID(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable(WithIDFunc(func() string { return "" }))
	id, _ := tbl.Register("a", time.Time{})
	assert.NotEmpty(t, id)
}
