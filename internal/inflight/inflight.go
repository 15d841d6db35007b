// ABOUTME: Process-wide set of source ids currently being refreshed
// ABOUTME: Owned by a single goroutine; all reads and writes funnel through its op channel

package inflight

import (
	"context"
	"sort"

	"github.com/samber/lo"
)

type op struct {
	fn   func(set map[int64]struct{})
	done chan struct{}
}

// Tracker publishes which sources have a refresh cycle in progress. It exists
// for observers (progress output, status views); it does not gate concurrent
// refreshes of the same source.
//
// A single goroutine owns the underlying set. Every operation is submitted to
// that goroutine and completes in submission order, so a Track followed by a
// read on any goroutine observes the id.
type Tracker struct {
	ops chan op
}

// NewTracker starts the owning goroutine.
func NewTracker() *Tracker {
	t := &Tracker{ops: make(chan op)}
	go t.run()
	return t
}

func (t *Tracker) run() {
	set := make(map[int64]struct{})
	for o := range t.ops {
		o.fn(set)
		close(o.done)
	}
}

// Track marks a source as having an active refresh cycle. It fails only when
// ctx is cancelled before the op is accepted; once accepted it completes, so
// a nil return always means the mark landed and the caller owes a Forget.
func (t *Tracker) Track(ctx context.Context, id int64) error {
	o := op{fn: func(set map[int64]struct{}) { set[id] = struct{}{} }, done: make(chan struct{})}
	select {
	case t.ops <- o:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-o.done
	return nil
}

// Forget unmarks a source. It takes no context and cannot fail: the unmark
// must run even when the cycle that marked the source was cancelled.
// Forgetting an id that is not tracked is a no-op.
func (t *Tracker) Forget(id int64) {
	o := op{fn: func(set map[int64]struct{}) { delete(set, id) }, done: make(chan struct{})}
	t.ops <- o
	<-o.done
}

// Contains reports whether a source currently has an active cycle.
func (t *Tracker) Contains(id int64) bool {
	var found bool
	t.do(func(set map[int64]struct{}) {
		_, found = set[id]
	})
	return found
}

// Snapshot returns the tracked ids in ascending order.
func (t *Tracker) Snapshot() []int64 {
	var ids []int64
	t.do(func(set map[int64]struct{}) {
		ids = lo.Keys(set)
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close stops the owning goroutine. The tracker must not be used afterwards.
func (t *Tracker) Close() {
	close(t.ops)
}

func (t *Tracker) do(fn func(set map[int64]struct{})) {
	o := op{fn: fn, done: make(chan struct{})}
	t.ops <- o
	<-o.done
}
