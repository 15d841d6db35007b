// ABOUTME: Tests for the in-flight tracker
// ABOUTME: Covers add-then-read ordering, cancellation-proof Forget, and concurrent use

package inflight_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refeed/internal/inflight"
)

func TestTracker_TrackThenRead(t *testing.T) {
	tracker := inflight.NewTracker()
	defer tracker.Close()

	ctx := context.Background()
	require.NoError(t, tracker.Track(ctx, 42))

	assert.True(t, tracker.Contains(42))
	assert.Equal(t, []int64{42}, tracker.Snapshot())

	tracker.Forget(42)
	assert.False(t, tracker.Contains(42))
	assert.Empty(t, tracker.Snapshot())
}

func TestTracker_ForgetIsIdempotent(t *testing.T) {
	tracker := inflight.NewTracker()
	defer tracker.Close()

	tracker.Forget(7)
	tracker.Forget(7)
	assert.Empty(t, tracker.Snapshot())
}

func TestTracker_TrackCancelledContext(t *testing.T) {
	tracker := inflight.NewTracker()
	defer tracker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Regardless of whether the mark landed before cancellation won the race,
	// Forget must leave the set clean.
	_ = tracker.Track(ctx, 9)
	tracker.Forget(9)
	assert.False(t, tracker.Contains(9))
}

func TestTracker_SnapshotSorted(t *testing.T) {
	tracker := inflight.NewTracker()
	defer tracker.Close()

	ctx := context.Background()
	for _, id := range []int64{30, 10, 20} {
		require.NoError(t, tracker.Track(ctx, id))
	}
	assert.Equal(t, []int64{10, 20, 30}, tracker.Snapshot())
}

func TestTracker_Concurrent(t *testing.T) {
	tracker := inflight.NewTracker()
	defer tracker.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := tracker.Track(ctx, id); err != nil {
				t.Errorf("Track(%d): %v", id, err)
				return
			}
			if !tracker.Contains(id) {
				t.Errorf("expected %d in flight after Track", id)
			}
			tracker.Forget(id)
		}(i)
	}
	wg.Wait()

	assert.Empty(t, tracker.Snapshot(), "every cycle must unmark itself")
}
