// ABOUTME: Tests for the background poll trigger
// ABOUTME: Covers delay clamping and coalesced reschedule requests

package poll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClampDelay(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	floor := time.Minute

	// Nothing scheduled: idle
	assert.Equal(t, idleDelay, clampDelay(nil, now, floor))

	// Due in the future: wait until then
	next := now.Add(10 * time.Minute)
	assert.Equal(t, 10*time.Minute, clampDelay(&next, now, floor))

	// Already overdue: clamp to the floor instead of spinning
	past := now.Add(-time.Hour)
	assert.Equal(t, floor, clampDelay(&past, now, floor))

	// Due sooner than the floor: floor wins
	soon := now.Add(time.Second)
	assert.Equal(t, floor, clampDelay(&soon, now, floor))
}

func TestReschedule_NeverBlocks(t *testing.T) {
	p := New(nil, nil, time.Minute, nil)
	// With no loop draining the channel, repeated calls must coalesce
	for i := 0; i < 10; i++ {
		p.Reschedule()
	}
	assert.Len(t, p.kick, 1)
}
