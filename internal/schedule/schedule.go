// ABOUTME: Pure cadence and backoff calculator for source refresh scheduling
// ABOUTME: Maps (mode, retry count, now) to the next eligible refresh time

package schedule

import (
	"hash/fnv"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"refeed/internal/models"
)

// Cadence returns the regular refresh interval for a mode. Manual sources are
// excluded from the due query, but still get a nominal daily cadence so their
// ledger rows carry a sane next-due time.
func Cadence(mode models.UpdateMode) time.Duration {
	switch mode {
	case models.ModeFrequent:
		return 30 * time.Minute
	case models.ModeDaily, models.ModeManual:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// Regular computes the next scheduled refresh after a success. The result is
// always strictly after now. A deterministic per-source stagger of up to 10%
// of the cadence spreads sources sharing a cadence across the interval.
func Regular(sourceID int64, mode models.UpdateMode, now time.Time) time.Time {
	cadence := Cadence(mode)
	return now.Add(cadence + stagger(sourceID, cadence/10))
}

// Retry computes the next refresh after the retryCount-th consecutive
// failure. The delay starts at an eighth of the cadence (floored at one
// minute), doubles with each failure, and is capped at the cadence itself.
// Non-decreasing in retryCount; deterministic given its inputs.
func Retry(mode models.UpdateMode, retryCount int, now time.Time) time.Time {
	cadence := Cadence(mode)
	initial := cadence / 8
	if initial < time.Minute {
		initial = time.Minute
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.RandomizationFactor = 0 // keep the curve deterministic
	b.Multiplier = 2
	b.MaxInterval = cadence
	b.MaxElapsedTime = 0
	b.Reset() // pick up the overridden initial interval

	delay := initial
	for i := 0; i < retryCount; i++ {
		delay = b.NextBackOff()
	}
	return now.Add(delay)
}

// stagger derives a stable offset in [0, max) from the source id.
func stagger(sourceID int64, max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	h := fnv.New64a()
	h.Write([]byte(strconv.FormatInt(sourceID, 10)))
	return time.Duration(h.Sum64() % uint64(max))
}
