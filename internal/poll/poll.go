// ABOUTME: Background trigger for batch refreshes
// ABOUTME: A timer loop that retimes itself to the earliest scheduled source

package poll

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// idleDelay is used when no source has a scheduled refresh at all.
const idleDelay = 15 * time.Minute

// Refresher runs one batch refresh of all due sources.
type Refresher interface {
	RefreshOutdated(ctx context.Context, atLaunch bool) error
}

// DueTimes reports the earliest scheduled refresh across sources.
type DueTimes interface {
	NextDueTime(ctx context.Context) (*time.Time, error)
}

// Poller drives the pipeline on a timer. After every batch the orchestrator
// calls Reschedule, which retimes the next tick to the earliest due source,
// clamped by a floor so errored sources cannot spin the loop.
type Poller struct {
	refresher Refresher
	due       DueTimes
	floor     time.Duration
	log       *logrus.Logger
	kick      chan struct{}
}

// New creates a Poller. floor is the minimum delay between batches.
func New(refresher Refresher, due DueTimes, floor time.Duration, log *logrus.Logger) *Poller {
	if floor <= 0 {
		floor = time.Minute
	}
	return &Poller{
		refresher: refresher,
		due:       due,
		floor:     floor,
		log:       log,
		kick:      make(chan struct{}, 1),
	}
}

// Reschedule asks the loop to recompute its next tick. Never blocks; calls
// while a recompute is already pending coalesce.
func (p *Poller) Reschedule() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run executes the poll loop until ctx is cancelled. The first batch treats
// the process as freshly launched.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.refresher.RefreshOutdated(ctx, true); err != nil {
		p.log.WithError(err).Error("launch refresh failed")
	}

	timer := time.NewTimer(p.delay(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(p.delay(ctx))
		case <-timer.C:
			if err := p.refresher.RefreshOutdated(ctx, false); err != nil {
				p.log.WithError(err).Error("batch refresh failed")
			}
			timer.Reset(p.delay(ctx))
		}
	}
}

func (p *Poller) delay(ctx context.Context) time.Duration {
	next, err := p.due.NextDueTime(ctx)
	if err != nil {
		p.log.WithError(err).Warn("could not read next due time")
		return p.floor
	}
	d := clampDelay(next, time.Now(), p.floor)
	p.log.WithField("delay", d).Debug("next batch scheduled")
	return d
}

// clampDelay converts the earliest due time into a timer delay, no shorter
// than floor, idling when nothing is scheduled.
func clampDelay(next *time.Time, now time.Time, floor time.Duration) time.Duration {
	if next == nil {
		return idleDelay
	}
	d := next.Sub(now)
	if d < floor {
		return floor
	}
	return d
}
