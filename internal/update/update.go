// ABOUTME: Update orchestrator driving the fetch, parse, merge, and ledger pipeline
// ABOUTME: Refreshes one source or all due sources; failures stay local to their cycle

package update

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"refeed/internal/fetch"
	"refeed/internal/inflight"
	"refeed/internal/models"
	"refeed/internal/parse"
	"refeed/internal/schedule"
	"refeed/internal/store"
)

// LaunchGrace widens the due horizon for the first batch after startup, so a
// process that slept past its schedule catches up immediately.
const LaunchGrace = 5 * time.Minute

// Rescheduler retimes the background trigger after a batch refresh. The
// trigger mechanism itself lives outside the pipeline.
type Rescheduler interface {
	Reschedule()
}

// RescheduleFunc adapts a plain function to the Rescheduler interface.
type RescheduleFunc func()

func (f RescheduleFunc) Reschedule() { f() }

// Service coordinates refresh cycles over many independent sources.
type Service struct {
	store       *store.Store
	fetcher     *fetch.Fetcher
	tracker     *inflight.Tracker
	resched     Rescheduler
	log         *logrus.Logger
	concurrency int
	now         func() time.Time
}

// New creates a Service. concurrency bounds how many source cycles run at
// once during a batch refresh.
func New(st *store.Store, f *fetch.Fetcher, tracker *inflight.Tracker, resched Rescheduler, log *logrus.Logger, concurrency int) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		store:       st,
		fetcher:     f,
		tracker:     tracker,
		resched:     resched,
		log:         log,
		concurrency: concurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// InFlight exposes the ids of sources with an active cycle, for observers.
func (s *Service) InFlight() []int64 {
	return s.tracker.Snapshot()
}

// RefreshSource runs one full update cycle for a single source. A missing id
// is a no-op. Fetch, parse, and merge failures are recorded in the source's
// ledger row and do not surface as an error; only infrastructure failures
// (store unreachable, context cancelled before the cycle starts) do.
func (s *Service) RefreshSource(ctx context.Context, id int64) error {
	src, err := s.store.SourceByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		s.log.WithField("source_id", id).Debug("refresh requested for unknown source")
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.tracker.Track(ctx, id); err != nil {
		return err
	}
	// The unmark is the one step that must survive cancellation.
	defer s.tracker.Forget(id)

	s.refresh(ctx, src)
	return nil
}

// RefreshOutdated refreshes every due source concurrently and waits for the
// whole batch. One source's failure never aborts its siblings. The background
// trigger is rescheduled exactly once per batch, whatever the outcomes.
func (s *Service) RefreshOutdated(ctx context.Context, atLaunch bool) error {
	defer s.resched.Reschedule()

	sources, err := s.store.DueSources(ctx, s.now(), atLaunch, LaunchGrace)
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"due":       len(sources),
		"at_launch": atLaunch,
	}).Info("starting batch refresh")

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, src := range sources {
		g.Go(func() error {
			if err := s.RefreshSource(ctx, src.ID); err != nil {
				s.log.WithError(err).WithField("source_id", src.ID).Warn("refresh cycle aborted")
			}
			return nil
		})
	}
	return g.Wait()
}

// refresh runs the fetch → parse/merge → ledger chain for one source. Every
// failure path lands in recordFailure; nothing escapes the cycle.
func (s *Service) refresh(ctx context.Context, src *models.Source) {
	log := s.log.WithFields(logrus.Fields{"source_id": src.ID, "url": src.URL})

	result, err := s.fetcher.Fetch(ctx, src.URL, src.ETag, src.LastModified)
	if err != nil {
		s.recordFailure(ctx, src, err)
		return
	}

	now := s.now()

	if result.NotModified {
		// 304 skips parsing entirely; metadata and validators stay untouched.
		fields := successFields(src, now)
		if err := s.store.UpdateSourceFields(ctx, src.ID, fields); err != nil {
			log.WithError(err).Error("failed to record unmodified refresh")
			return
		}
		log.WithField("outcome", "unmodified").Debug("refresh finished")
		return
	}

	var merged int
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		m := &merger{ctx: ctx, tx: tx, sourceID: src.ID, now: now}
		if err := parse.Walk(bytes.NewReader(result.Body), src.URL, m); err != nil {
			return err
		}
		merged = m.count

		fields := successFields(src, now)
		applyMetadata(fields, m.info)
		applyValidators(fields, result)
		return tx.SetSourceFields(ctx, src.ID, fields)
	})
	if err != nil {
		s.recordFailure(ctx, src, err)
		return
	}

	log.WithFields(logrus.Fields{
		"outcome": "changed",
		"entries": merged,
	}).Debug("refresh finished")
}

// recordFailure writes the failure ledger path: message, bumped retry count,
// and a backed-off next due time. The last successful refresh time is left
// alone.
func (s *Service) recordFailure(ctx context.Context, src *models.Source, cause error) {
	now := s.now()
	retries := src.RetryCount + 1
	fields := store.Fields{
		"last_error":  failureMessage(cause),
		"retry_count": retries,
		"next_due_at": schedule.Retry(src.Mode, retries, now),
	}

	log := s.log.WithFields(logrus.Fields{
		"source_id": src.ID,
		"url":       src.URL,
		"retries":   retries,
	})
	if err := s.store.UpdateSourceFields(ctx, src.ID, fields); err != nil {
		log.WithError(err).Error("failed to record refresh failure")
		return
	}
	log.WithField("cause", failureMessage(cause)).Warn("refresh failed")
}

// merger bridges parser events into the cycle transaction.
type merger struct {
	ctx      context.Context
	tx       *store.Tx
	sourceID int64
	now      time.Time
	info     *parse.FeedInfo
	count    int
}

func (m *merger) FeedInfo(info parse.FeedInfo) error {
	m.info = &info
	return nil
}

func (m *merger) Item(item parse.Item) error {
	entry := models.NewEntry(m.sourceID, item.UID)
	entry.InsertedAt = m.now
	entry.UpdatedAt = m.now
	setString(&entry.Title, item.Title)
	setString(&entry.Link, item.Link)
	setString(&entry.Author, item.Author)
	setString(&entry.PublishedRaw, item.PublishedRaw)
	entry.PublishedAt = item.PublishedAt
	if content := NormalizeContent(item.Content); content != "" {
		entry.Content = &content
	}

	if err := m.tx.UpsertEntry(m.ctx, entry); err != nil {
		return err
	}
	m.count++
	return nil
}

func setString(dst **string, val string) {
	if val != "" {
		*dst = &val
	}
}
