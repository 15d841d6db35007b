// ABOUTME: End-to-end tests for the update orchestrator over a real store and httptest servers
// ABOUTME: Covers the spec scenarios: first fetch, 304, failures, batch isolation, in-flight bookkeeping

package update_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refeed/internal/fetch"
	"refeed/internal/inflight"
	"refeed/internal/models"
	"refeed/internal/schedule"
	"refeed/internal/store"
	"refeed/internal/update"
)

const feedBody = `<?xml version="1.0"?>
<rss version="2.0">
<channel>
  <title>T</title>
  <link>https://example.com</link>
  <language>en</language>
  <item>
    <guid>e1</guid>
    <title>First post</title>
    <link>https://example.com/1</link>
    <description>hello</description>
    <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
  </item>
</channel>
</rss>`

// feedServer serves a mutable body with an ETag, answering 304 to a matching
// If-None-Match.
type feedServer struct {
	mu   sync.Mutex
	body string
	etag string
}

func (f *feedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	body, etag := f.body, f.etag
	f.mu.Unlock()

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
	io.WriteString(w, body)
}

func (f *feedServer) set(body, etag string) {
	f.mu.Lock()
	f.body, f.etag = body, etag
	f.mu.Unlock()
}

type fixture struct {
	store   *store.Store
	tracker *inflight.Tracker
	svc     *update.Service
	resched *atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "refeed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tracker := inflight.NewTracker()
	t.Cleanup(tracker.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)

	var calls atomic.Int64
	resched := update.RescheduleFunc(func() { calls.Add(1) })

	fetcher := fetch.New(5*time.Second, "refeed-test/1.0")
	svc := update.New(st, fetcher, tracker, resched, log, 4)

	return &fixture{store: st, tracker: tracker, svc: svc, resched: &calls}
}

func (f *fixture) addSource(t *testing.T, url string) *models.Source {
	t.Helper()
	src := models.NewSource(url)
	require.NoError(t, f.store.CreateSource(context.Background(), src))
	return src
}

func TestRefreshSource_FirstFetch(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fs := &feedServer{body: feedBody, etag: `"v1"`}
	server := httptest.NewServer(fs)
	defer server.Close()

	src := fx.addSource(t, server.URL)
	before := time.Now().UTC().Add(-time.Second)

	require.NoError(t, fx.svc.RefreshSource(ctx, src.ID))

	// One entry row for uid e1
	entry, err := fx.store.EntryByKey(ctx, src.ID, "e1")
	require.NoError(t, err)
	assert.Equal(t, "First post", *entry.Title)
	assert.Equal(t, "hello", *entry.Content)
	require.NotNil(t, entry.PublishedAt)
	assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", *entry.PublishedRaw)

	got, err := fx.store.SourceByID(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", *got.Title)
	assert.Equal(t, "https://example.com", *got.Link)
	assert.Equal(t, "en", *got.Language)
	assert.Equal(t, `"v1"`, *got.ETag)
	assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", *got.LastModified)
	assert.Zero(t, got.RetryCount)
	assert.Nil(t, got.LastError)
	require.NotNil(t, got.RefreshedAt)
	assert.True(t, got.RefreshedAt.After(before))
	require.NotNil(t, got.NextDueAt)
	assert.True(t, got.NextDueAt.After(time.Now()), "next refresh scheduled in the future")
}

func TestRefreshSource_NotModified(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fs := &feedServer{body: feedBody, etag: `"v1"`}
	server := httptest.NewServer(fs)
	defer server.Close()

	src := fx.addSource(t, server.URL)
	require.NoError(t, fx.svc.RefreshSource(ctx, src.ID))

	first, err := fx.store.SourceByID(ctx, src.ID)
	require.NoError(t, err)
	firstEntry, err := fx.store.EntryByKey(ctx, src.ID, "e1")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	// Second fetch answers 304: no parsing, metadata untouched, clock advances
	require.NoError(t, fx.svc.RefreshSource(ctx, src.ID))

	second, err := fx.store.SourceByID(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.Title, *second.Title)
	assert.Equal(t, *first.ETag, *second.ETag)
	assert.Equal(t, *first.LastModified, *second.LastModified)
	assert.Zero(t, second.RetryCount)
	assert.True(t, second.RefreshedAt.After(*first.RefreshedAt), "refresh time advances on 304")

	secondEntry, err := fx.store.EntryByKey(ctx, src.ID, "e1")
	require.NoError(t, err)
	assert.Equal(t, firstEntry.UpdatedAt, secondEntry.UpdatedAt, "304 must not touch entries")

	count, err := fx.store.CountEntries(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRefreshSource_ReparseUpdatesSameRow(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fs := &feedServer{body: feedBody, etag: `"v1"`}
	server := httptest.NewServer(fs)
	defer server.Close()

	src := fx.addSource(t, server.URL)
	require.NoError(t, fx.svc.RefreshSource(ctx, src.ID))

	first, err := fx.store.EntryByKey(ctx, src.ID, "e1")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	// Same uid, new revision of the document
	fs.set(feedBody, `"v2"`)
	require.NoError(t, fx.svc.RefreshSource(ctx, src.ID))

	count, err := fx.store.CountEntries(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-parsing e1 must not duplicate the row")

	second, err := fx.store.EntryByKey(ctx, src.ID, "e1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.InsertedAt, second.InsertedAt, "insertion time set once")
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt), "update time refreshed on every parse")
}

func TestRefreshSource_TransportFailure(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	src := fx.addSource(t, server.URL)
	before := time.Now().UTC()
	require.NoError(t, fx.svc.RefreshSource(ctx, src.ID))

	got, err := fx.store.SourceByID(ctx, src.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastError)
	assert.NotEmpty(t, *got.LastError)
	assert.Equal(t, 1, got.RetryCount)
	assert.Nil(t, got.RefreshedAt, "failure must not advance the refresh time")
	require.NotNil(t, got.NextDueAt)
	expected := schedule.Retry(got.Mode, 1, before)
	assert.WithinDuration(t, expected, *got.NextDueAt, 5*time.Second)
}

func TestRefreshSource_RetryCountGrowsAndResets(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fs := &feedServer{body: feedBody, etag: `"v1"`}
	var failing atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fs.ServeHTTP(w, r)
	}))
	defer server.Close()

	src := fx.addSource(t, server.URL)

	failing.Store(true)
	require.NoError(t, fx.svc.RefreshSource(ctx, src.ID))
	require.NoError(t, fx.svc.RefreshSource(ctx, src.ID))

	got, err := fx.store.SourceByID(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, "unexpected status code: 502", *got.LastError)

	failing.Store(false)
	require.NoError(t, fx.svc.RefreshSource(ctx, src.ID))

	got, err = fx.store.SourceByID(ctx, src.ID)
	require.NoError(t, err)
	assert.Zero(t, got.RetryCount, "success resets the retry counter")
	assert.Nil(t, got.LastError)
}

func TestRefreshSource_ParseFailureRollsBack(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fs := &feedServer{body: feedBody, etag: `"v1"`}
	server := httptest.NewServer(fs)
	defer server.Close()

	src := fx.addSource(t, server.URL)
	require.NoError(t, fx.svc.RefreshSource(ctx, src.ID))

	before, err := fx.store.EntryByKey(ctx, src.ID, "e1")
	require.NoError(t, err)

	// New revision is garbage; the cycle must fail without touching entries
	fs.set("definitely not a feed", `"v2"`)
	require.NoError(t, fx.svc.RefreshSource(ctx, src.ID))

	got, err := fx.store.SourceByID(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "T", *got.Title, "failed cycle must not change metadata")
	assert.Equal(t, `"v1"`, *got.ETag, "failed cycle must not change validators")

	after, err := fx.store.EntryByKey(ctx, src.ID, "e1")
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt, "rolled-back cycle must not touch entries")
}

func TestRefreshSource_UnknownIDIsNoOp(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.svc.RefreshSource(context.Background(), 9999))
	assert.Empty(t, fx.tracker.Snapshot())
}

func TestRefreshSource_InFlightSpan(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		io.WriteString(w, feedBody)
	}))
	defer server.Close()

	src := fx.addSource(t, server.URL)

	done := make(chan error, 1)
	go func() { done <- fx.svc.RefreshSource(ctx, src.ID) }()

	require.Eventually(t, func() bool {
		return fx.tracker.Contains(src.ID)
	}, 2*time.Second, 5*time.Millisecond, "source should be in flight during its cycle")

	close(release)
	require.NoError(t, <-done)
	assert.False(t, fx.tracker.Contains(src.ID), "source must leave the in-flight set at cycle end")
}

func TestRefreshOutdated_BatchIsolationAndReschedule(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	good := httptest.NewServer(&feedServer{body: feedBody, etag: `"v1"`})
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	goodSrc := fx.addSource(t, good.URL)
	badSrc := fx.addSource(t, bad.URL)

	require.NoError(t, fx.svc.RefreshOutdated(ctx, false))

	assert.Equal(t, int64(1), fx.resched.Load(), "exactly one reschedule per batch")

	// The failing sibling did not stop the good one
	count, err := fx.store.CountEntries(ctx, goodSrc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	gotBad, err := fx.store.SourceByID(ctx, badSrc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotBad.RetryCount)

	assert.Empty(t, fx.tracker.Snapshot(), "no in-flight marks may leak")
}

func TestRefreshOutdated_EmptyBatchStillReschedules(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.svc.RefreshOutdated(context.Background(), false))
	assert.Equal(t, int64(1), fx.resched.Load())
}

func TestRefreshOutdated_SkipsNotDueSources(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, feedBody)
	}))
	defer server.Close()

	src := fx.addSource(t, server.URL)
	require.NoError(t, fx.store.UpdateSourceFields(ctx, src.ID, store.Fields{
		"next_due_at":  time.Now().UTC().Add(time.Hour),
		"refreshed_at": time.Now().UTC(),
	}))

	require.NoError(t, fx.svc.RefreshOutdated(ctx, false))
	assert.Zero(t, hits.Load(), "a source scheduled in the future must not be fetched")
}
