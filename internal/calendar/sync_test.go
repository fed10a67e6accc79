package calendar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

type fakeFeedStore struct {
	mu       sync.Mutex
	feeds    map[string]*models.FeedSubscription
	uids     map[string][]string
	statuses []string
}

func newFakeFeedStore(feeds ...models.FeedSubscription) *fakeFeedStore {
	s := &fakeFeedStore{feeds: make(map[string]*models.FeedSubscription), uids: make(map[string][]string)}
	for i := range feeds {
		f := feeds[i]
		s.feeds[f.ID] = &f
	}
	return s
}

func (s *fakeFeedStore) GetByID(ctx context.Context, id string) (*models.FeedSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.feeds[id]
	if !ok {
		return nil, nil
	}
	out := *f
	return &out, nil
}

func (s *fakeFeedStore) ListEnabled(ctx context.Context) ([]models.FeedSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FeedSubscription
	for _, f := range s.feeds {
		if f.Enabled {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (s *fakeFeedStore) UpdateSyncStatus(ctx context.Context, id string, status string, syncError *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.feeds[id]
	f.SyncStatus = status
	f.SyncError = syncError
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeFeedStore) EventUIDs(ctx context.Context, feedID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uids[feedID]...), nil
}

func (s *fakeFeedStore) SetEventUIDs(ctx context.Context, feedID string, uids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uids[feedID] = append([]string(nil), uids...)
	return nil
}

func vevent(uid, start, summary string) string {
	return "BEGIN:VEVENT\r\nUID:" + uid + "\r\nDTSTAMP:20250601T000000Z\r\nDTSTART:" + start +
		"\r\nSUMMARY:" + summary + "\r\nEND:VEVENT\r\n"
}

func vcalendar(events ...string) string {
	return "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" + strings.Join(events, "") + "END:VCALENDAR\r\n"
}

// feedServer serves whatever body is current; an empty body is a 500.
type feedServer struct {
	mu   sync.Mutex
	body string
}

func (f *feedServer) set(body string) {
	f.mu.Lock()
	f.body = body
	f.mu.Unlock()
}

func (f *feedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	body := f.body
	f.mu.Unlock()
	if body == "" {
		http.Error(w, "unavailable", http.StatusInternalServerError)
		return
	}
	w.Write([]byte(body))
}

func newSyncFixture(t *testing.T) (*FeedSyncer, *fakeFeedStore, *Store, *feedServer) {
	t.Helper()
	feed := &feedServer{}
	srv := httptest.NewServer(feed)
	t.Cleanup(srv.Close)

	clock := NewFakeClock(time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC))
	store := NewStore(clock)
	feeds := newFakeFeedStore(models.FeedSubscription{
		ID: "f1", Name: "Team", URL: srv.URL + "/team.ics", SyncIntervalMin: 60, Enabled: true,
	})
	return NewFeedSyncer(feeds, store, NewImporter(time.UTC, 90, clock)), feeds, store, feed
}

func TestFeedSyncRemovesFutureEventsDroppedFromFeed(t *testing.T) {
	ctx := context.Background()
	syncer, feeds, store, feed := newSyncFixture(t)

	feed.set(vcalendar(
		vevent("a@x", "20250610T090000Z", "Kickoff"),
		vevent("b@x", "20250612T090000Z", "Retro"),
		vevent("c@x", "20250520T090000Z", "Old demo"),
	))
	result, err := syncer.SyncFeed(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, "Team", result.FeedName)
	assert.Equal(t, 3, store.Len())

	feed.set(vcalendar(vevent("a@x", "20250610T100000Z", "Kickoff")))
	result, err = syncer.SyncFeed(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Removed)

	_, ok := store.FindByExternalUID("b@x")
	assert.False(t, ok, "future event dropped from the feed is removed")
	_, ok = store.FindByExternalUID("c@x")
	assert.True(t, ok, "past events are kept")

	kickoff, _ := store.FindByExternalUID("a@x")
	assert.Equal(t, "10:00", kickoff.Time)

	uids, _ := feeds.EventUIDs(ctx, "f1")
	assert.Equal(t, []string{"a@x"}, uids)
	assert.Equal(t, models.SyncStatusSuccess, feeds.feeds["f1"].SyncStatus)
}

func TestFeedSyncRecordsErrors(t *testing.T) {
	syncer, feeds, store, _ := newSyncFixture(t)

	var got []models.FeedSyncResult
	syncer.OnSynced(func(r models.FeedSyncResult) { got = append(got, r) })

	result, err := syncer.SyncFeed(context.Background(), "f1")
	require.Error(t, err)
	assert.Equal(t, err, result.Error)
	assert.Zero(t, store.Len())

	f := feeds.feeds["f1"]
	assert.Equal(t, models.SyncStatusError, f.SyncStatus)
	require.NotNil(t, f.SyncError)
	assert.Contains(t, *f.SyncError, "500")
	assert.Equal(t, []string{models.SyncStatusSyncing, models.SyncStatusError}, feeds.statuses)
	require.Len(t, got, 1)
	assert.Equal(t, "f1", got[0].FeedID)
}

func TestFeedSyncUnknownFeed(t *testing.T) {
	syncer, _, _, _ := newSyncFixture(t)
	_, err := syncer.SyncFeed(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrFeedNotFound))
}

func TestFeedSyncDueSkipsRecentAndDisabledFeeds(t *testing.T) {
	syncer, feeds, store, feed := newSyncFixture(t)
	feed.set(vcalendar(vevent("a@x", "20250610T090000Z", "Kickoff")))

	recent := time.Date(2025, time.June, 1, 11, 30, 0, 0, time.UTC)
	feeds.feeds["recent"] = &models.FeedSubscription{ID: "recent", URL: feeds.feeds["f1"].URL, SyncIntervalMin: 60, Enabled: true, LastSyncAt: &recent}
	feeds.feeds["off"] = &models.FeedSubscription{ID: "off", URL: feeds.feeds["f1"].URL, SyncIntervalMin: 60}

	results := syncer.SyncDue(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, "f1", results[0].FeedID)
	assert.Equal(t, 1, store.Len())
}

func TestFeedDue(t *testing.T) {
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-time.Hour)

	assert.True(t, models.FeedSubscription{Enabled: true}.Due(now))
	assert.True(t, models.FeedSubscription{Enabled: true, SyncIntervalMin: 60, LastSyncAt: &last}.Due(now))
	assert.False(t, models.FeedSubscription{Enabled: true, SyncIntervalMin: 61, LastSyncAt: &last}.Due(now))
	assert.False(t, models.FeedSubscription{SyncIntervalMin: 5}.Due(now))
}
