package calendar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

// DefaultFeedCheckInterval is how often subscribed feeds are checked for a due sync.
const DefaultFeedCheckInterval = time.Minute

// ErrFeedNotFound is returned when syncing an unknown feed.
var ErrFeedNotFound = errors.New("feed not found")

// FeedStore persists feed subscriptions and the event UIDs each one imported.
type FeedStore interface {
	GetByID(ctx context.Context, id string) (*models.FeedSubscription, error)
	ListEnabled(ctx context.Context) ([]models.FeedSubscription, error)
	UpdateSyncStatus(ctx context.Context, id string, status string, syncError *string) error
	EventUIDs(ctx context.Context, feedID string) ([]string, error)
	SetEventUIDs(ctx context.Context, feedID string, uids []string) error
}

// FeedSyncer keeps subscribed iCal feeds imported into the store. Future
// events that disappear from a feed are removed; past ones are kept.
type FeedSyncer struct {
	feeds    FeedStore
	store    *Store
	importer *Importer
	onSynced func(models.FeedSyncResult)

	// syncMu serializes syncs so two runs never diff the same feed at once.
	syncMu sync.Mutex

	taskMu sync.Mutex
	task   *PeriodicTask
}

// NewFeedSyncer creates a syncer that imports with importer into store.
func NewFeedSyncer(feeds FeedStore, store *Store, importer *Importer) *FeedSyncer {
	return &FeedSyncer{
		feeds:    feeds,
		store:    store,
		importer: importer,
	}
}

// OnSynced registers a callback run after every sync attempt.
func (s *FeedSyncer) OnSynced(fn func(models.FeedSyncResult)) {
	s.onSynced = fn
}

// SyncFeed synchronizes a single feed and returns the result.
func (s *FeedSyncer) SyncFeed(ctx context.Context, feedID string) (*models.FeedSyncResult, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	feed, err := s.feeds.GetByID(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("getting feed: %w", err)
	}
	if feed == nil {
		return nil, fmt.Errorf("syncing feed %s: %w", feedID, ErrFeedNotFound)
	}

	result, err := s.sync(ctx, *feed)
	if s.onSynced != nil {
		s.onSynced(*result)
	}
	return result, err
}

// SyncDue synchronizes every enabled feed whose interval has elapsed.
func (s *FeedSyncer) SyncDue(ctx context.Context) []models.FeedSyncResult {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	feeds, err := s.feeds.ListEnabled(ctx)
	if err != nil {
		log.Printf("Error listing feeds: %v", err)
		return nil
	}

	now := s.importer.clock.Now()
	var results []models.FeedSyncResult
	for _, feed := range feeds {
		if !feed.Due(now) {
			continue
		}
		result, err := s.sync(ctx, feed)
		if err != nil {
			log.Printf("Error syncing feed %s: %v", feed.Name, err)
		}
		if s.onSynced != nil {
			s.onSynced(*result)
		}
		results = append(results, *result)
	}
	return results
}

func (s *FeedSyncer) sync(ctx context.Context, feed models.FeedSubscription) (*models.FeedSyncResult, error) {
	result := &models.FeedSyncResult{
		FeedID:   feed.ID,
		FeedName: feed.Name,
		SyncedAt: s.importer.clock.Now().UTC(),
	}

	if err := s.feeds.UpdateSyncStatus(ctx, feed.ID, models.SyncStatusSyncing, nil); err != nil {
		log.Printf("Failed to update sync status: %v", err)
	}

	drafts, err := s.importer.FetchAndParse(ctx, feed.URL)
	if err != nil {
		msg := err.Error()
		if err := s.feeds.UpdateSyncStatus(ctx, feed.ID, models.SyncStatusError, &msg); err != nil {
			log.Printf("Failed to update sync status: %v", err)
		}
		result.Error = err
		return result, err
	}

	applied := s.importer.Apply(ctx, s.store, drafts)
	result.EventsFound = applied.EventsFound
	result.Created = applied.Created
	result.Updated = applied.Updated

	current := make(map[string]bool, len(drafts))
	uids := make([]string, 0, len(drafts))
	for _, d := range drafts {
		if !current[d.ExternalUID] {
			current[d.ExternalUID] = true
			uids = append(uids, d.ExternalUID)
		}
	}

	removed, err := s.removeStale(ctx, feed.ID, current)
	if err != nil {
		log.Printf("Error removing stale events for feed %s: %v", feed.Name, err)
	}
	result.Removed = removed

	if err := s.feeds.SetEventUIDs(ctx, feed.ID, uids); err != nil {
		log.Printf("Failed to record feed events: %v", err)
	}
	if err := s.feeds.UpdateSyncStatus(ctx, feed.ID, models.SyncStatusSuccess, nil); err != nil {
		log.Printf("Failed to update sync status: %v", err)
	}

	log.Printf("Synced feed %s: %d events (%d created, %d updated, %d removed)",
		feed.Name, result.EventsFound, result.Created, result.Updated, result.Removed)
	return result, nil
}

// removeStale deletes events the feed imported before but no longer lists.
func (s *FeedSyncer) removeStale(ctx context.Context, feedID string, current map[string]bool) (int, error) {
	previous, err := s.feeds.EventUIDs(ctx, feedID)
	if err != nil {
		return 0, fmt.Errorf("listing feed events: %w", err)
	}

	today := models.DateOf(s.importer.clock.Now().In(s.importer.location))
	removed := 0
	for _, uid := range previous {
		if current[uid] {
			continue
		}
		event, ok := s.store.FindByExternalUID(uid)
		if !ok || event.Date.Before(today) {
			continue
		}
		if s.store.Remove(ctx, event.ID) {
			removed++
		}
	}
	return removed, nil
}

// Start begins checking feeds every interval. The first check runs at once.
func (s *FeedSyncer) Start(ctx context.Context, interval time.Duration) error {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	if s.task != nil {
		return nil
	}
	if interval <= 0 {
		interval = DefaultFeedCheckInterval
	}

	task, err := StartPeriodic(interval, func() {
		s.SyncDue(context.Background())
	})
	if err != nil {
		return err
	}
	s.task = task

	go s.SyncDue(ctx)

	log.Printf("Feed syncer started (checking every %s)", interval)
	return nil
}

// Stop cancels the timer and waits for an in-flight check.
func (s *FeedSyncer) Stop() {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	if s.task == nil {
		return
	}
	s.task.Cancel()
	s.task = nil
	log.Println("Feed syncer stopped")
}
