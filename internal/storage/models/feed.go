package models

import (
	"time"
)

// FeedSubscription is an iCal feed that is re-imported on an interval.
type FeedSubscription struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	URL             string     `json:"url"`
	SyncIntervalMin int        `json:"sync_interval_min"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	SyncStatus      string     `json:"sync_status"`
	SyncError       *string    `json:"sync_error,omitempty"`
	Enabled         bool       `json:"enabled"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SyncStatus constants
const (
	SyncStatusPending = "pending"
	SyncStatusSyncing = "syncing"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// Feed sync interval bounds, in minutes.
const (
	DefaultFeedSyncIntervalMin = 60
	MinFeedSyncIntervalMin     = 5
)

// Due reports whether the feed should be synced at now.
func (f FeedSubscription) Due(now time.Time) bool {
	if !f.Enabled {
		return false
	}
	if f.LastSyncAt == nil {
		return true
	}
	return !now.Before(f.LastSyncAt.Add(time.Duration(f.SyncIntervalMin) * time.Minute))
}

// FeedSyncResult contains the results of a feed sync.
type FeedSyncResult struct {
	FeedID      string    `json:"feed_id"`
	FeedName    string    `json:"feed_name"`
	EventsFound int       `json:"events_found"`
	Created     int       `json:"created"`
	Updated     int       `json:"updated"`
	Removed     int       `json:"removed"`
	Error       error     `json:"-"`
	SyncedAt    time.Time `json:"synced_at"`
}
