package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

// ErrFeedNotFound is returned when a feed subscription does not exist.
var ErrFeedNotFound = errors.New("feed not found")

const feedColumns = `id, name, url, sync_interval_min, last_sync_at, sync_status,
	sync_error, enabled, created_at, updated_at`

// FeedRepository provides data access for feed subscriptions.
type FeedRepository struct {
	BaseRepository
}

// NewFeedRepository creates a new feed repository.
func NewFeedRepository(db *DB) *FeedRepository {
	return &FeedRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new feed subscription and fills in its ID and status.
func (r *FeedRepository) Create(ctx context.Context, feed *models.FeedSubscription) error {
	feed.ID = uuid.NewString()
	feed.CreatedAt = r.Now()
	feed.UpdatedAt = feed.CreatedAt
	feed.SyncStatus = models.SyncStatusPending
	feed.LastSyncAt = nil
	feed.SyncError = nil

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO feed_subscriptions (
			id, name, url, sync_interval_min, sync_status, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		feed.ID, feed.Name, feed.URL, feed.SyncIntervalMin,
		feed.SyncStatus, feed.Enabled, feed.CreatedAt, feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting feed: %w", err)
	}

	return nil
}

// GetByID retrieves a feed by its ID. It returns nil when there is none.
func (r *FeedRepository) GetByID(ctx context.Context, id string) (*models.FeedSubscription, error) {
	feeds, err := r.query(ctx, "SELECT "+feedColumns+" FROM feed_subscriptions WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(feeds) == 0 {
		return nil, nil
	}
	return &feeds[0], nil
}

// List retrieves all feed subscriptions by name.
func (r *FeedRepository) List(ctx context.Context) ([]models.FeedSubscription, error) {
	return r.query(ctx, "SELECT "+feedColumns+" FROM feed_subscriptions ORDER BY name")
}

// ListEnabled retrieves enabled feeds, least recently synced first.
func (r *FeedRepository) ListEnabled(ctx context.Context) ([]models.FeedSubscription, error) {
	return r.query(ctx, "SELECT "+feedColumns+` FROM feed_subscriptions
		WHERE enabled = 1
		ORDER BY last_sync_at ASC NULLS FIRST`)
}

// Update stores a feed's editable fields.
func (r *FeedRepository) Update(ctx context.Context, feed *models.FeedSubscription) error {
	feed.UpdatedAt = r.Now()

	result, err := r.DB().ExecContext(ctx, `
		UPDATE feed_subscriptions SET
			name = ?, url = ?, sync_interval_min = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`,
		feed.Name, feed.URL, feed.SyncIntervalMin, feed.Enabled, feed.UpdatedAt, feed.ID,
	)
	if err != nil {
		return fmt.Errorf("updating feed: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("updating feed %s: %w", feed.ID, ErrFeedNotFound)
	}
	return nil
}

// UpdateSyncStatus records the outcome of a sync. A successful sync also
// moves last_sync_at forward; syncError is cleared unless given.
func (r *FeedRepository) UpdateSyncStatus(ctx context.Context, id string, status string, syncError *string) error {
	now := r.Now()
	var lastSyncAt any
	if status == models.SyncStatusSuccess {
		lastSyncAt = now
	}

	_, err := r.DB().ExecContext(ctx, `
		UPDATE feed_subscriptions SET
			sync_status = ?, sync_error = ?, last_sync_at = COALESCE(?, last_sync_at), updated_at = ?
		WHERE id = ?
	`, status, syncError, lastSyncAt, now, id)
	if err != nil {
		return fmt.Errorf("updating sync status: %w", err)
	}

	return nil
}

// Delete removes a feed by ID together with its imported UID list.
func (r *FeedRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, "DELETE FROM feed_subscriptions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting feed: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("deleting feed %s: %w", id, ErrFeedNotFound)
	}
	return nil
}

// EventUIDs returns the external UIDs the feed imported on its last sync.
func (r *FeedRepository) EventUIDs(ctx context.Context, feedID string) ([]string, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT external_uid FROM feed_events WHERE feed_id = ? ORDER BY external_uid
	`, feedID)
	if err != nil {
		return nil, fmt.Errorf("querying feed events: %w", err)
	}
	defer rows.Close()

	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scanning feed event: %w", err)
		}
		uids = append(uids, uid)
	}

	return uids, rows.Err()
}

// SetEventUIDs replaces the external UIDs recorded for a feed.
func (r *FeedRepository) SetEventUIDs(ctx context.Context, feedID string, uids []string) error {
	return r.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM feed_events WHERE feed_id = ?", feedID); err != nil {
			return fmt.Errorf("deleting feed events: %w", err)
		}

		for _, uid := range uids {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO feed_events (feed_id, external_uid) VALUES (?, ?)
			`, feedID, uid); err != nil {
				return fmt.Errorf("inserting feed event: %w", err)
			}
		}

		return nil
	})
}

func (r *FeedRepository) query(ctx context.Context, query string, args ...any) ([]models.FeedSubscription, error) {
	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying feeds: %w", err)
	}
	defer rows.Close()

	var feeds []models.FeedSubscription
	for rows.Next() {
		var f models.FeedSubscription
		if err := rows.Scan(
			&f.ID, &f.Name, &f.URL, &f.SyncIntervalMin,
			&f.LastSyncAt, &f.SyncStatus, &f.SyncError,
			&f.Enabled, &f.CreatedAt, &f.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning feed: %w", err)
		}
		feeds = append(feeds, f)
	}

	return feeds, rows.Err()
}
