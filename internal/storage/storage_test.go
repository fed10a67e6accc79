package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "planner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = RunMigrations(context.Background(), db)
	require.NoError(t, err)
	return db
}

func sampleEvent(id int64) models.Event {
	return models.Event{
		ID:           id,
		Title:        "Standup",
		Date:         models.NewDate(2025, time.June, 10),
		Time:         "09:00",
		Type:         models.EventTypeMeeting,
		Description:  "Daily sync",
		Participants: []string{"Ana", "Ben"},
		Reminders: []models.Reminder{
			{ID: 1, OffsetMinutes: 30, Channel: models.ChannelNotification},
			{ID: 2, OffsetMinutes: 60, Channel: models.ChannelEmail, Fired: true},
		},
		Source: models.SourceLocal,
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db := newTestDB(t)

	ran, err := RunMigrations(context.Background(), db)
	require.NoError(t, err)
	assert.Empty(t, ran)
}

func TestRunMigrationsRecordsSchemaFiles(t *testing.T) {
	ctx := context.Background()
	db, err := NewDB(filepath.Join(t.TempDir(), "planner.db"))
	require.NoError(t, err)
	defer db.Close()

	files, err := schemaFiles()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(files), 2)
	assert.Equal(t, "001_initial.sql", files[0].name)
	assert.Equal(t, "002_feeds.sql", files[1].name)

	ran, err := RunMigrations(ctx, db)
	require.NoError(t, err)
	require.Len(t, ran, len(files))

	applied, err := appliedMigrations(ctx, db.DB)
	require.NoError(t, err)
	for _, f := range files {
		assert.True(t, applied[f.name], f.name)
	}
}

func TestEventRepositorySaveAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(newTestDB(t))

	require.NoError(t, repo.Save(ctx, sampleEvent(200)))
	other := sampleEvent(100)
	other.Title = "Lunch"
	other.Participants = nil
	other.Reminders = nil
	other.ExternalUID = "abc@example.com"
	other.Source = models.SourceExternal
	require.NoError(t, repo.Save(ctx, other))

	events, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, int64(100), events[0].ID)
	assert.Equal(t, "Lunch", events[0].Title)
	assert.Empty(t, events[0].Participants)
	assert.Empty(t, events[0].Reminders)
	assert.Equal(t, "abc@example.com", events[0].ExternalUID)
	assert.Equal(t, models.SourceExternal, events[0].Source)

	got := events[1]
	want := sampleEvent(200)
	assert.Equal(t, want.Date, got.Date)
	assert.Equal(t, want.Time, got.Time)
	assert.Equal(t, want.Type, got.Type)
	assert.Equal(t, want.Description, got.Description)
	assert.Equal(t, want.Participants, got.Participants)
	assert.Equal(t, want.Reminders, got.Reminders)
}

func TestEventRepositorySaveReplacesReminders(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(newTestDB(t))

	e := sampleEvent(1)
	require.NoError(t, repo.Save(ctx, e))

	e.Title = "Standup (moved)"
	e.Reminders = []models.Reminder{{ID: 3, OffsetMinutes: 5, Channel: models.ChannelEmail}}
	require.NoError(t, repo.Save(ctx, e))

	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Standup (moved)", got.Title)
	assert.Equal(t, e.Reminders, got.Reminders)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEventRepositoryDeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewEventRepository(db)

	require.NoError(t, repo.EventSaved(ctx, sampleEvent(7), true))
	require.NoError(t, repo.EventRemoved(ctx, 7))
	require.NoError(t, repo.EventRemoved(ctx, 7))

	got, err := repo.GetByID(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got)

	var reminders int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reminders").Scan(&reminders))
	assert.Zero(t, reminders)
}

func TestEventRepositoryRejectsInvalidReminder(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(newTestDB(t))

	e := sampleEvent(1)
	e.Reminders = []models.Reminder{{ID: 1, OffsetMinutes: 0, Channel: models.ChannelEmail}}
	assert.Error(t, repo.Save(ctx, e))

	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got, "failed save must roll back the event row")
}

func TestSettingsRepositoryDefaults(t *testing.T) {
	repo := NewSettingsRepository(newTestDB(t))

	settings, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultCalendarSettings(), settings)
}

func TestSettingsRepositoryUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository(newTestDB(t))

	want := models.CalendarSettings{
		DefaultView:   models.ViewWeek,
		UpcomingCount: 8,
		DefaultReminders: []models.Reminder{
			{ID: 1, OffsetMinutes: 15, Channel: models.ChannelNotification},
		},
	}
	require.NoError(t, repo.Update(ctx, want))

	got, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSettingsRepositoryIgnoresBadValues(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSettingsRepository(db)

	_, err := db.ExecContext(ctx, "UPDATE settings SET value = 'year' WHERE key = 'default_view'")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "UPDATE settings SET value = '-3' WHERE key = 'upcoming_count'")
	require.NoError(t, err)

	got, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ViewMonth, got.DefaultView)
	assert.Equal(t, models.DefaultUpcomingCount, got.UpcomingCount)
}

func TestFeedRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewFeedRepository(newTestDB(t))

	feed := &models.FeedSubscription{Name: "Team", URL: "https://example.com/team.ics", SyncIntervalMin: 30, Enabled: true}
	require.NoError(t, repo.Create(ctx, feed))
	assert.NotEmpty(t, feed.ID)
	assert.Equal(t, models.SyncStatusPending, feed.SyncStatus)

	other := &models.FeedSubscription{Name: "Holidays", URL: "https://example.com/h.ics", SyncIntervalMin: 60}
	require.NoError(t, repo.Create(ctx, other))

	got, err := repo.GetByID(ctx, feed.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Team", got.Name)
	assert.True(t, got.Enabled)
	assert.Nil(t, got.LastSyncAt)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Holidays", all[0].Name)

	enabled, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, feed.ID, enabled[0].ID)

	msg := "boom"
	require.NoError(t, repo.UpdateSyncStatus(ctx, feed.ID, models.SyncStatusError, &msg))
	got, _ = repo.GetByID(ctx, feed.ID)
	assert.Equal(t, models.SyncStatusError, got.SyncStatus)
	require.NotNil(t, got.SyncError)
	assert.Equal(t, "boom", *got.SyncError)
	assert.Nil(t, got.LastSyncAt)

	require.NoError(t, repo.UpdateSyncStatus(ctx, feed.ID, models.SyncStatusSuccess, nil))
	got, _ = repo.GetByID(ctx, feed.ID)
	assert.Nil(t, got.SyncError)
	require.NotNil(t, got.LastSyncAt)

	got.Name = "Team calendar"
	got.Enabled = false
	require.NoError(t, repo.Update(ctx, got))
	got, _ = repo.GetByID(ctx, feed.ID)
	assert.Equal(t, "Team calendar", got.Name)
	assert.False(t, got.Enabled)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.ErrorIs(t, repo.Update(ctx, &models.FeedSubscription{ID: "nope", SyncIntervalMin: 60}), ErrFeedNotFound)
}

func TestFeedRepositoryEventUIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewFeedRepository(newTestDB(t))

	feed := &models.FeedSubscription{Name: "Team", URL: "https://example.com/team.ics", SyncIntervalMin: 30, Enabled: true}
	require.NoError(t, repo.Create(ctx, feed))

	require.NoError(t, repo.SetEventUIDs(ctx, feed.ID, []string{"b@x", "a@x", "a@x"}))
	uids, err := repo.EventUIDs(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x", "b@x"}, uids)

	require.NoError(t, repo.SetEventUIDs(ctx, feed.ID, []string{"c@x"}))
	uids, _ = repo.EventUIDs(ctx, feed.ID)
	assert.Equal(t, []string{"c@x"}, uids)

	require.NoError(t, repo.Delete(ctx, feed.ID))
	uids, _ = repo.EventUIDs(ctx, feed.ID)
	assert.Empty(t, uids)
	assert.ErrorIs(t, repo.Delete(ctx, feed.ID), ErrFeedNotFound)
}

func TestDSN(t *testing.T) {
	file := dsn("/data/planner.db")
	assert.True(t, strings.HasPrefix(file, "file:/data/planner.db?"))
	assert.Contains(t, file, "_journal_mode=WAL")
	assert.Contains(t, file, "_foreign_keys=on")

	mem := dsn(MemoryPath)
	assert.True(t, strings.HasPrefix(mem, "file::memory:?"))
	assert.NotContains(t, mem, "_journal_mode")
}

func TestMemoryDatabase(t *testing.T) {
	ctx := context.Background()
	db, err := NewDB(MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = RunMigrations(ctx, db)
	require.NoError(t, err)
	assert.True(t, db.Healthy(ctx))

	repo := NewSettingsRepository(db)
	prefs, err := repo.Get(ctx)
	require.NoError(t, err)
	prefs.UpcomingCount = 3
	require.NoError(t, repo.Update(ctx, prefs))

	got, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got.UpcomingCount)
}
