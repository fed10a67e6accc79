package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

// Setting keys
const (
	settingDefaultView      = "default_view"
	settingUpcomingCount    = "upcoming_count"
	settingDefaultReminders = "default_reminders"
)

// SettingsRepository provides data access for calendar preferences.
type SettingsRepository struct {
	BaseRepository
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Get returns the stored settings. Missing or unreadable keys fall back
// to their defaults.
func (r *SettingsRepository) Get(ctx context.Context) (models.CalendarSettings, error) {
	settings := models.DefaultCalendarSettings()

	rows, err := r.DB().QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return settings, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, fmt.Errorf("scanning setting: %w", err)
		}

		switch key {
		case settingDefaultView:
			if models.ValidView(value) {
				settings.DefaultView = value
			}
		case settingUpcomingCount:
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				settings.UpcomingCount = n
			}
		case settingDefaultReminders:
			var reminders []models.Reminder
			if err := json.Unmarshal([]byte(value), &reminders); err == nil && reminders != nil {
				settings.DefaultReminders = reminders
			}
		}
	}

	return settings, rows.Err()
}

// Update stores every field of settings.
func (r *SettingsRepository) Update(ctx context.Context, settings models.CalendarSettings) error {
	reminders := settings.DefaultReminders
	if reminders == nil {
		reminders = []models.Reminder{}
	}
	encoded, err := json.Marshal(reminders)
	if err != nil {
		return fmt.Errorf("encoding default reminders: %w", err)
	}

	values := map[string]string{
		settingDefaultView:      settings.DefaultView,
		settingUpcomingCount:    strconv.Itoa(settings.UpcomingCount),
		settingDefaultReminders: string(encoded),
	}

	return r.Transaction(ctx, func(tx *sql.Tx) error {
		for key, value := range values {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
			`, key, value, r.Now())
			if err != nil {
				return fmt.Errorf("updating setting %s: %w", key, err)
			}
		}
		return nil
	})
}
