package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/planner-dashboard/backend/internal/api/middleware"
	"github.com/planner-dashboard/backend/internal/storage/models"
)

// SettingsRequest updates calendar preferences. Omitted fields keep their
// current value.
type SettingsRequest struct {
	DefaultView      *string            `json:"default_view"`
	UpcomingCount    *int               `json:"upcoming_count"`
	DefaultReminders *[]ReminderRequest `json:"default_reminders"`
}

// GetSettings returns all settings.
func GetSettings(settings SettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefs, err := settings.Get(r.Context())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query settings")
			return
		}

		middleware.WriteJSON(w, http.StatusOK, prefs)
	}
}

// UpdateSettings updates settings.
func UpdateSettings(settings SettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req SettingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		prefs, err := settings.Get(ctx)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query settings")
			return
		}

		if err := applySettings(&prefs, req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}

		if err := settings.Update(ctx, prefs); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to update settings")
			return
		}

		middleware.WriteJSON(w, http.StatusOK, prefs)
	}
}

func applySettings(prefs *models.CalendarSettings, req SettingsRequest) error {
	if req.DefaultView != nil {
		if !models.ValidView(*req.DefaultView) {
			return fmt.Errorf("default_view must be month, week or day")
		}
		prefs.DefaultView = *req.DefaultView
	}
	if req.UpcomingCount != nil {
		if *req.UpcomingCount < 1 {
			return fmt.Errorf("upcoming_count must be at least 1")
		}
		prefs.UpcomingCount = *req.UpcomingCount
	}
	if req.DefaultReminders != nil {
		reminders := make([]models.Reminder, 0, len(*req.DefaultReminders))
		for i, rr := range *req.DefaultReminders {
			rem, err := rr.toReminder()
			if err != nil {
				return fmt.Errorf("default reminder %d: %w", i, err)
			}
			rem.ID = i + 1
			reminders = append(reminders, rem)
		}
		prefs.DefaultReminders = reminders
	}
	return nil
}
