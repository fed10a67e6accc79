package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/planner-dashboard/backend/internal/api/middleware"
	"github.com/planner-dashboard/backend/internal/calendar"
	"github.com/planner-dashboard/backend/internal/storage/models"
)

// DefaultEventTime is used when a create request leaves time blank.
const DefaultEventTime = "09:00"

// SettingsStore reads and writes calendar preferences.
type SettingsStore interface {
	Get(ctx context.Context) (models.CalendarSettings, error)
	Update(ctx context.Context, settings models.CalendarSettings) error
}

// ParticipantList accepts either a JSON array of names or the
// comma-separated text typed into the event form.
type ParticipantList []string

func (p *ParticipantList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return err
		}
		*p = models.ParseParticipants(text)
		return nil
	}
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	*p = models.CleanParticipants(names)
	return nil
}

// ReminderRequest is the body for creating or editing a reminder.
type ReminderRequest struct {
	OffsetMinutes int    `json:"offset_minutes"`
	Channel       string `json:"channel"`
}

func (r ReminderRequest) toReminder() (models.Reminder, error) {
	ch, err := models.ParseChannel(r.Channel)
	if err != nil {
		return models.Reminder{}, err
	}
	rem := models.Reminder{OffsetMinutes: r.OffsetMinutes, Channel: ch}
	return rem, rem.Validate()
}

// EventRequest is the body for creating or replacing an event.
type EventRequest struct {
	Title        string             `json:"title"`
	Date         string             `json:"date"`
	Time         string             `json:"time"`
	Type         string             `json:"type"`
	Description  string             `json:"description"`
	Participants ParticipantList    `json:"participants"`
	Reminders    *[]ReminderRequest `json:"reminders"`
}

func (req EventRequest) toDraft() (models.EventDraft, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return models.EventDraft{}, errors.New("title is required")
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return models.EventDraft{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	eventType := models.EventTypeMeeting
	if req.Type != "" {
		if eventType, err = models.ParseEventType(req.Type); err != nil {
			return models.EventDraft{}, err
		}
	}
	eventTime := strings.TrimSpace(req.Time)
	if eventTime == "" {
		eventTime = DefaultEventTime
	}

	draft := models.EventDraft{
		Title:        title,
		Date:         date,
		Time:         eventTime,
		Type:         eventType,
		Description:  strings.TrimSpace(req.Description),
		Participants: []string(req.Participants),
		Source:       models.SourceLocal,
	}
	if req.Reminders != nil {
		draft.Reminders = make([]models.Reminder, 0, len(*req.Reminders))
		for i, rr := range *req.Reminders {
			rem, err := rr.toReminder()
			if err != nil {
				return models.EventDraft{}, fmt.Errorf("reminder %d: %w", i, err)
			}
			draft.Reminders = append(draft.Reminders, rem)
		}
	}
	return draft, nil
}

// ListEvents returns a handler that lists events in insertion order.
// Optional query parameters: from, to (inclusive dates) and type.
func ListEvents(store *calendar.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var from, to models.Date
		var err error
		if v := q.Get("from"); v != "" {
			if from, err = models.ParseDate(v); err != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid from date")
				return
			}
		}
		if v := q.Get("to"); v != "" {
			if to, err = models.ParseDate(v); err != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid to date")
				return
			}
		}
		var eventType models.EventType
		if v := q.Get("type"); v != "" {
			if eventType, err = models.ParseEventType(v); err != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, err.Error())
				return
			}
		}

		events := make([]models.Event, 0)
		for _, e := range store.List() {
			if !from.IsZero() && e.Date.Before(from) {
				continue
			}
			if !to.IsZero() && e.Date.After(to) {
				continue
			}
			if eventType != "" && e.Type != eventType {
				continue
			}
			events = append(events, e)
		}

		middleware.WriteJSON(w, http.StatusOK, events)
	}
}

// GetEvent returns a handler that retrieves a single event.
func GetEvent(store *calendar.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := eventID(w, r)
		if !ok {
			return
		}

		event, found := store.Get(id)
		if !found {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Event not found")
			return
		}

		middleware.WriteJSON(w, http.StatusOK, event)
	}
}

// CreateEvent returns a handler that adds an event. When the request has
// no reminders field, the default reminders from settings are attached.
func CreateEvent(store *calendar.Store, settings SettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		draft, err := req.toDraft()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}

		if req.Reminders == nil && settings != nil {
			prefs, err := settings.Get(r.Context())
			if err != nil {
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to load settings")
				return
			}
			draft.Reminders = append([]models.Reminder(nil), prefs.DefaultReminders...)
		}

		event := store.Add(r.Context(), draft)
		middleware.WriteJSON(w, http.StatusCreated, event)
	}
}

// UpdateEvent returns a handler that replaces an event's fields. Omitting
// the reminders field keeps the existing reminders and their fired state;
// a reminders list replaces them with new pending reminders.
func UpdateEvent(store *calendar.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := eventID(w, r)
		if !ok {
			return
		}

		var req EventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		draft, err := req.toDraft()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}

		event, err := store.Modify(r.Context(), id, func(e *models.Event) {
			kept := e.Reminders
			source, uid := e.Source, e.ExternalUID
			*e = draft.WithID(id)
			e.Source, e.ExternalUID = source, uid
			if req.Reminders == nil {
				e.Reminders = kept
			}
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}

		middleware.WriteJSON(w, http.StatusOK, event)
	}
}

// DeleteEvent returns a handler that removes an event. Deleting an
// unknown event succeeds.
func DeleteEvent(store *calendar.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := eventID(w, r)
		if !ok {
			return
		}

		store.Remove(r.Context(), id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// CreateReminder returns a handler that attaches a reminder to an event.
func CreateReminder(store *calendar.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := eventID(w, r)
		if !ok {
			return
		}

		var req ReminderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		rem, err := req.toReminder()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}

		created, err := store.AddReminder(r.Context(), id, rem.OffsetMinutes, rem.Channel)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		middleware.WriteJSON(w, http.StatusCreated, created)
	}
}

// UpdateReminder returns a handler that edits a reminder. The reminder
// becomes pending again.
func UpdateReminder(store *calendar.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := eventID(w, r)
		if !ok {
			return
		}
		rid, ok := reminderID(w, r)
		if !ok {
			return
		}

		var req ReminderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		rem, err := req.toReminder()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}
		rem.ID = rid

		if err := store.UpdateReminder(r.Context(), id, rem); err != nil {
			writeStoreError(w, err)
			return
		}

		middleware.WriteJSON(w, http.StatusOK, rem)
	}
}

// DeleteReminder returns a handler that removes a reminder from an event.
func DeleteReminder(store *calendar.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := eventID(w, r)
		if !ok {
			return
		}
		rid, ok := reminderID(w, r)
		if !ok {
			return
		}

		if err := store.RemoveReminder(r.Context(), id, rid); err != nil {
			writeStoreError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func eventID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid event ID")
		return 0, false
	}
	return id, true
}

func reminderID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["rid"])
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid reminder ID")
		return 0, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, calendar.ErrEventNotFound):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Event not found")
	case errors.Is(err, calendar.ErrReminderNotFound):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Reminder not found")
	case errors.Is(err, calendar.ErrInvalidReminder):
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
	default:
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to update event")
	}
}
