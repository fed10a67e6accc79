package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/planner-dashboard/backend/internal/api/middleware"
	"github.com/planner-dashboard/backend/internal/calendar"
	"github.com/planner-dashboard/backend/internal/storage/models"
)

// Calendar supplies the read side of the calendar page: the store plus the
// notion of "today" in the user's time zone.
type Calendar struct {
	Store    *calendar.Store
	Clock    calendar.Clock
	Location *time.Location
}

// Today returns the current calendar day.
func (c Calendar) Today() models.Date {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return models.DateOf(c.Clock.Now().In(loc))
}

// MonthView returns a handler that builds the month grid. year and month
// default to the current month.
func MonthView(cal Calendar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		today := cal.Today()
		year, month := today.Year, today.Month

		q := r.URL.Query()
		if v := q.Get("year"); v != "" {
			y, err := strconv.Atoi(v)
			if err != nil || y < 1 || y > 9999 {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid year")
				return
			}
			year = y
		}
		if v := q.Get("month"); v != "" {
			m, err := strconv.Atoi(v)
			if err != nil || m < 1 || m > 12 {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid month")
				return
			}
			month = time.Month(m)
		}

		view := calendar.BuildMonthView(cal.Store.List(), year, month, today)
		middleware.WriteJSON(w, http.StatusOK, view)
	}
}

// WeekView returns a handler that builds the Sunday-first week containing date.
func WeekView(cal Calendar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, ok := dateParam(w, r, cal)
		if !ok {
			return
		}

		view := calendar.BuildWeekView(cal.Store.List(), ref)
		middleware.WriteJSON(w, http.StatusOK, view)
	}
}

// DayView returns a handler that builds the hourly view of date.
func DayView(cal Calendar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, ok := dateParam(w, r, cal)
		if !ok {
			return
		}

		view := calendar.BuildDayView(cal.Store.List(), date)
		middleware.WriteJSON(w, http.StatusOK, view)
	}
}

// UpcomingResponse lists the next events from today on.
type UpcomingResponse struct {
	Today  models.Date    `json:"today"`
	Events []models.Event `json:"events"`
}

// Upcoming returns a handler that selects the next n events. n defaults to
// the upcoming count from settings.
func Upcoming(cal Calendar, settings SettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := models.DefaultUpcomingCount
		if settings != nil {
			if prefs, err := settings.Get(r.Context()); err == nil {
				n = prefs.UpcomingCount
			}
		}
		if v := r.URL.Query().Get("n"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 0 {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid n")
				return
			}
			n = parsed
		}

		today := cal.Today()
		middleware.WriteJSON(w, http.StatusOK, UpcomingResponse{
			Today:  today,
			Events: calendar.Upcoming(cal.Store.List(), today, n),
		})
	}
}

func dateParam(w http.ResponseWriter, r *http.Request, cal Calendar) (models.Date, bool) {
	v := r.URL.Query().Get("date")
	if v == "" {
		return cal.Today(), true
	}
	d, err := models.ParseDate(v)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid date")
		return models.Date{}, false
	}
	return d, true
}
