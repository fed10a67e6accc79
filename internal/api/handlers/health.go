// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/planner-dashboard/backend/internal/api/middleware"
	"github.com/planner-dashboard/backend/internal/calendar"
	"github.com/planner-dashboard/backend/internal/storage"
	"github.com/planner-dashboard/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status           string `json:"status"`
	DBConnected      bool   `json:"db_connected"`
	SchedulerRunning bool   `json:"scheduler_running"`
}

// HealthCheck returns a handler that performs a health check. A nil db
// means the server runs without persistence.
func HealthCheck(db *storage.DB, scheduler *calendar.ReminderScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db == nil || db.Healthy(r.Context())

		status := "healthy"
		if !dbConnected {
			status = "degraded"
		}

		code := http.StatusOK
		if status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		middleware.WriteJSON(w, code, HealthResponse{
			Status:           status,
			DBConnected:      dbConnected,
			SchedulerRunning: scheduler != nil && scheduler.Running(),
		})
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	Today             string `json:"today"`
	EventsCount       int    `json:"events_count"`
	PendingReminders  int    `json:"pending_reminders"`
	ConnectedClients  int    `json:"connected_clients"`
	NotifyingClients  int    `json:"notifying_clients"`
	TickIntervalSec   int    `json:"tick_interval_sec"`
	NextReminderCheck string `json:"next_reminder_check,omitempty"`
}

// Status returns a handler that provides system status information.
func Status(cal Calendar, hub *websocket.Hub, scheduler *calendar.ReminderScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events := cal.Store.List()

		pending := 0
		for _, e := range events {
			pending += e.PendingReminders()
		}

		response := StatusResponse{
			Today:            cal.Today().String(),
			EventsCount:      len(events),
			PendingReminders: pending,
		}
		if hub != nil {
			response.ConnectedClients = hub.ClientCount()
			response.NotifyingClients = hub.GrantedCount()
		}
		if scheduler != nil {
			response.TickIntervalSec = int(scheduler.TickInterval() / time.Second)
			if next := scheduler.NextRun(); next != nil {
				response.NextReminderCheck = next.Format(time.RFC3339)
			}
		}

		middleware.WriteJSON(w, http.StatusOK, response)
	}
}
