// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/planner-dashboard/backend/internal/api/handlers"
	"github.com/planner-dashboard/backend/internal/api/middleware"
	"github.com/planner-dashboard/backend/internal/calendar"
	"github.com/planner-dashboard/backend/internal/storage"
	"github.com/planner-dashboard/backend/internal/websocket"
)

// Services are the collaborators the HTTP handlers work against.
type Services struct {
	Store     *calendar.Store
	Scheduler *calendar.ReminderScheduler
	Importer  *calendar.Importer
	Settings  handlers.SettingsStore
	Clock     calendar.Clock
	Location  *time.Location

	// Feeds and FeedSyncer back /feeds; the routes are omitted when Feeds is nil.
	Feeds      *storage.FeedRepository
	FeedSyncer *calendar.FeedSyncer

	// Gatherer backs /metrics; the route is omitted when nil.
	Gatherer prometheus.Gatherer
}

// NewRouter creates and configures the HTTP router with all API routes.
// db may be nil when running without persistence; staticDir may be empty
// when the frontend is served elsewhere.
func NewRouter(db *storage.DB, hub *websocket.Hub, staticDir string, svc Services) *mux.Router {
	if svc.Clock == nil {
		svc.Clock = calendar.RealClock{}
	}
	cal := handlers.Calendar{Store: svc.Store, Clock: svc.Clock, Location: svc.Location}
	broadcaster := websocket.NewEventBroadcaster(hub)

	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	if svc.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(svc.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	// API subrouter
	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(db, svc.Scheduler)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(cal, hub, svc.Scheduler)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(hub)).Methods("GET")

	// Event endpoints
	api.HandleFunc("/events", handlers.ListEvents(svc.Store)).Methods("GET")
	api.HandleFunc("/events", handlers.CreateEvent(svc.Store, svc.Settings)).Methods("POST")
	api.HandleFunc("/events/{id}", handlers.GetEvent(svc.Store)).Methods("GET")
	api.HandleFunc("/events/{id}", handlers.UpdateEvent(svc.Store)).Methods("PUT")
	api.HandleFunc("/events/{id}", handlers.DeleteEvent(svc.Store)).Methods("DELETE")

	// Reminder endpoints
	api.HandleFunc("/events/{id}/reminders", handlers.CreateReminder(svc.Store)).Methods("POST")
	api.HandleFunc("/events/{id}/reminders/{rid}", handlers.UpdateReminder(svc.Store)).Methods("PUT")
	api.HandleFunc("/events/{id}/reminders/{rid}", handlers.DeleteReminder(svc.Store)).Methods("DELETE")

	// Calendar views
	api.HandleFunc("/views/month", handlers.MonthView(cal)).Methods("GET")
	api.HandleFunc("/views/week", handlers.WeekView(cal)).Methods("GET")
	api.HandleFunc("/views/day", handlers.DayView(cal)).Methods("GET")
	api.HandleFunc("/upcoming", handlers.Upcoming(cal, svc.Settings)).Methods("GET")

	// Import and export
	if svc.Importer != nil {
		api.HandleFunc("/import", handlers.ImportCalendar(svc.Store, svc.Importer, broadcaster)).Methods("POST")
	}
	api.HandleFunc("/calendar.ics", handlers.ExportCalendar(cal)).Methods("GET")

	// Feed subscription endpoints
	if svc.Feeds != nil {
		api.HandleFunc("/feeds", handlers.ListFeeds(svc.Feeds)).Methods("GET")
		api.HandleFunc("/feeds", handlers.CreateFeed(svc.Feeds)).Methods("POST")
		api.HandleFunc("/feeds/{id}", handlers.GetFeed(svc.Feeds)).Methods("GET")
		api.HandleFunc("/feeds/{id}", handlers.UpdateFeed(svc.Feeds)).Methods("PUT")
		api.HandleFunc("/feeds/{id}", handlers.DeleteFeed(svc.Feeds)).Methods("DELETE")
		if svc.FeedSyncer != nil {
			api.HandleFunc("/feeds/{id}/sync", handlers.SyncFeed(svc.FeedSyncer)).Methods("POST")
		}
	}

	// Settings endpoints
	if svc.Settings != nil {
		api.HandleFunc("/settings", handlers.GetSettings(svc.Settings)).Methods("GET")
		api.HandleFunc("/settings", handlers.UpdateSettings(svc.Settings)).Methods("PUT")
	}

	// Serve static frontend files
	if staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	}

	return r
}
