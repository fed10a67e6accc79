package handlers

import (
	"encoding/json"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/planner-dashboard/backend/internal/api/middleware"
	"github.com/planner-dashboard/backend/internal/calendar"
	"github.com/planner-dashboard/backend/internal/storage/models"
	"github.com/planner-dashboard/backend/internal/websocket"
)

const maxImportBytes = 10 << 20

// ImportRequest names an iCal feed to import.
type ImportRequest struct {
	URL string `json:"url"`
}

// ImportCalendar returns a handler that imports external events. The body
// is either JSON {"url": ...} or raw iCalendar data.
func ImportCalendar(store *calendar.Store, importer *calendar.Importer, broadcaster *websocket.EventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

		var (
			drafts []models.EventDraft
			err    error
			source = "upload"
		)

		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "application/json" {
			var req ImportRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
				return
			}
			if !validFeedURL(req.URL) {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "url must be an http(s) URL")
				return
			}
			source = req.URL
			drafts, err = importer.FetchAndParse(ctx, req.URL)
		} else {
			drafts, err = importer.Parse(r.Body)
		}

		if err != nil {
			log.Printf("Calendar import from %s failed: %v", source, err)
			if broadcaster != nil {
				broadcaster.BroadcastImportError(source, err)
			}
			middleware.WriteError(w, http.StatusBadGateway, middleware.ErrUpstream, "Failed to import calendar: "+err.Error())
			return
		}

		result := importer.Apply(ctx, store, drafts)
		log.Printf("Imported %d events from %s (%d created, %d updated)", result.EventsFound, source, result.Created, result.Updated)
		if broadcaster != nil {
			broadcaster.BroadcastImportCompleted(source, result)
		}

		middleware.WriteJSON(w, http.StatusOK, result)
	}
}

// ExportCalendar returns a handler that serves every event as an iCalendar feed.
func ExportCalendar(cal Calendar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", `inline; filename="planner.ics"`)

		if err := calendar.EncodeICS(w, cal.Store.List(), cal.Location, cal.Clock.Now()); err != nil {
			log.Printf("Failed to export calendar: %v", err)
		}
	}
}

func validFeedURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
