package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/planner-dashboard/backend/internal/api/middleware"
	"github.com/planner-dashboard/backend/internal/calendar"
	"github.com/planner-dashboard/backend/internal/storage"
	"github.com/planner-dashboard/backend/internal/storage/models"
)

// FeedRequest creates or replaces a feed subscription.
type FeedRequest struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	SyncIntervalMin int    `json:"sync_interval_min"`
	Enabled         *bool  `json:"enabled"`
}

func (req FeedRequest) apply(feed *models.FeedSubscription) error {
	name := strings.TrimSpace(req.Name)
	if name == "" || req.URL == "" {
		return errors.New("name and url are required")
	}
	if !validFeedURL(req.URL) {
		return errors.New("url must be an http(s) URL")
	}

	feed.Name = name
	feed.URL = strings.TrimSpace(req.URL)
	feed.SyncIntervalMin = req.SyncIntervalMin
	if feed.SyncIntervalMin < models.MinFeedSyncIntervalMin {
		feed.SyncIntervalMin = models.DefaultFeedSyncIntervalMin
	}
	feed.Enabled = req.Enabled == nil || *req.Enabled
	return nil
}

// ListFeeds returns all feed subscriptions.
func ListFeeds(feeds *storage.FeedRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := feeds.List(r.Context())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query feeds")
			return
		}

		if list == nil {
			list = []models.FeedSubscription{}
		}
		middleware.WriteJSON(w, http.StatusOK, list)
	}
}

// CreateFeed adds a new feed subscription. The next feed check syncs it.
func CreateFeed(feeds *storage.FeedRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FeedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		var feed models.FeedSubscription
		if err := req.apply(&feed); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}

		if err := feeds.Create(r.Context(), &feed); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create feed")
			return
		}

		middleware.WriteJSON(w, http.StatusCreated, feed)
	}
}

// GetFeed returns a single feed by ID.
func GetFeed(feeds *storage.FeedRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		feed, err := feeds.GetByID(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query feed")
			return
		}
		if feed == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Feed not found")
			return
		}

		middleware.WriteJSON(w, http.StatusOK, feed)
	}
}

// UpdateFeed replaces a feed's name, URL, interval and enabled flag.
func UpdateFeed(feeds *storage.FeedRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req FeedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		feed, err := feeds.GetByID(ctx, mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query feed")
			return
		}
		if feed == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Feed not found")
			return
		}

		if err := req.apply(feed); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}

		if err := feeds.Update(ctx, feed); err != nil {
			writeFeedError(w, err)
			return
		}

		middleware.WriteJSON(w, http.StatusOK, feed)
	}
}

// DeleteFeed removes a feed subscription. Events it imported stay.
func DeleteFeed(feeds *storage.FeedRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := feeds.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
			writeFeedError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// SyncFeed syncs a feed now and returns the result.
func SyncFeed(syncer *calendar.FeedSyncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := syncer.SyncFeed(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			if errors.Is(err, calendar.ErrFeedNotFound) {
				middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Feed not found")
				return
			}
			if result == nil {
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to sync feed")
				return
			}
			middleware.WriteError(w, http.StatusBadGateway, middleware.ErrUpstream, "Failed to sync feed: "+err.Error())
			return
		}

		middleware.WriteJSON(w, http.StatusOK, result)
	}
}

func writeFeedError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrFeedNotFound) {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Feed not found")
		return
	}
	middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to update feed")
}
