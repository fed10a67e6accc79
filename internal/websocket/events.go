package websocket

import (
	"context"
	"fmt"
	"log"

	"github.com/planner-dashboard/backend/internal/calendar"
	"github.com/planner-dashboard/backend/internal/storage/models"
)

// EventBroadcaster handles broadcasting WebSocket events.
// It also observes the event store so every change reaches open dashboards.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// EventSaved sends event.created or event.updated.
func (b *EventBroadcaster) EventSaved(ctx context.Context, event models.Event, created bool) error {
	msgType := TypeEventUpdated
	if created {
		msgType = TypeEventCreated
	}
	b.broadcast(NewMessage(msgType, EventPayload{Event: event}))
	return nil
}

// EventRemoved sends event.deleted.
func (b *EventBroadcaster) EventRemoved(ctx context.Context, id int64) error {
	b.broadcast(NewMessage(TypeEventDeleted, EventDeletedPayload{EventID: id}))
	return nil
}

// BroadcastReminderFired tells dashboards a reminder went out.
func (b *EventBroadcaster) BroadcastReminderFired(n calendar.Notification) {
	b.broadcast(NewMessage(TypeReminderFired, ReminderFiredPayload{Notification: n}))
}

// BroadcastImportCompleted sends the result of an iCal import.
func (b *EventBroadcaster) BroadcastImportCompleted(source string, result calendar.ImportResult) {
	b.broadcast(NewMessage(TypeImportCompleted, ImportPayload{Source: source, ImportResult: result}))
}

// BroadcastFeedSynced sends the result of a feed sync. Failed syncs
// become an error notification instead.
func (b *EventBroadcaster) BroadcastFeedSynced(result models.FeedSyncResult) {
	if result.Error != nil {
		b.BroadcastImportError(result.FeedName, result.Error)
		return
	}
	b.broadcast(NewMessage(TypeFeedSynced, FeedSyncedPayload{FeedSyncResult: result}))
}

// BroadcastImportError sends an error notification for a failed import.
func (b *EventBroadcaster) BroadcastImportError(source string, err error) {
	b.BroadcastNotification("error", "Calendar Import Failed", fmt.Sprintf("%s: %v", source, err))
}

// BroadcastNotification sends a notification to all connected clients.
func (b *EventBroadcaster) BroadcastNotification(level, title, message string) {
	payload := NotificationPayload{
		Level:       level,
		Title:       title,
		Message:     message,
		Dismissible: true,
	}

	msg := NewMessage(TypeNotification, payload)
	b.broadcast(msg)
}

// broadcast sends a message to all connected clients.
func (b *EventBroadcaster) broadcast(msg Message) bool {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return false
	}

	return b.hub.Broadcast(data)
}
