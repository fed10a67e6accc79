package websocket

import (
	"context"
	"log"

	"github.com/planner-dashboard/backend/internal/calendar"
	"github.com/planner-dashboard/backend/internal/storage/models"
)

// Notifier delivers notification-channel reminders as browser
// notifications to the connected dashboards that granted permission.
// With no such dashboard the reminder stays pending.
type Notifier struct {
	hub         *Hub
	broadcaster *EventBroadcaster
}

// NewNotifier creates a notifier on hub.
func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{
		hub:         hub,
		broadcaster: NewEventBroadcaster(hub),
	}
}

func (n *Notifier) Channel() models.Channel { return models.ChannelNotification }

// RequestPermission asks connected dashboards to prompt for permission.
func (n *Notifier) RequestPermission(ctx context.Context) {
	if n.hub.ClientCount() == 0 {
		return
	}
	if !n.broadcaster.broadcast(PermissionRequestMessage()) {
		log.Println("Failed to send notification permission request")
	}
}

func (n *Notifier) Notify(ctx context.Context, note calendar.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.hub.ClientCount() == 0 {
		return calendar.ErrChannelUnavailable
	}

	payload := NotificationPayload{
		Level:       "info",
		Title:       note.Title,
		Message:     note.Body,
		Dismissible: true,
	}
	data, err := NewMessage(TypeNotification, payload).JSON()
	if err != nil {
		return err
	}

	// Only dashboards that allowed notifications get one.
	granted, delivered := n.hub.SendToGranted(data)
	switch {
	case granted == 0:
		return calendar.ErrPermissionDenied
	case delivered == 0:
		return calendar.ErrChannelUnavailable
	}
	return nil
}

// PermissionRequestMessage builds the message asking a client for permission.
func PermissionRequestMessage() Message {
	return NewMessage(TypePermissionRequested, struct{}{})
}
