package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/planner-dashboard/backend/internal/calendar"
	"github.com/planner-dashboard/backend/internal/storage/models"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeEventCreated        MessageType = "event.created"
	TypeEventUpdated        MessageType = "event.updated"
	TypeEventDeleted        MessageType = "event.deleted"
	TypeReminderFired       MessageType = "reminder.fired"
	TypeImportCompleted     MessageType = "calendar.import_completed"
	TypeFeedSynced          MessageType = "calendar.feed_synced"
	TypeNotification        MessageType = "notification"
	TypePermissionRequested MessageType = "notification.permission_request"

	// Client -> Server command types
	TypePermission MessageType = "notification.permission"
	TypePing       MessageType = "ping"

	// Server -> Client response types
	TypePermissionAck MessageType = "notification.permission_ack"
	TypePong          MessageType = "pong"
	TypeError         MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// IncomingMessage is a command sent by a client. The payload is decoded
// once the type is known.
type IncomingMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventPayload is the payload for event.created and event.updated.
type EventPayload struct {
	Event models.Event `json:"event"`
}

// EventDeletedPayload is the payload for event.deleted.
type EventDeletedPayload struct {
	EventID int64 `json:"event_id"`
}

// ReminderFiredPayload is the payload for reminder.fired.
type ReminderFiredPayload struct {
	calendar.Notification
}

// ImportPayload is the payload for calendar.import_completed.
type ImportPayload struct {
	Source string `json:"source"`
	calendar.ImportResult
}

// FeedSyncedPayload is the payload for calendar.feed_synced.
type FeedSyncedPayload struct {
	models.FeedSyncResult
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level       string              `json:"level"` // info, warning, error, success
	Title       string              `json:"title"`
	Message     string              `json:"message"`
	Action      *NotificationAction `json:"action,omitempty"`
	Dismissible bool                `json:"dismissible"`
}

// NotificationAction is an optional action button for notifications.
type NotificationAction struct {
	Type  string `json:"type"` // "link"
	Label string `json:"label"`
	URL   string `json:"url"`
}

// PermissionPayload carries a client's notification permission state.
type PermissionPayload struct {
	State calendar.Permission `json:"state"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
