package calendar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

var (
	// ErrPermissionDenied means the user has not allowed notifications on the channel.
	ErrPermissionDenied = errors.New("notification permission denied")
	// ErrChannelUnavailable means nothing is listening on the channel right now.
	ErrChannelUnavailable = errors.New("notification channel unavailable")
)

// Permission is the notification permission state reported by a client.
type Permission string

// Permission states, mirroring the browser Notification API.
const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ParsePermission converts a client-reported permission string.
func ParsePermission(s string) (Permission, error) {
	switch p := Permission(strings.ToLower(s)); p {
	case PermissionDefault, PermissionGranted, PermissionDenied:
		return p, nil
	}
	return "", fmt.Errorf("unknown permission %q", s)
}

// Notification is a single reminder delivery.
type Notification struct {
	EventID       int64          `json:"event_id"`
	ReminderID    int            `json:"reminder_id"`
	Channel       models.Channel `json:"channel"`
	Title         string         `json:"title"`
	Body          string         `json:"body"`
	EventStart    time.Time      `json:"event_start"`
	OffsetMinutes int            `json:"offset_minutes"`
	Participants  []string       `json:"participants,omitempty"`
}

// NewNotification builds the delivery for reminder r of event e.
func NewNotification(e models.Event, r models.Reminder, start time.Time) Notification {
	return Notification{
		EventID:       e.ID,
		ReminderID:    r.ID,
		Channel:       r.Channel,
		Title:         "Reminder: " + e.Title,
		Body:          fmt.Sprintf("Event starting in %d minutes", r.OffsetMinutes),
		EventStart:    start,
		OffsetMinutes: r.OffsetMinutes,
		Participants:  e.Participants,
	}
}

// Notifier delivers reminders on one channel. Notify returns
// ErrPermissionDenied or ErrChannelUnavailable when delivery should be
// retried on a later tick.
type Notifier interface {
	Channel() models.Channel
	Notify(ctx context.Context, n Notification) error
}

// PermissionRequester is implemented by notifiers that must ask the user
// for permission before delivering.
type PermissionRequester interface {
	RequestPermission(ctx context.Context)
}

// EmailNotifier simulates email delivery by logging the message.
type EmailNotifier struct {
	logger *log.Logger
}

// NewEmailNotifier creates an email notifier writing to logger, or to the
// standard logger when nil.
func NewEmailNotifier(logger *log.Logger) *EmailNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &EmailNotifier{logger: logger}
}

func (n *EmailNotifier) Channel() models.Channel { return models.ChannelEmail }

func (n *EmailNotifier) Notify(ctx context.Context, note Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := "owner"
	if len(note.Participants) > 0 {
		to = strings.Join(note.Participants, ", ")
	}
	n.logger.Printf("Simulated email to %s: %s (%s, starts %s)",
		to, note.Title, note.Body, note.EventStart.Format(time.RFC3339))
	return nil
}
