// Package models contains the domain models for the application.
package models

import (
	"fmt"
	"strings"
)

// EventType classifies a calendar event.
type EventType string

// Event type constants
const (
	EventTypeMeeting  EventType = "meeting"
	EventTypeDeadline EventType = "deadline"
	EventTypeCall     EventType = "call"
	EventTypeSocial   EventType = "social"
	EventTypeTask     EventType = "task"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeMeeting, EventTypeDeadline, EventTypeCall, EventTypeSocial, EventTypeTask:
		return true
	}
	return false
}

// ParseEventType converts user input into an EventType.
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// Channel is the delivery channel of a reminder.
type Channel string

// Reminder channel constants
const (
	ChannelNotification Channel = "notification"
	ChannelEmail        Channel = "email"
)

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	return c == ChannelNotification || c == ChannelEmail
}

// ParseChannel converts user input into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown reminder channel %q", s)
	}
	return c, nil
}

// Source records where an event came from.
type Source string

// Event source constants
const (
	SourceLocal    Source = "local"    // Created through the dashboard
	SourceExternal Source = "external" // Imported from an iCal feed
)

// Reminder is a one-shot notification fired OffsetMinutes before its event starts.
// Fired only moves from false to true, except when the user edits the reminder.
type Reminder struct {
	ID            int     `json:"id"`
	OffsetMinutes int     `json:"offset_minutes"`
	Channel       Channel `json:"channel"`
	Fired         bool    `json:"fired"`
}

// Validate checks the reminder's offset and channel.
func (r Reminder) Validate() error {
	if r.OffsetMinutes <= 0 {
		return fmt.Errorf("offset_minutes must be positive, got %d", r.OffsetMinutes)
	}
	if !r.Channel.Valid() {
		return fmt.Errorf("unknown reminder channel %q", r.Channel)
	}
	return nil
}

// Event is a calendar entry. Date is a time-zone-naive calendar day and Time
// is the wall-clock string entered by the user ("15:04" or "3:04 PM").
type Event struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Date         Date       `json:"date"`
	Time         string     `json:"time"`
	Type         EventType  `json:"type"`
	Description  string     `json:"description,omitempty"`
	Participants []string   `json:"participants,omitempty"`
	Reminders    []Reminder `json:"reminders"`
	Source       Source     `json:"source"`
	ExternalUID  string     `json:"external_uid,omitempty"`
}

// EventDraft is an event that has not been assigned an ID yet.
type EventDraft struct {
	Title        string
	Date         Date
	Time         string
	Type         EventType
	Description  string
	Participants []string
	Reminders    []Reminder
	Source       Source
	ExternalUID  string
}

// WithID builds the stored form of the draft.
func (d EventDraft) WithID(id int64) Event {
	e := Event{
		ID:           id,
		Title:        d.Title,
		Date:         d.Date,
		Time:         d.Time,
		Type:         d.Type,
		Description:  d.Description,
		Participants: d.Participants,
		Reminders:    d.Reminders,
		Source:       d.Source,
		ExternalUID:  d.ExternalUID,
	}
	if e.Source == "" {
		e.Source = SourceLocal
	}
	if e.Type == "" {
		e.Type = EventTypeMeeting
	}
	return e.Clone()
}

// Clone returns a deep copy so callers can't mutate shared slices.
func (e Event) Clone() Event {
	out := e
	if e.Participants != nil {
		out.Participants = append([]string(nil), e.Participants...)
	}
	out.Reminders = append([]Reminder{}, e.Reminders...)
	return out
}

// Reminder returns the reminder with the given ID.
func (e Event) Reminder(id int) (Reminder, bool) {
	for _, r := range e.Reminders {
		if r.ID == id {
			return r, true
		}
	}
	return Reminder{}, false
}

// NextReminderID returns an ID not used by any of the event's reminders.
func (e Event) NextReminderID() int {
	max := 0
	for _, r := range e.Reminders {
		if r.ID > max {
			max = r.ID
		}
	}
	return max + 1
}

// PendingReminders counts reminders that have not fired.
func (e Event) PendingReminders() int {
	n := 0
	for _, r := range e.Reminders {
		if !r.Fired {
			n++
		}
	}
	return n
}

// ParseParticipants splits the free-text participant field on commas,
// trimming whitespace and dropping empty names.
func ParseParticipants(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CleanParticipants trims a participant list and drops empty names.
func CleanParticipants(in []string) []string {
	var out []string
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
