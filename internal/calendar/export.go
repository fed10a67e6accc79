package calendar

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

const (
	productID = "-//planner-dashboard//calendar//EN"

	// defaultEventDuration is used for DTEND; events only carry a start time.
	defaultEventDuration = time.Hour
)

// EventUID returns the iCalendar UID of an event. Imported events keep
// their original UID; local ones get a stable name-based UUID.
func EventUID(e models.Event) string {
	if e.ExternalUID != "" {
		return e.ExternalUID
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("planner-dashboard:event:%d", e.ID))).String()
}

// NewICalendar returns an empty VCALENDAR with the required properties.
func NewICalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	return cal
}

// EventComponent converts an event into a VEVENT with one VALARM per
// reminder. Events without a parsable time are exported as all-day.
func EventComponent(e models.Event, loc *time.Location, stamp time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, EventUID(e))
	ve.Props.SetText(ical.PropSummary, e.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())

	if start, ok := EventStart(e, loc); ok {
		ve.Props.SetDateTime(ical.PropDateTimeStart, start)
		ve.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(defaultEventDuration))
	} else {
		day := e.Date.In(time.UTC)
		ve.Props.SetDate(ical.PropDateTimeStart, day)
		ve.Props.SetDate(ical.PropDateTimeEnd, day.AddDate(0, 0, 1))
	}

	if e.Description != "" {
		ve.Props.SetText(ical.PropDescription, e.Description)
	}
	ve.Props.SetText(ical.PropCategories, string(e.Type))
	if len(e.Participants) > 0 {
		p := ical.NewProp(ical.PropComment)
		p.SetText("Participants: " + strings.Join(e.Participants, ", "))
		ve.Props.Add(p)
	}

	for _, r := range e.Reminders {
		ve.Children = append(ve.Children, alarmComponent(e, r))
	}
	return ve
}

func alarmComponent(e models.Event, r models.Reminder) *ical.Component {
	alarm := ical.NewComponent(ical.CompAlarm)
	action := "DISPLAY"
	if r.Channel == models.ChannelEmail {
		action = "EMAIL"
		alarm.Props.SetText(ical.PropSummary, "Reminder: "+e.Title)
	}
	alarm.Props.SetText(ical.PropAction, action)
	alarm.Props.SetText(ical.PropDescription, fmt.Sprintf("Event starting in %d minutes", r.OffsetMinutes))

	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = fmt.Sprintf("-PT%dM", r.OffsetMinutes)
	alarm.Props.Set(trigger)
	return alarm
}

// EncodeICS writes all events as a single iCalendar document.
func EncodeICS(w io.Writer, events []models.Event, loc *time.Location, stamp time.Time) error {
	if len(events) == 0 {
		// The encoder rejects a VCALENDAR without components.
		_, err := fmt.Fprintf(w, "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:%s\r\nEND:VCALENDAR\r\n", productID)
		return err
	}
	cal := NewICalendar()
	for _, e := range events {
		cal.Children = append(cal.Children, EventComponent(e, loc, stamp))
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encoding calendar: %w", err)
	}
	return nil
}
