package calendar

import (
	"strings"
	"time"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

// Accepted wall-clock layouts. The time input sends "15:04"; seeded and
// imported events may use the 12-hour form.
var clockLayouts = []string{
	"15:04",
	"3:04 PM",
	"3:04PM",
	"15:04:05",
	"3 PM",
	"3PM",
}

// ClockTime is a parsed wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// Minutes returns the number of minutes since midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// ParseClock parses an event time string such as "09:00" or "2:30 PM".
// It returns false when the string has no recognizable hour.
func ParseClock(s string) (ClockTime, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ClockTime{}, false
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, true
		}
	}
	return ClockTime{}, false
}

// EventStart returns the moment the event starts in loc. The second result
// is false when the event's time can't be parsed.
func EventStart(e models.Event, loc *time.Location) (time.Time, bool) {
	ct, ok := ParseClock(e.Time)
	if !ok {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	return time.Date(e.Date.Year, e.Date.Month, e.Date.Day, ct.Hour, ct.Minute, 0, 0, loc), true
}

// compareTimes orders two event time strings; unparsable times sort last.
func compareTimes(a, b string) int {
	ca, okA := ParseClock(a)
	cb, okB := ParseClock(b)
	switch {
	case okA && okB:
		return ca.Minutes() - cb.Minutes()
	case okA:
		return -1
	case okB:
		return 1
	}
	return 0
}
