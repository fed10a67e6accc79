package calendar

import (
	"sort"
	"time"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

// MaxVisiblePerCell is how many events a month cell shows before collapsing
// the rest into an overflow count.
const MaxVisiblePerCell = 2

// HoursPerDay is the number of hour buckets in week and day views.
const HoursPerDay = 24

// MonthCell is one square of the month grid. Padding cells come before
// day 1 and never carry events.
type MonthCell struct {
	Day      int            `json:"day"`
	Date     *models.Date   `json:"date,omitempty"`
	Padding  bool           `json:"padding"`
	Today    bool           `json:"today"`
	Events   []models.Event `json:"events"`
	Overflow int            `json:"overflow"`
	Total    int            `json:"total"`
}

// MonthView is the month grid, weeks starting on Sunday.
type MonthView struct {
	Year         int          `json:"year"`
	Month        time.Month   `json:"month"`
	DaysInMonth  int          `json:"days_in_month"`
	FirstWeekday time.Weekday `json:"first_weekday"`
	Cells        []MonthCell  `json:"cells"`
}

// HourBucket holds the events starting within one hour of the day.
type HourBucket struct {
	Hour   int            `json:"hour"`
	Events []models.Event `json:"events"`
}

// WeekDay is one column of the week grid with all 24 hour buckets.
type WeekDay struct {
	Date  models.Date  `json:"date"`
	Hours []HourBucket `json:"hours"`
}

// WeekView is the 7-day grid for the week containing a reference date.
type WeekView struct {
	Start models.Date `json:"start"`
	Days  []WeekDay   `json:"days"`
}

// DayView lists a day's events grouped by hour. Only hours with events
// are present, in ascending order.
type DayView struct {
	Date  models.Date  `json:"date"`
	Hours []HourBucket `json:"hours"`
}

// DaysInMonth returns the number of days in the month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// FirstWeekday returns the weekday of the first day of the month.
func FirstWeekday(year int, month time.Month) time.Weekday {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday()
}

// WeekStart returns the Sunday on or before d.
func WeekStart(d models.Date) models.Date {
	return d.AddDays(-int(d.Weekday()))
}

// EventsOn returns the events on date ordered by start time. Events with
// the same or unparsable time keep insertion order; unparsable times go last.
func EventsOn(events []models.Event, date models.Date) []models.Event {
	var out []models.Event
	for _, e := range events {
		if e.Date == date {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return compareTimes(out[i].Time, out[j].Time) < 0
	})
	return out
}

// BuildMonthView lays out the month grid for year/month. today marks the
// current day's cell.
func BuildMonthView(events []models.Event, year int, month time.Month, today models.Date) MonthView {
	first := models.NewDate(year, month, 1)
	view := MonthView{
		Year:         first.Year,
		Month:        first.Month,
		DaysInMonth:  DaysInMonth(first.Year, first.Month),
		FirstWeekday: first.Weekday(),
	}

	byDay := make(map[int][]models.Event)
	for _, e := range events {
		if e.Date.Year == view.Year && e.Date.Month == view.Month {
			byDay[e.Date.Day] = append(byDay[e.Date.Day], e)
		}
	}

	view.Cells = make([]MonthCell, 0, int(view.FirstWeekday)+view.DaysInMonth)
	for i := 0; i < int(view.FirstWeekday); i++ {
		view.Cells = append(view.Cells, MonthCell{Padding: true, Events: []models.Event{}})
	}

	for day := 1; day <= view.DaysInMonth; day++ {
		date := models.NewDate(view.Year, view.Month, day)
		dayEvents := EventsOn(byDay[day], date)

		cell := MonthCell{
			Day:    day,
			Date:   &date,
			Today:  date == today,
			Total:  len(dayEvents),
			Events: dayEvents,
		}
		if len(dayEvents) > MaxVisiblePerCell {
			cell.Events = dayEvents[:MaxVisiblePerCell]
			cell.Overflow = len(dayEvents) - MaxVisiblePerCell
		}
		if cell.Events == nil {
			cell.Events = []models.Event{}
		}
		view.Cells = append(view.Cells, cell)
	}

	return view
}

// BuildWeekView buckets the week containing ref by day and hour. Events
// whose time can't be parsed are left out.
func BuildWeekView(events []models.Event, ref models.Date) WeekView {
	start := WeekStart(ref)
	view := WeekView{
		Start: start,
		Days:  make([]WeekDay, 7),
	}
	for i := range view.Days {
		date := start.AddDays(i)
		view.Days[i] = WeekDay{
			Date:  date,
			Hours: hourBuckets(EventsOn(events, date)),
		}
	}
	return view
}

// BuildDayView groups the events on date by hour.
func BuildDayView(events []models.Event, date models.Date) DayView {
	view := DayView{Date: date, Hours: []HourBucket{}}
	for _, b := range hourBuckets(EventsOn(events, date)) {
		if len(b.Events) > 0 {
			view.Hours = append(view.Hours, b)
		}
	}
	return view
}

// hourBuckets spreads already-sorted events over 24 hour buckets.
func hourBuckets(events []models.Event) []HourBucket {
	buckets := make([]HourBucket, HoursPerDay)
	for h := range buckets {
		buckets[h] = HourBucket{Hour: h, Events: []models.Event{}}
	}
	for _, e := range events {
		ct, ok := ParseClock(e.Time)
		if !ok {
			continue
		}
		buckets[ct.Hour].Events = append(buckets[ct.Hour].Events, e)
	}
	return buckets
}
