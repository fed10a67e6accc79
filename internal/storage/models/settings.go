package models

// View names for the calendar page.
const (
	ViewMonth = "month"
	ViewWeek  = "week"
	ViewDay   = "day"
)

// DefaultUpcomingCount is the number of upcoming events shown when unset.
const DefaultUpcomingCount = 5

// CalendarSettings holds the user's calendar preferences.
type CalendarSettings struct {
	DefaultView      string     `json:"default_view"`
	UpcomingCount    int        `json:"upcoming_count"`
	DefaultReminders []Reminder `json:"default_reminders"`
}

// DefaultCalendarSettings returns the settings used before the user changes anything.
func DefaultCalendarSettings() CalendarSettings {
	return CalendarSettings{
		DefaultView:      ViewMonth,
		UpcomingCount:    DefaultUpcomingCount,
		DefaultReminders: []Reminder{},
	}
}

// ValidView reports whether v names a calendar view.
func ValidView(v string) bool {
	return v == ViewMonth || v == ViewWeek || v == ViewDay
}
