package calendar

import (
	"sort"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

// Upcoming returns the first n events dated today or later, ordered by
// date and then time. Events dated today are included even if their time
// of day has already passed.
func Upcoming(events []models.Event, today models.Date, n int) []models.Event {
	if n <= 0 {
		return []models.Event{}
	}

	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		if !e.Date.Before(today) {
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		return compareTimes(out[i].Time, out[j].Time) < 0
	})

	if len(out) > n {
		out = out[:n]
	}
	return out
}
