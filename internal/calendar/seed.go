package calendar

import (
	"context"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

// DemoEvents returns the sample events shown on a fresh dashboard, placed
// in the month containing today.
func DemoEvents(today models.Date) []models.EventDraft {
	on := func(day int) models.Date {
		return models.NewDate(today.Year, today.Month, day)
	}
	return []models.EventDraft{
		{
			Title: "Team Meeting",
			Date:  on(10),
			Time:  "10:00 AM",
			Type:  models.EventTypeMeeting,
			Reminders: []models.Reminder{
				{OffsetMinutes: 30, Channel: models.ChannelNotification},
				{OffsetMinutes: 60, Channel: models.ChannelEmail},
			},
		},
		{Title: "Project Deadline", Date: on(15), Time: "11:30 AM", Type: models.EventTypeDeadline},
		{Title: "Client Call", Date: on(5), Time: "2:00 PM", Type: models.EventTypeCall},
		{Title: "Design Review", Date: on(18), Time: "3:30 PM", Type: models.EventTypeMeeting},
		{Title: "Team Lunch", Date: on(22), Time: "12:30 PM", Type: models.EventTypeSocial},
		{Title: "Weekly Report", Date: on(10), Time: "4:00 PM", Type: models.EventTypeTask},
	}
}

// SeedDemo adds the demo events to an empty store. It returns the number
// of events added.
func SeedDemo(ctx context.Context, store *Store, today models.Date) int {
	if store.Len() > 0 {
		return 0
	}
	drafts := DemoEvents(today)
	for _, d := range drafts {
		store.Add(ctx, d)
	}
	return len(drafts)
}
