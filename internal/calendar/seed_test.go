package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

func TestDemoEventsAndSeed(t *testing.T) {
	ctx := context.Background()
	today := models.NewDate(2025, time.February, 20)
	store := NewStore(NewFakeClock(time.Date(2025, time.February, 20, 8, 0, 0, 0, time.UTC)))

	assert.Equal(t, 6, SeedDemo(ctx, store, today))
	assert.Zero(t, SeedDemo(ctx, store, today), "seeding only fills an empty store")

	events := store.List()
	require.Len(t, events, 6)
	for _, e := range events {
		assert.Equal(t, 2025, e.Date.Year)
		assert.Equal(t, time.February, e.Date.Month)
		_, ok := ParseClock(e.Time)
		assert.True(t, ok, e.Time)
	}

	meeting := events[0]
	assert.Equal(t, "Team Meeting", meeting.Title)
	require.Len(t, meeting.Reminders, 2)
	assert.Equal(t, models.ChannelEmail, meeting.Reminders[1].Channel)

	view := BuildMonthView(events, 2025, time.February, today)
	// February 2025 starts on a Saturday; day 10 holds two events.
	assert.Equal(t, 2, view.Cells[6+9].Total)
}
