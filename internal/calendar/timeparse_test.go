package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in     string
		hour   int
		minute int
		ok     bool
	}{
		{"09:00", 9, 0, true},
		{"9:00", 9, 0, true},
		{"23:59", 23, 59, true},
		{"2:00 PM", 14, 0, true},
		{"12:30 PM", 12, 30, true},
		{"12:15 AM", 0, 15, true},
		{"10:00 am", 10, 0, true},
		{"4:00PM", 16, 0, true},
		{" 08:30 ", 8, 30, true},
		{"7 PM", 19, 0, true},
		{"14:05:30", 14, 5, true},
		{"", 0, 0, false},
		{"abc", 0, 0, false},
		{"25:00", 0, 0, false},
		{"noon", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseClock(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.hour, got.Hour)
				assert.Equal(t, tt.minute, got.Minute)
			}
		})
	}
}

func TestEventStart(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	e := models.Event{Date: models.NewDate(2025, time.June, 10), Time: "2:30 PM"}
	start, ok := EventStart(e, loc)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.June, 10, 14, 30, 0, 0, loc), start)

	_, ok = EventStart(models.Event{Date: e.Date, Time: "later"}, loc)
	assert.False(t, ok)
}

func TestCompareTimes(t *testing.T) {
	assert.Negative(t, compareTimes("09:00", "2:00 PM"))
	assert.Positive(t, compareTimes("11:30 PM", "23:00"))
	assert.Zero(t, compareTimes("14:00", "2:00 PM"))
	assert.Negative(t, compareTimes("23:59", "abc"))
	assert.Positive(t, compareTimes("", "00:00"))
	assert.Zero(t, compareTimes("abc", ""))
}
