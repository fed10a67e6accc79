package calendar

import (
	"bytes"
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

type fakeNotifier struct {
	channel models.Channel

	mu   sync.Mutex
	err  error
	sent []Notification
}

func (n *fakeNotifier) Channel() models.Channel { return n.channel }

func (n *fakeNotifier) Notify(ctx context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, note)
	return nil
}

func (n *fakeNotifier) setErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type schedulerFixture struct {
	clock   *FakeClock
	store   *Store
	notify  *fakeNotifier
	email   *fakeNotifier
	metrics *Metrics
	sched   *ReminderScheduler
}

func newSchedulerFixture(t *testing.T, cfg SchedulerConfig) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		clock:   NewFakeClock(time.Date(2025, time.June, 10, 8, 0, 0, 0, time.UTC)),
		notify:  &fakeNotifier{channel: models.ChannelNotification},
		email:   &fakeNotifier{channel: models.ChannelEmail},
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	f.store = NewStore(f.clock)
	f.sched = NewReminderScheduler(f.store, f.clock, cfg, f.metrics, f.notify, f.email)
	return f
}

func (f *schedulerFixture) addStandup(t *testing.T, reminders ...models.Reminder) models.Event {
	t.Helper()
	return f.store.Add(context.Background(), models.EventDraft{
		Title:     "Standup",
		Date:      models.NewDate(2025, time.June, 10),
		Time:      "09:00",
		Type:      models.EventTypeMeeting,
		Reminders: reminders,
	})
}

func (f *schedulerFixture) at(hour, minute int) {
	f.clock.Set(time.Date(2025, time.June, 10, hour, minute, 0, 0, time.UTC))
}

func TestSchedulerFiresOnceWhenDue(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	e := f.addStandup(t, models.Reminder{OffsetMinutes: 30, Channel: models.ChannelNotification})
	ctx := context.Background()

	f.at(8, 29)
	res := f.sched.Tick(ctx)
	assert.Zero(t, res.Fired)
	assert.Zero(t, f.notify.count())

	f.at(8, 31)
	res = f.sched.Tick(ctx)
	assert.Equal(t, 1, res.Fired)
	require.Equal(t, 1, f.notify.count())

	got, _ := f.store.Get(e.ID)
	assert.True(t, got.Reminders[0].Fired)

	f.at(8, 35)
	res = f.sched.Tick(ctx)
	assert.Zero(t, res.Fired)
	assert.Equal(t, 1, f.notify.count())

	note := f.notify.sent[0]
	assert.Equal(t, e.ID, note.EventID)
	assert.Equal(t, "Reminder: Standup", note.Title)
	assert.Equal(t, "Event starting in 30 minutes", note.Body)
	assert.Equal(t, time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC), note.EventStart)

	assert.Equal(t, 1.0, metricValue(t, f.metrics.fired.WithLabelValues("notification")))
}

func TestSchedulerFiresAtExactDueTime(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	f.addStandup(t, models.Reminder{OffsetMinutes: 30, Channel: models.ChannelNotification})

	f.at(8, 30)
	assert.Equal(t, 1, f.sched.Tick(context.Background()).Fired)
}

func TestSchedulerRoutesByChannel(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	f.addStandup(t,
		models.Reminder{OffsetMinutes: 30, Channel: models.ChannelNotification},
		models.Reminder{OffsetMinutes: 60, Channel: models.ChannelEmail},
	)
	ctx := context.Background()

	f.at(8, 0)
	res := f.sched.Tick(ctx)
	assert.Equal(t, 1, res.Fired)
	assert.Equal(t, 1, f.email.count())
	assert.Zero(t, f.notify.count())

	f.at(8, 45)
	res = f.sched.Tick(ctx)
	assert.Equal(t, 1, res.Fired)
	assert.Equal(t, 1, f.notify.count())
	assert.Equal(t, 1, f.email.count())
}

func TestSchedulerRetriesWhenPermissionDenied(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	e := f.addStandup(t, models.Reminder{OffsetMinutes: 30, Channel: models.ChannelNotification})
	ctx := context.Background()
	f.notify.setErr(ErrPermissionDenied)

	f.at(8, 31)
	res := f.sched.Tick(ctx)
	assert.Zero(t, res.Fired)
	assert.Equal(t, 1, res.Skipped)

	got, _ := f.store.Get(e.ID)
	assert.False(t, got.Reminders[0].Fired, "a skipped reminder stays pending")
	assert.Equal(t, 1.0, metricValue(t, f.metrics.skipped.WithLabelValues("notification", "permission_denied")))

	f.notify.setErr(nil)
	f.at(8, 32)
	res = f.sched.Tick(ctx)
	assert.Equal(t, 1, res.Fired)
	assert.Equal(t, 1, f.notify.count())
}

func TestSchedulerSkipsChannelWithoutNotifier(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	f.sched = NewReminderScheduler(f.store, f.clock, SchedulerConfig{Location: time.UTC}, f.metrics, f.notify)
	f.addStandup(t, models.Reminder{OffsetMinutes: 30, Channel: models.ChannelEmail})

	f.at(8, 45)
	res := f.sched.Tick(context.Background())
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1.0, metricValue(t, f.metrics.skipped.WithLabelValues("email", "no_notifier")))
}

func TestSchedulerRetiresLongOverdueReminders(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{RetireAfter: time.Hour})
	e := f.addStandup(t, models.Reminder{OffsetMinutes: 30, Channel: models.ChannelNotification})
	f.notify.setErr(ErrChannelUnavailable)
	ctx := context.Background()

	f.at(9, 0)
	res := f.sched.Tick(ctx)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Retired)

	f.at(9, 31)
	res = f.sched.Tick(ctx)
	assert.Equal(t, 1, res.Retired)
	assert.Zero(t, f.notify.count())

	got, _ := f.store.Get(e.ID)
	assert.True(t, got.Reminders[0].Fired)
	assert.Equal(t, 1.0, metricValue(t, f.metrics.retired))
}

func TestSchedulerIgnoresUnparsableTimes(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	f.store.Add(context.Background(), models.EventDraft{
		Title:     "Whenever",
		Date:      models.NewDate(2025, time.June, 10),
		Time:      "abc",
		Reminders: []models.Reminder{{OffsetMinutes: 5, Channel: models.ChannelNotification}},
	})

	f.at(23, 59)
	res := f.sched.Tick(context.Background())
	assert.Zero(t, res.Fired)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, 1.0, metricValue(t, f.metrics.pending))
}

func TestSchedulerEditedReminderFiresAgain(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	e := f.addStandup(t, models.Reminder{OffsetMinutes: 30, Channel: models.ChannelNotification})
	ctx := context.Background()

	f.at(8, 31)
	require.Equal(t, 1, f.sched.Tick(ctx).Fired)

	require.NoError(t, f.store.UpdateReminder(ctx, e.ID, models.Reminder{ID: 1, OffsetMinutes: 10, Channel: models.ChannelNotification}))
	assert.Zero(t, f.sched.Tick(ctx).Fired)

	f.at(8, 50)
	assert.Equal(t, 1, f.sched.Tick(ctx).Fired)
	assert.Equal(t, 2, f.notify.count())
}

func TestSchedulerOnFiredCallback(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	f.addStandup(t, models.Reminder{OffsetMinutes: 30, Channel: models.ChannelNotification})

	var got []Notification
	f.sched.OnFired(func(n Notification) { got = append(got, n) })

	f.at(8, 40)
	f.sched.Tick(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, 30, got[0].OffsetMinutes)
}

func TestSchedulerTicksDoNotOverlap(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	f.addStandup(t, models.Reminder{OffsetMinutes: 30, Channel: models.ChannelNotification})
	f.at(8, 40)

	f.sched.scanMu.Lock()
	res := f.sched.Tick(context.Background())
	f.sched.scanMu.Unlock()

	assert.Zero(t, res.Fired)
	assert.Zero(t, f.notify.count())
}

func TestSchedulerConcurrentTicksDeliverOnce(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	f.addStandup(t, models.Reminder{OffsetMinutes: 30, Channel: models.ChannelNotification})
	f.at(8, 40)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.sched.Tick(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.notify.count())
}

func TestSchedulerStartStop(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{TickInterval: time.Second})

	assert.False(t, f.sched.Running())
	assert.Nil(t, f.sched.NextRun())

	require.NoError(t, f.sched.Start(context.Background()))
	require.NoError(t, f.sched.Start(context.Background()))
	assert.True(t, f.sched.Running())
	assert.Equal(t, time.Second, f.sched.TickInterval())

	f.sched.Stop()
	f.sched.Stop()
	assert.False(t, f.sched.Running())
}

func TestEmailNotifierLogs(t *testing.T) {
	var buf syncBuffer
	n := NewEmailNotifier(newTestLogger(&buf))

	err := n.Notify(context.Background(), Notification{
		Title:        "Reminder: Standup",
		Body:         "Event starting in 30 minutes",
		Participants: []string{"Ana", "Ben"},
		EventStart:   time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Simulated email to Ana, Ben: Reminder: Standup")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, n.Notify(ctx, Notification{}))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(w io.Writer) *log.Logger {
	return log.New(w, "", 0)
}

func metricValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var pb dto.Metric
	require.NoError(t, (<-ch).Write(&pb))
	if pb.Counter != nil {
		return pb.GetCounter().GetValue()
	}
	return pb.GetGauge().GetValue()
}
