package calendar

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

// DefaultTickInterval is how often the scheduler scans reminders.
// Delivery is accurate to within one interval.
const DefaultTickInterval = 60 * time.Second

// SchedulerConfig configures a ReminderScheduler.
type SchedulerConfig struct {
	// TickInterval between scans; DefaultTickInterval when zero.
	TickInterval time.Duration

	// RetireAfter, when positive, gives up on reminders that could not be
	// delivered within this long after they were due. Zero retries forever.
	RetireAfter time.Duration

	// Location event dates and times are interpreted in; time.Local when nil.
	Location *time.Location
}

// TickResult summarizes one scan.
type TickResult struct {
	Fired   int `json:"fired"`
	Skipped int `json:"skipped"`
	Retired int `json:"retired"`
}

// ReminderFiredFunc is called after a reminder has been delivered and marked fired.
type ReminderFiredFunc func(n Notification)

// ReminderScheduler delivers each pending reminder once its moment
// (event start minus offset) has passed.
type ReminderScheduler struct {
	store     *Store
	clock     Clock
	cfg       SchedulerConfig
	metrics   *Metrics
	notifiers map[models.Channel]Notifier
	onFired   ReminderFiredFunc

	// scanMu is held for the length of a scan; a tick that finds it held is dropped.
	scanMu sync.Mutex

	taskMu sync.Mutex
	task   *PeriodicTask
}

// NewReminderScheduler creates a scheduler over store. One notifier per
// channel is used; a later notifier for the same channel replaces an earlier one.
func NewReminderScheduler(store *Store, clock Clock, cfg SchedulerConfig, metrics *Metrics, notifiers ...Notifier) *ReminderScheduler {
	if clock == nil {
		clock = RealClock{}
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	s := &ReminderScheduler{
		store:     store,
		clock:     clock,
		cfg:       cfg,
		metrics:   metrics,
		notifiers: make(map[models.Channel]Notifier),
	}
	for _, n := range notifiers {
		s.notifiers[n.Channel()] = n
	}
	return s
}

// OnFired registers a callback run after each successful delivery.
func (s *ReminderScheduler) OnFired(fn ReminderFiredFunc) {
	s.onFired = fn
}

// Start asks notifiers for permission and begins ticking.
func (s *ReminderScheduler) Start(ctx context.Context) error {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	if s.task != nil {
		return nil
	}

	log.Println("Starting reminder scheduler...")

	for _, n := range s.notifiers {
		if pr, ok := n.(PermissionRequester); ok {
			pr.RequestPermission(ctx)
		}
	}

	task, err := StartPeriodic(s.cfg.TickInterval, func() {
		s.Tick(context.Background())
	})
	if err != nil {
		return err
	}
	s.task = task

	log.Printf("Reminder scheduler started (tick every %s)", s.cfg.TickInterval)
	return nil
}

// Stop cancels the timer and waits for an in-flight scan.
func (s *ReminderScheduler) Stop() {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	if s.task == nil {
		return
	}
	log.Println("Stopping reminder scheduler...")
	s.task.Cancel()
	s.task = nil
	log.Println("Reminder scheduler stopped")
}

// Running reports whether the timer is active.
func (s *ReminderScheduler) Running() bool {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()
	return s.task != nil
}

// NextRun returns when the next tick is due, or nil when stopped.
func (s *ReminderScheduler) NextRun() *time.Time {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()
	if s.task == nil {
		return nil
	}
	return s.task.Next()
}

// TickInterval returns the configured interval.
func (s *ReminderScheduler) TickInterval() time.Duration {
	return s.cfg.TickInterval
}

// Tick scans every pending reminder once and delivers those that are due.
func (s *ReminderScheduler) Tick(ctx context.Context) TickResult {
	var result TickResult
	if !s.scanMu.TryLock() {
		log.Println("Reminder scan still running, skipping tick")
		return result
	}
	defer s.scanMu.Unlock()

	started := time.Now()
	now := s.clock.Now()
	events := s.store.List()
	pending := 0

	for _, event := range events {
		start, ok := EventStart(event, s.cfg.Location)
		if !ok {
			pending += event.PendingReminders()
			continue
		}

		for _, r := range event.Reminders {
			if r.Fired {
				continue
			}

			due := start.Add(-time.Duration(r.OffsetMinutes) * time.Minute)
			if now.Before(due) {
				pending++
				continue
			}

			if s.cfg.RetireAfter > 0 && now.Sub(due) > s.cfg.RetireAfter {
				if s.store.MarkReminderFired(ctx, event.ID, r.ID) {
					log.Printf("Retired overdue reminder %d on event %d (due %s)", r.ID, event.ID, due.Format(time.RFC3339))
					s.metrics.reminderRetired()
					result.Retired++
				}
				continue
			}

			switch s.deliver(ctx, event, r, start) {
			case deliveryFired:
				result.Fired++
			case deliverySkipped:
				result.Skipped++
				pending++
			}
		}
	}

	s.metrics.observeTick(time.Since(started), len(events), pending)
	return result
}

type deliveryOutcome int

const (
	deliverySkipped deliveryOutcome = iota
	deliveryFired
	deliveryGone
)

func (s *ReminderScheduler) deliver(ctx context.Context, event models.Event, r models.Reminder, start time.Time) deliveryOutcome {
	notifier, ok := s.notifiers[r.Channel]
	if !ok {
		s.metrics.reminderSkipped(r.Channel, "no_notifier")
		return deliverySkipped
	}

	note := NewNotification(event, r, start)
	if err := notifier.Notify(ctx, note); err != nil {
		reason := "error"
		switch {
		case errors.Is(err, ErrPermissionDenied):
			reason = "permission_denied"
		case errors.Is(err, ErrChannelUnavailable):
			reason = "unavailable"
		default:
			log.Printf("Failed to deliver reminder %d on event %d: %v", r.ID, event.ID, err)
		}
		s.metrics.reminderSkipped(r.Channel, reason)
		return deliverySkipped
	}

	// The event may have been edited or removed while we were delivering.
	if !s.store.MarkReminderFired(ctx, event.ID, r.ID) {
		return deliveryGone
	}

	log.Printf("Fired %s reminder %d for event %d (%s)", r.Channel, r.ID, event.ID, event.Title)
	s.metrics.reminderFired(r.Channel)
	if s.onFired != nil {
		s.onFired(note)
	}
	return deliveryFired
}
