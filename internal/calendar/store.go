package calendar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

var (
	// ErrEventNotFound is returned when an operation names an unknown event.
	ErrEventNotFound = errors.New("event not found")
	// ErrReminderNotFound is returned when an event has no reminder with the given ID.
	ErrReminderNotFound = errors.New("reminder not found")
	// ErrInvalidReminder is returned for reminders with a non-positive offset or unknown channel.
	ErrInvalidReminder = errors.New("invalid reminder")
)

// Observer is told about every change made through the store. Storage,
// live-update broadcasting and CalDAV publishing hook in here.
type Observer interface {
	EventSaved(ctx context.Context, event models.Event, created bool) error
	EventRemoved(ctx context.Context, id int64) error
}

// Store is the authoritative in-memory list of events for the session.
// Events keep their insertion order.
type Store struct {
	mu     sync.RWMutex
	events []models.Event
	lastID int64
	clock  Clock
	// reminderSeq is the highest reminder ID issued per event, so a
	// deleted reminder's ID is never handed out again.
	reminderSeq map[int64]int

	observersMu sync.RWMutex
	observers   []Observer
}

// NewStore creates an empty store. IDs are derived from clock.
func NewStore(clock Clock, observers ...Observer) *Store {
	if clock == nil {
		clock = RealClock{}
	}
	return &Store{
		clock:       clock,
		reminderSeq: make(map[int64]int),
		observers:   observers,
	}
}

// AddObserver registers an observer for subsequent changes.
func (s *Store) AddObserver(o Observer) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, o)
}

// Init replaces the store's contents with seed. Observers are not notified.
func (s *Store) Init(seed []models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make([]models.Event, 0, len(seed))
	s.reminderSeq = make(map[int64]int, len(seed))
	for _, e := range seed {
		s.events = append(s.events, e.Clone())
		s.reminderSeq[e.ID] = e.NextReminderID() - 1
		if e.ID > s.lastID {
			s.lastID = e.ID
		}
	}
}

// Add stores a new event under a fresh ID and returns it.
// Reminders in the draft start unfired.
func (s *Store) Add(ctx context.Context, draft models.EventDraft) models.Event {
	s.mu.Lock()
	event := draft.WithID(s.nextID())
	for i := range event.Reminders {
		event.Reminders[i].ID = i + 1
		event.Reminders[i].Fired = false
	}
	s.reminderSeq[event.ID] = len(event.Reminders)
	s.events = append(s.events, event)
	s.mu.Unlock()

	s.notifySaved(ctx, event, true)
	return event.Clone()
}

// Update replaces the stored event with the same ID.
// It returns ErrEventNotFound when no such event exists. The store owns
// each reminder's fired flag: a reminder that keeps its ID, offset and
// channel keeps the stored flag, and any other reminder is a new pending
// one under a fresh ID.
func (s *Store) Update(ctx context.Context, event models.Event) error {
	_, err := s.Modify(ctx, event.ID, func(e *models.Event) {
		*e = event.Clone()
	})
	return err
}

// Modify applies fn to the stored event under the store lock, so the
// read and the write can't interleave with a reminder being fired. fn
// must not call back into the store. Reminders are reconciled as in
// Update.
func (s *Store) Modify(ctx context.Context, id int64, fn func(e *models.Event)) (models.Event, error) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return models.Event{}, fmt.Errorf("updating event %d: %w", id, ErrEventNotFound)
	}

	next := s.events[idx].Clone()
	fn(&next)
	next.ID = id
	if next.Source == "" {
		next.Source = models.SourceLocal
	}
	next.Reminders = s.reconcileReminders(idx, next.Reminders)
	s.events[idx] = next
	event := next.Clone()
	s.mu.Unlock()

	s.notifySaved(ctx, event, false)
	return event, nil
}

// Remove deletes the event with the given ID. Removing an unknown ID is a
// no-op; the result reports whether anything was deleted.
func (s *Store) Remove(ctx context.Context, id int64) bool {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.events = append(s.events[:idx], s.events[idx+1:]...)
	delete(s.reminderSeq, id)
	s.mu.Unlock()

	s.notifyRemoved(ctx, id)
	return true
}

// Get returns a copy of the event with the given ID.
func (s *Store) Get(id int64) (models.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return models.Event{}, false
	}
	return s.events[idx].Clone(), true
}

// FindByExternalUID returns the event imported under uid.
func (s *Store) FindByExternalUID(uid string) (models.Event, bool) {
	if uid == "" {
		return models.Event{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.events {
		if e.ExternalUID == uid {
			return e.Clone(), true
		}
	}
	return models.Event{}, false
}

// List returns a snapshot of all events in insertion order.
func (s *Store) List() []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Event, len(s.events))
	for i, e := range s.events {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// AddReminder attaches a new pending reminder to an event.
func (s *Store) AddReminder(ctx context.Context, eventID int64, offsetMinutes int, channel models.Channel) (models.Reminder, error) {
	r := models.Reminder{OffsetMinutes: offsetMinutes, Channel: channel}
	if err := r.Validate(); err != nil {
		return models.Reminder{}, fmt.Errorf("%w: %v", ErrInvalidReminder, err)
	}

	s.mu.Lock()
	idx := s.indexOf(eventID)
	if idx < 0 {
		s.mu.Unlock()
		return models.Reminder{}, fmt.Errorf("adding reminder to event %d: %w", eventID, ErrEventNotFound)
	}
	r.ID = s.nextReminderID(idx)
	s.events[idx].Reminders = append(s.events[idx].Reminders, r)
	event := s.events[idx].Clone()
	s.mu.Unlock()

	s.notifySaved(ctx, event, false)
	return r, nil
}

// UpdateReminder edits a reminder's offset and channel. Editing resets
// Fired so the reminder can be delivered again.
func (s *Store) UpdateReminder(ctx context.Context, eventID int64, reminder models.Reminder) error {
	if err := reminder.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReminder, err)
	}

	s.mu.Lock()
	idx := s.indexOf(eventID)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("updating reminder on event %d: %w", eventID, ErrEventNotFound)
	}
	found := false
	for i, r := range s.events[idx].Reminders {
		if r.ID == reminder.ID {
			s.events[idx].Reminders[i] = models.Reminder{
				ID:            r.ID,
				OffsetMinutes: reminder.OffsetMinutes,
				Channel:       reminder.Channel,
			}
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return fmt.Errorf("updating reminder %d on event %d: %w", reminder.ID, eventID, ErrReminderNotFound)
	}
	event := s.events[idx].Clone()
	s.mu.Unlock()

	s.notifySaved(ctx, event, false)
	return nil
}

// RemoveReminder deletes a reminder from an event. A missing reminder is a
// no-op; a missing event is ErrEventNotFound.
func (s *Store) RemoveReminder(ctx context.Context, eventID int64, reminderID int) error {
	s.mu.Lock()
	idx := s.indexOf(eventID)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("removing reminder from event %d: %w", eventID, ErrEventNotFound)
	}
	reminders := s.events[idx].Reminders
	kept := reminders[:0]
	for _, r := range reminders {
		if r.ID != reminderID {
			kept = append(kept, r)
		}
	}
	changed := len(kept) != len(reminders)
	s.events[idx].Reminders = kept
	event := s.events[idx].Clone()
	s.mu.Unlock()

	if changed {
		s.notifySaved(ctx, event, false)
	}
	return nil
}

// MarkReminderFired flips a pending reminder to fired. It returns false when
// the reminder was already fired or no longer exists, so concurrent callers
// can't deliver the same reminder twice.
func (s *Store) MarkReminderFired(ctx context.Context, eventID int64, reminderID int) bool {
	s.mu.Lock()
	idx := s.indexOf(eventID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	flipped := false
	for i, r := range s.events[idx].Reminders {
		if r.ID == reminderID && !r.Fired {
			s.events[idx].Reminders[i].Fired = true
			flipped = true
			break
		}
	}
	event := s.events[idx].Clone()
	s.mu.Unlock()

	if flipped {
		s.notifySaved(ctx, event, false)
	}
	return flipped
}

// nextID returns a millisecond timestamp, bumped past the last issued ID
// so IDs stay unique and increasing. Caller must hold s.mu.
func (s *Store) nextID() int64 {
	id := s.clock.Now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

// nextReminderID issues a reminder ID for the event at idx that has not
// been used on it before. Caller must hold s.mu.
func (s *Store) nextReminderID(idx int) int {
	eventID := s.events[idx].ID
	id := s.events[idx].NextReminderID()
	if seq := s.reminderSeq[eventID]; seq >= id {
		id = seq + 1
	}
	s.reminderSeq[eventID] = id
	return id
}

// reconcileReminders maps an incoming reminder list onto the event at idx.
// Unchanged reminders keep their stored fired flag; new or edited ones
// start pending, and new ones get fresh IDs. Caller must hold s.mu.
func (s *Store) reconcileReminders(idx int, incoming []models.Reminder) []models.Reminder {
	stored := s.events[idx]
	out := make([]models.Reminder, 0, len(incoming))
	seen := make(map[int]bool, len(incoming))
	for _, r := range incoming {
		prev, ok := stored.Reminder(r.ID)
		switch {
		case !ok || r.ID <= 0 || seen[r.ID]:
			r.ID = s.nextReminderID(idx)
			r.Fired = false
		case prev.OffsetMinutes == r.OffsetMinutes && prev.Channel == r.Channel:
			r.Fired = prev.Fired
		default:
			r.Fired = false
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

// indexOf returns the slice index of id or -1. Caller must hold s.mu.
func (s *Store) indexOf(id int64) int {
	for i, e := range s.events {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotObservers() []Observer {
	s.observersMu.RLock()
	defer s.observersMu.RUnlock()
	return append([]Observer(nil), s.observers...)
}

func (s *Store) notifySaved(ctx context.Context, event models.Event, created bool) {
	for _, o := range s.snapshotObservers() {
		if err := o.EventSaved(ctx, event.Clone(), created); err != nil {
			log.Printf("Failed to propagate event %d change: %v", event.ID, err)
		}
	}
}

func (s *Store) notifyRemoved(ctx context.Context, id int64) {
	for _, o := range s.snapshotObservers() {
		if err := o.EventRemoved(ctx, id); err != nil {
			log.Printf("Failed to propagate event %d removal: %v", id, err)
		}
	}
}
