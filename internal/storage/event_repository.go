package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

// EventRepository persists calendar events and their reminders.
// It observes the in-memory event store, so every store mutation is
// written through to disk.
type EventRepository struct {
	BaseRepository
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Save inserts or replaces an event and its reminder list.
func (r *EventRepository) Save(ctx context.Context, event models.Event) error {
	participants, err := json.Marshal(participantsOrEmpty(event.Participants))
	if err != nil {
		return fmt.Errorf("encoding participants: %w", err)
	}

	return r.Transaction(ctx, func(tx *sql.Tx) error {
		now := r.Now()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO events (
				id, title, event_date, event_time, event_type, description,
				participants, source, external_uid, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				event_date = excluded.event_date,
				event_time = excluded.event_time,
				event_type = excluded.event_type,
				description = excluded.description,
				participants = excluded.participants,
				source = excluded.source,
				external_uid = excluded.external_uid,
				updated_at = excluded.updated_at
		`,
			event.ID, event.Title, event.Date.String(), event.Time, string(event.Type),
			event.Description, string(participants), string(event.Source),
			nullString(event.ExternalUID), now, now,
		)
		if err != nil {
			return fmt.Errorf("upserting event %d: %w", event.ID, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM reminders WHERE event_id = ?", event.ID); err != nil {
			return fmt.Errorf("clearing reminders for event %d: %w", event.ID, err)
		}

		for _, rem := range event.Reminders {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO reminders (event_id, id, offset_minutes, channel, fired)
				VALUES (?, ?, ?, ?, ?)
			`, event.ID, rem.ID, rem.OffsetMinutes, string(rem.Channel), rem.Fired)
			if err != nil {
				return fmt.Errorf("inserting reminder %d for event %d: %w", rem.ID, event.ID, err)
			}
		}
		return nil
	})
}

// Delete removes an event. Its reminders are removed by cascade.
func (r *EventRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.DB().ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting event %d: %w", id, err)
	}
	return nil
}

// GetByID retrieves an event by its ID. It returns nil when no row matches.
func (r *EventRepository) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	events, err := r.query(ctx, r.DB(), `
		SELECT id, title, event_date, event_time, event_type, description,
			   participants, source, external_uid
		FROM events WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// List retrieves every event in creation order.
func (r *EventRepository) List(ctx context.Context) ([]models.Event, error) {
	return r.query(ctx, r.DB(), `
		SELECT id, title, event_date, event_time, event_type, description,
			   participants, source, external_uid
		FROM events
		ORDER BY id
	`)
}

// Count returns the number of stored events.
func (r *EventRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return n, nil
}

// EventSaved writes a created or updated event through to disk.
func (r *EventRepository) EventSaved(ctx context.Context, event models.Event, created bool) error {
	return r.Save(ctx, event)
}

// EventRemoved deletes a removed event from disk.
func (r *EventRepository) EventRemoved(ctx context.Context, id int64) error {
	return r.Delete(ctx, id)
}

func (r *EventRepository) query(ctx context.Context, q Queryable, query string, args ...any) ([]models.Event, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	index := make(map[int64]int)
	for rows.Next() {
		var (
			e            models.Event
			date         string
			eventType    string
			participants string
			source       string
			externalUID  sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &e.Title, &date, &e.Time, &eventType, &e.Description,
			&participants, &source, &externalUID,
		); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}

		if e.Date, err = models.ParseDate(date); err != nil {
			return nil, fmt.Errorf("event %d: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(participants), &e.Participants); err != nil {
			return nil, fmt.Errorf("event %d participants: %w", e.ID, err)
		}
		e.Type = models.EventType(eventType)
		e.Source = models.Source(source)
		e.ExternalUID = externalUID.String
		e.Reminders = []models.Reminder{}

		index[e.ID] = len(events)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(events) == 0 {
		return events, nil
	}
	if err := r.attachReminders(ctx, q, events, index); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *EventRepository) attachReminders(ctx context.Context, q Queryable, events []models.Event, index map[int64]int) error {
	rows, err := q.QueryContext(ctx, `
		SELECT event_id, id, offset_minutes, channel, fired
		FROM reminders
		ORDER BY event_id, id
	`)
	if err != nil {
		return fmt.Errorf("querying reminders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			eventID int64
			rem     models.Reminder
			channel string
		)
		if err := rows.Scan(&eventID, &rem.ID, &rem.OffsetMinutes, &channel, &rem.Fired); err != nil {
			return fmt.Errorf("scanning reminder: %w", err)
		}
		i, ok := index[eventID]
		if !ok {
			continue
		}
		rem.Channel = models.Channel(channel)
		events[i].Reminders = append(events[i].Reminders, rem)
	}
	return rows.Err()
}

func participantsOrEmpty(p []string) []string {
	if p == nil {
		return []string{}
	}
	return p
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
