// Package caldav publishes locally created events to a remote CalDAV calendar.
package caldav

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"github.com/planner-dashboard/backend/internal/calendar"
	"github.com/planner-dashboard/backend/internal/storage/models"
)

// Config holds the remote calendar location and credentials.
type Config struct {
	Endpoint     string
	Username     string
	Password     string
	CalendarPath string
	Location     *time.Location
}

// Publisher mirrors local events into a CalDAV collection. Imported events
// already live in another calendar and are not published.
type Publisher struct {
	client       *caldav.Client
	calendarPath string
	location     *time.Location
	clock        calendar.Clock

	mu        sync.Mutex
	published map[int64]bool
}

// NewPublisher creates a publisher for cfg.
func NewPublisher(cfg Config, clock calendar.Clock) (*Publisher, error) {
	var httpClient webdav.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	if cfg.Username != "" {
		httpClient = webdav.HTTPClientWithBasicAuth(httpClient, cfg.Username, cfg.Password)
	}

	client, err := caldav.NewClient(httpClient, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("creating caldav client: %w", err)
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	if clock == nil {
		clock = calendar.RealClock{}
	}

	return &Publisher{
		client:       client,
		calendarPath: cfg.CalendarPath,
		location:     loc,
		clock:        clock,
		published:    make(map[int64]bool),
	}, nil
}

// Verify checks that the calendar collection exists.
func (p *Publisher) Verify(ctx context.Context) error {
	if _, err := p.client.Stat(ctx, p.calendarPath); err != nil {
		return fmt.Errorf("checking calendar %s: %w", p.calendarPath, err)
	}
	return nil
}

// Sync publishes every local event, e.g. after loading from disk.
func (p *Publisher) Sync(ctx context.Context, events []models.Event) (int, error) {
	n := 0
	for _, e := range events {
		if e.Source != models.SourceLocal {
			continue
		}
		if err := p.put(ctx, e); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// EventSaved publishes a created or updated local event.
func (p *Publisher) EventSaved(ctx context.Context, event models.Event, created bool) error {
	if event.Source != models.SourceLocal {
		return nil
	}
	return p.put(ctx, event)
}

// EventRemoved deletes a previously published event.
func (p *Publisher) EventRemoved(ctx context.Context, id int64) error {
	p.mu.Lock()
	known := p.published[id]
	p.mu.Unlock()
	if !known {
		return nil
	}

	objectPath := p.objectPath(models.Event{ID: id})
	if err := p.client.RemoveAll(ctx, objectPath); err != nil {
		return fmt.Errorf("deleting %s: %w", objectPath, err)
	}

	p.mu.Lock()
	delete(p.published, id)
	p.mu.Unlock()
	log.Printf("Removed event %d from CalDAV calendar", id)
	return nil
}

func (p *Publisher) put(ctx context.Context, event models.Event) error {
	cal := calendar.NewICalendar()
	cal.Children = append(cal.Children, calendar.EventComponent(event, p.location, p.clock.Now()))

	objectPath := p.objectPath(event)
	if _, err := p.client.PutCalendarObject(ctx, objectPath, cal); err != nil {
		return fmt.Errorf("publishing %s: %w", objectPath, err)
	}

	p.mu.Lock()
	p.published[event.ID] = true
	p.mu.Unlock()
	return nil
}

func (p *Publisher) objectPath(event models.Event) string {
	return path.Join(p.calendarPath, calendar.EventUID(event)+".ics")
}
