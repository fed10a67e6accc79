// Package calendar holds the calendar event engine: the event store, view
// materialization, the upcoming-events selector, the reminder scheduler and
// iCal import/export.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

const (
	// DefaultImportHorizonDays bounds recurrence expansion of imported events.
	DefaultImportHorizonDays = 90

	maxOccurrencesPerEvent = 500
)

// Importer reads events from iCal feeds.
type Importer struct {
	httpClient  *http.Client
	location    *time.Location
	horizonDays int
	clock       Clock
}

// ImportResult contains the results of an import.
type ImportResult struct {
	EventsFound int `json:"events_found"`
	Created     int `json:"created"`
	Updated     int `json:"updated"`
}

// NewImporter creates an importer that places events in loc and expands
// recurring events up to horizonDays ahead.
func NewImporter(loc *time.Location, horizonDays int, clock Clock) *Importer {
	if loc == nil {
		loc = time.Local
	}
	if horizonDays <= 0 {
		horizonDays = DefaultImportHorizonDays
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Importer{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		location:    loc,
		horizonDays: horizonDays,
		clock:       clock,
	}
}

// FetchAndParse downloads and parses an iCal feed from a URL.
func (i *Importer) FetchAndParse(ctx context.Context, url string) ([]models.EventDraft, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar returned status %d", resp.StatusCode)
	}

	return i.Parse(resp.Body)
}

// Parse reads VEVENTs from iCal data. Recurring events become one draft
// per occurrence inside the import horizon.
func (i *Importer) Parse(r io.Reader) ([]models.EventDraft, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parsing calendar: %w", err)
	}

	today := models.DateOf(i.clock.Now().In(i.location)).In(i.location)
	horizonEnd := today.AddDate(0, 0, i.horizonDays)

	var drafts []models.EventDraft
	for _, ve := range cal.Events() {
		parsed, err := i.parseVEvent(ve, today, horizonEnd)
		if err != nil {
			log.Printf("Skipping calendar entry: %v", err)
			continue
		}
		drafts = append(drafts, parsed...)
	}
	return drafts, nil
}

// Apply upserts drafts into store, matching on ExternalUID so re-importing
// a feed updates events instead of duplicating them. Reminders on existing
// events are kept.
func (i *Importer) Apply(ctx context.Context, store *Store, drafts []models.EventDraft) ImportResult {
	result := ImportResult{EventsFound: len(drafts)}
	for _, d := range drafts {
		existing, ok := store.FindByExternalUID(d.ExternalUID)
		if !ok {
			store.Add(ctx, d)
			result.Created++
			continue
		}

		_, err := store.Modify(ctx, existing.ID, func(e *models.Event) {
			kept := e.Reminders
			*e = d.WithID(e.ID)
			e.Reminders = kept
		})
		if err != nil {
			// Removed between lookup and update.
			store.Add(ctx, d)
			result.Created++
			continue
		}
		result.Updated++
	}
	return result
}

func (i *Importer) parseVEvent(ve *ics.VEvent, rangeStart, rangeEnd time.Time) ([]models.EventDraft, error) {
	uidProp := ve.GetProperty(ics.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return nil, errors.New("missing UID")
	}
	uid := uidProp.Value

	allDay := isAllDay(ve)
	var start time.Time
	var err error
	if allDay {
		start, err = ve.GetAllDayStartAt()
	} else {
		start, err = ve.GetStartAt()
	}
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", uid, err)
	}

	base := models.EventDraft{
		Type:         models.EventTypeMeeting,
		Source:       models.SourceExternal,
		ExternalUID:  uid,
		Participants: attendees(ve),
		Reminders:    []models.Reminder{},
	}
	if p := ve.GetProperty(ics.ComponentPropertySummary); p != nil {
		base.Title = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ics.ComponentPropertyDescription); p != nil {
		base.Description = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ics.ComponentPropertyCategories); p != nil {
		for _, c := range strings.Split(p.Value, ",") {
			if t, err := models.ParseEventType(c); err == nil {
				base.Type = t
				break
			}
		}
	}

	rruleProp := ve.GetProperty(ics.ComponentPropertyRrule)
	if rruleProp == nil || rruleProp.Value == "" {
		return []models.EventDraft{i.occurrence(base, start, allDay, "")}, nil
	}

	rule, err := rrule.StrToRRule(rruleProp.Value)
	if err != nil {
		return nil, fmt.Errorf("event %s: parsing RRULE %q: %w", uid, rruleProp.Value, err)
	}
	rule.DTStart(start)

	var set rrule.Set
	set.RRule(rule)
	for _, p := range ve.GetProperties(ics.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, start.Location()); err == nil {
				set.ExDate(t)
			}
		}
	}

	times := set.Between(rangeStart.In(start.Location()), rangeEnd.In(start.Location()), true)
	if len(times) > maxOccurrencesPerEvent {
		log.Printf("Truncated recurring event %s to %d occurrences", uid, maxOccurrencesPerEvent)
		times = times[:maxOccurrencesPerEvent]
	}

	drafts := make([]models.EventDraft, 0, len(times))
	for _, t := range times {
		drafts = append(drafts, i.occurrence(base, t, allDay, t.UTC().Format("20060102T150405Z")))
	}
	return drafts, nil
}

// occurrence places one instance of an event at start. instanceKey keeps
// the ExternalUID of recurring instances distinct.
func (i *Importer) occurrence(base models.EventDraft, start time.Time, allDay bool, instanceKey string) models.EventDraft {
	d := base
	d.Participants = append([]string(nil), base.Participants...)
	d.Reminders = []models.Reminder{}
	if instanceKey != "" {
		d.ExternalUID = base.ExternalUID + "/" + instanceKey
	}
	if allDay {
		// All-day dates are floating; don't shift them across zones.
		d.Date = models.DateOf(start)
		d.Time = ""
		return d
	}
	local := start.In(i.location)
	d.Date = models.DateOf(local)
	d.Time = local.Format("15:04")
	return d
}

func isAllDay(ve *ics.VEvent) bool {
	p := ve.GetProperty(ics.ComponentPropertyDtStart)
	if p == nil {
		return false
	}
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func attendees(ve *ics.VEvent) []string {
	var out []string
	for _, p := range ve.GetProperties(ics.ComponentPropertyAttendee) {
		if cn, ok := p.ICalParameters["CN"]; ok && len(cn) > 0 && cn[0] != "" {
			out = append(out, strings.Trim(cn[0], `"`))
			continue
		}
		v := p.Value
		if len(v) > 7 && strings.EqualFold(v[:7], "mailto:") {
			v = v[7:]
		}
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// parseICSTime parses EXDATE values in their basic UTC, local and date forms.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

func unescapeText(v string) string {
	v = strings.ReplaceAll(v, `\n`, "\n")
	v = strings.ReplaceAll(v, `\N`, "\n")
	v = strings.ReplaceAll(v, `\,`, ",")
	v = strings.ReplaceAll(v, `\;`, ";")
	return strings.ReplaceAll(v, `\\`, `\`)
}
