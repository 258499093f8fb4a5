package model

import "time"

// Event statuses as exposed in the unified schema. Cancelled events are
// filtered out by the normalizers and never reach consumers.
const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusTentative = "tentative"
)

// DefaultColor is used when neither configuration nor the live calendar
// listing provides a color for a source.
const DefaultColor = "#2b6f6b"

// CalendarEvent is the unified event schema. It is the only event shape that
// crosses the normalizer boundary; neither the Google API event nor the raw
// ICS VEVENT leaks past internal/gcal and internal/ical.
//
// Start and End are RFC3339 UTC instants for timed events, or calendar dates
// ("2006-01-02", no time component) when AllDay is true.
type CalendarEvent struct {
	ID            string `json:"id"`
	CalendarID    string `json:"calendarId"`
	CalendarLabel string `json:"calendarLabel"`
	CalendarColor string `json:"calendarColor"`

	Summary     string `json:"summary"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Status      string `json:"status"`

	Start  string `json:"start"`
	End    string `json:"end"`
	AllDay bool   `json:"allDay"`
}

// SyncRange is the window for which the event cache is authoritative.
type SyncRange struct {
	TimeMin time.Time `json:"timeMin"`
	TimeMax time.Time `json:"timeMax"`
}

// EventCacheSnapshot is the sole persisted artifact of the aggregation core.
// It is replaced whole on every successful sync; UpdatedAt and Range are nil
// until the first sync completes.
type EventCacheSnapshot struct {
	UpdatedAt *time.Time      `json:"updatedAt"`
	Range     *SyncRange      `json:"range"`
	Events    []CalendarEvent `json:"events"`
}

// EmptySnapshot returns the snapshot served before any sync has run.
func EmptySnapshot() EventCacheSnapshot {
	return EventCacheSnapshot{Events: []CalendarEvent{}}
}

// SourceTarget is one calendar or feed selected for a sync pass, with its
// resolved display label and color. Recomputed on every sync, never stored.
type SourceTarget struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// SourceError records a per-feed fetch or parse failure. It is diagnostic
// data in the sync summary, never a sync-level failure.
type SourceError struct {
	Feed    string `json:"feed"`
	Message string `json:"message"`
}

// GoogleSummary is the Google branch part of a sync summary.
type GoogleSummary struct {
	Connected bool   `json:"connected"`
	Calendars int    `json:"calendars"`
	Events    int    `json:"events"`
	Error     string `json:"error,omitempty"`
}

// FeedSummary is the ICS feed branch part of a sync summary.
type FeedSummary struct {
	Calendars int           `json:"calendars"`
	Events    int           `json:"events"`
	Errors    []SourceError `json:"errors"`
}

// SourcesSummary breaks a sync summary down per source kind.
type SourcesSummary struct {
	Google GoogleSummary `json:"google"`
	ICal   FeedSummary   `json:"ical"`
}

// SyncSummary describes one completed orchestrator run.
type SyncSummary struct {
	UpdatedAt time.Time      `json:"updatedAt"`
	Events    int            `json:"events"`
	Calendars int            `json:"calendars"`
	Sources   SourcesSummary `json:"sources"`
}
