package ical

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "github.com/jasonhett/digitial-calendar/internal/log"
	"github.com/jasonhett/digitial-calendar/internal/tz"
)

// Override replaces a single occurrence of a recurring series, keyed by the
// occurrence's RECURRENCE-ID. Fields left empty by the override VEVENT stay
// empty; display fallbacks apply at normalization.
type Override struct {
	Start  time.Time
	End    time.Time
	HasEnd bool

	Summary     string
	Description string
	Location    string
	Status      string
}

// Definition is one recurring (or plain) event definition as assembled from
// a feed: the base VEVENT plus its exception keys and per-occurrence
// overrides. It never leaves the expander/normalizer boundary.
type Definition struct {
	UID string

	Summary     string
	Description string
	Location    string
	Status      string

	Start  time.Time
	End    time.Time
	AllDay bool

	// Zone is the TZID attached to DTSTART, if any. Rule evaluation for
	// time-bearing events happens in this zone's wall-clock frame.
	Zone string

	// RRule is the raw RRULE value; empty for non-recurring events.
	RRule string

	// Exceptions holds EXDATE occurrence keys, recorded under both the
	// exact-instant and the date-truncated form.
	Exceptions map[string]struct{}

	// Overrides maps occurrence keys to replacement events, also under
	// both key granularities.
	Overrides map[string]Override
}

// parsedEvent is the flat per-VEVENT form before base/override grouping.
type parsedEvent struct {
	uid          string
	summary      string
	description  string
	location     string
	status       string
	start        time.Time
	end          time.Time
	hasEnd       bool
	allDay       bool
	zone         string
	rawRRule     string
	exDates      []time.Time
	recurrenceID *time.Time
}

// ParseFeed parses one ICS payload into event definitions plus the
// calendar's own display name (X-WR-CALNAME), which is used as a label
// fallback. VEVENTs that fail to parse are skipped individually.
func ParseFeed(feed Feed, body []byte) ([]Definition, string, error) {
	if len(body) == 0 {
		return nil, "", errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}

	name := calendarName(cal)

	parsed := make([]parsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp)
		if perr != nil {
			appLog.Error("ics vevent parse failed, skipping event", perr, "url", redactURL(feed.URL))
			continue
		}
		parsed = append(parsed, ev)
	}

	defs := groupDefinitions(parsed)
	appLog.Debug("ics parse completed", "url", redactURL(feed.URL), "event_count", len(defs))
	return defs, name, nil
}

// groupDefinitions splits VEVENTs into base definitions and attaches
// RECURRENCE-ID overrides to their series by UID. Overrides without a
// matching base are dropped.
func groupDefinitions(events []parsedEvent) []Definition {
	// Capacity covers every event, so appends below never reallocate and
	// the byUID pointers stay valid.
	defs := make([]Definition, 0, len(events))
	byUID := make(map[string]*Definition)

	for _, ev := range events {
		if ev.recurrenceID != nil {
			continue
		}
		defs = append(defs, Definition{
			UID:         ev.uid,
			Summary:     ev.summary,
			Description: ev.description,
			Location:    ev.location,
			Status:      ev.status,
			Start:       ev.start,
			End:         ev.end,
			AllDay:      ev.allDay,
			Zone:        ev.zone,
			RRule:       ev.rawRRule,
			Exceptions:  make(map[string]struct{}),
			Overrides:   make(map[string]Override),
		})
		d := &defs[len(defs)-1]
		for _, ex := range ev.exDates {
			d.Exceptions[InstantKey(ex)] = struct{}{}
			d.Exceptions[DateKey(ex)] = struct{}{}
		}
		if _, dup := byUID[ev.uid]; !dup {
			byUID[ev.uid] = d
		}
	}

	for _, ev := range events {
		if ev.recurrenceID == nil {
			continue
		}
		d, ok := byUID[ev.uid]
		if !ok {
			continue
		}
		ov := Override{
			Start:       ev.start,
			End:         ev.end,
			HasEnd:      ev.hasEnd,
			Summary:     ev.summary,
			Description: ev.description,
			Location:    ev.location,
			Status:      ev.status,
		}
		// Upstream data records recurrence ids with either instant or
		// date granularity; register the override under both.
		d.Overrides[InstantKey(*ev.recurrenceID)] = ov
		d.Overrides[DateKey(*ev.recurrenceID)] = ov
	}

	return defs
}

func parseVEvent(ve *ical.VEvent) (parsedEvent, error) {
	var out parsedEvent

	start, err := ve.GetStartAt()
	if err != nil || start.IsZero() {
		start, err = ve.GetAllDayStartAt()
		if err != nil || start.IsZero() {
			return out, errors.New("unparseable DTSTART")
		}
	}
	out.start = start

	if end, err := ve.GetEndAt(); err == nil && !end.IsZero() {
		out.end = end
		out.hasEnd = true
	} else if end, err := ve.GetAllDayEndAt(); err == nil && !end.IsZero() {
		out.end = end
		out.hasEnd = true
	}

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil && p.Value != "" {
		out.uid = p.Value
	} else {
		// Degraded feeds omit UID; fall back to the start instant so the
		// event still gets a stable id.
		out.uid = InstantKey(start)
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.status = strings.ToLower(strings.TrimSpace(p.Value))
	}

	// All-day detection and TZID capture from DTSTART.
	if dtStart := ve.GetProperty(ical.ComponentPropertyDtStart); dtStart != nil {
		if params := dtStart.ICalParameters; params != nil {
			if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
				out.allDay = true
			}
			if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
				out.zone = tzs[0]
			}
		}
		if !strings.Contains(dtStart.Value, "T") {
			out.allDay = true
		}
	}

	// Pin all-day values to UTC midnight of their calendar date; the
	// library may have parsed DATE values in the process-local zone.
	if out.allDay {
		out.start = dateOnlyUTC(out.start)
		if out.hasEnd {
			out.end = dateOnlyUTC(out.end)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rawRRule = p.Value
	}

	// EXDATE may appear multiple times, each with a comma-separated list.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		zone := out.zone
		if params := p.ICalParameters; params != nil {
			if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
				zone = tzs[0]
			}
		}
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, zone); err == nil {
				out.exDates = append(out.exDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		zone := out.zone
		if params := p.ICalParameters; params != nil {
			if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
				zone = tzs[0]
			}
		}
		if t, err := parseICSTime(p.Value, zone); err == nil {
			out.recurrenceID = &t
		}
	}

	return out, nil
}

// parseICSTime parses a basic ICS date or date-time value into an absolute
// instant. Floating values (no trailing Z) are interpreted in the supplied
// zone; date-only values as UTC midnight.
func parseICSTime(v, zone string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		t, err := time.Parse("20060102T150405", v)
		if err != nil {
			return time.Time{}, err
		}
		return tz.ToAbsolute(t, zone), nil
	}
	return time.ParseInLocation("20060102", v, time.UTC)
}

func dateOnlyUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// calendarName extracts the calendar's display name (X-WR-CALNAME), if set.
func calendarName(cal *ical.Calendar) string {
	for _, p := range cal.CalendarProperties {
		if strings.EqualFold(p.IANAToken, "X-WR-CALNAME") {
			return p.Value
		}
	}
	return ""
}
