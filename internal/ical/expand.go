package ical

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "github.com/jasonhett/digitial-calendar/internal/log"
	"github.com/jasonhett/digitial-calendar/internal/tz"
)

// maxOccurrencesPerEvent caps expansion so a pathological rule cannot blow
// up a sync.
const maxOccurrencesPerEvent = 5000

// InstantKey returns the exact-instant occurrence key for t.
func InstantKey(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// DateKey returns the date-truncated occurrence key for t.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Occurrence is one concrete instance produced by expanding a definition.
type Occurrence struct {
	Start time.Time
	End   time.Time

	Summary     string
	Description string
	Location    string
	Status      string

	// RecurrenceID is the computed occurrence instant for rule-produced
	// instances (set even when an override moved the occurrence), nil for
	// plain events. It keeps overridden occurrence ids distinct from the
	// series.
	RecurrenceID *time.Time
}

// Expand produces the concrete occurrences of one definition within
// [rangeStart, rangeEnd). It is pure: identical inputs yield an identical
// ordered occurrence list.
//
// Rule evaluation happens in the definition zone's wall-clock frame when
// the event is time-bearing and carries a TZID; the window is converted
// into that frame first and each occurrence converted back afterwards.
// Exceptions and overrides are looked up under both the exact-instant and
// the date-truncated key, since upstream feeds record them with either
// granularity.
//
// A rule producing zero occurrences in range yields an empty list, not an
// error. Only a malformed rule is an error; the caller isolates it to the
// one event.
func Expand(def Definition, rangeStart, rangeEnd time.Time) ([]Occurrence, error) {
	if def.RRule == "" {
		return []Occurrence{{
			Start:       def.Start,
			End:         def.End,
			Summary:     def.Summary,
			Description: def.Description,
			Location:    def.Location,
			Status:      def.Status,
		}}, nil
	}

	r, err := rrule.StrToRRule(def.RRule)
	if err != nil {
		return nil, fmt.Errorf("parse rrule %q: %w", def.RRule, err)
	}

	useZone := def.Zone != "" && !def.AllDay

	start := def.Start.UTC()
	lo := rangeStart.UTC()
	hi := rangeEnd.UTC()
	if useZone {
		start = tz.ToFloating(def.Start, def.Zone)
		lo = tz.ToFloating(rangeStart, def.Zone)
		hi = tz.ToFloating(rangeEnd, def.Zone)
	}
	r.DTStart(start)

	candidates := r.Between(lo, hi, true)
	if len(candidates) > maxOccurrencesPerEvent {
		candidates = candidates[:maxOccurrencesPerEvent]
		appLog.Error("expansion truncated at occurrence cap",
			fmt.Errorf("max occurrences reached"),
			"uid", def.UID, "cap", maxOccurrencesPerEvent)
	}

	// Series duration; a missing or mis-ordered DTEND degrades to zero and
	// normalization synthesizes a lenient end later.
	var dur time.Duration
	if def.End.After(def.Start) {
		dur = def.End.Sub(def.Start)
	}

	out := make([]Occurrence, 0, len(candidates))
	for _, c := range candidates {
		instant := c
		if useZone {
			instant = tz.ToAbsolute(c, def.Zone)
		}
		instant = instant.UTC()

		if _, drop := def.Exceptions[InstantKey(instant)]; drop {
			continue
		}
		if _, drop := def.Exceptions[DateKey(instant)]; drop {
			continue
		}

		rid := instant
		occ := Occurrence{
			Start:        instant,
			End:          instant.Add(dur),
			Summary:      def.Summary,
			Description:  def.Description,
			Location:     def.Location,
			Status:       def.Status,
			RecurrenceID: &rid,
		}

		ov, found := def.Overrides[InstantKey(instant)]
		if !found {
			ov, found = def.Overrides[DateKey(instant)]
		}
		if found {
			occ.Start = ov.Start
			occ.End = ov.End
			if !ov.HasEnd {
				occ.End = ov.Start.Add(dur)
			}
			occ.Summary = ov.Summary
			occ.Description = ov.Description
			occ.Location = ov.Location
			occ.Status = ov.Status
		}

		out = append(out, occ)
	}

	return out, nil
}
