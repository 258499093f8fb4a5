package ical

import (
	"context"
	"net/url"
	"strings"
	"time"

	appLog "github.com/jasonhett/digitial-calendar/internal/log"
	"github.com/jasonhett/digitial-calendar/internal/model"
)

// SyncResult is the outcome of fetching and normalizing all enabled feeds.
// Per-feed failures land in Errors; they never abort sibling feeds.
type SyncResult struct {
	Events    []model.CalendarEvent
	Calendars int
	Errors    []model.SourceError
}

// SyncFeeds fetches, parses, expands and normalizes every feed for the
// window [rangeStart, rangeEnd). Each feed is isolated: a fetch or parse
// failure is recorded against the feed's URL and the rest proceed.
func SyncFeeds(ctx context.Context, fetcher *Fetcher, feeds []Feed, rangeStart, rangeEnd time.Time) SyncResult {
	result := SyncResult{
		Events:    []model.CalendarEvent{},
		Calendars: len(feeds),
		Errors:    []model.SourceError{},
	}

	for _, feed := range feeds {
		events, err := syncOneFeed(ctx, fetcher, feed, rangeStart, rangeEnd)
		if err != nil {
			appLog.Error("feed sync failed", err, "url", redactURL(feed.URL))
			result.Errors = append(result.Errors, model.SourceError{
				Feed:    feed.URL,
				Message: err.Error(),
			})
			continue
		}
		result.Events = append(result.Events, events...)
	}

	return result
}

func syncOneFeed(ctx context.Context, fetcher *Fetcher, feed Feed, rangeStart, rangeEnd time.Time) ([]model.CalendarEvent, error) {
	fetched, err := fetcher.FetchOne(ctx, feed)
	if err != nil {
		return nil, err
	}

	defs, calName, err := ParseFeed(feed, fetched.Body)
	if err != nil {
		return nil, err
	}

	target := model.SourceTarget{
		ID:    feed.ID,
		Label: feedLabel(feed, calName),
		Color: model.DefaultColor,
	}

	return NormalizeFeed(feed, target, defs, rangeStart, rangeEnd), nil
}

// NormalizeFeed expands each definition and converts the surviving
// occurrences into unified events. A malformed recurrence rule skips that
// one event and the feed continues.
func NormalizeFeed(feed Feed, target model.SourceTarget, defs []Definition, rangeStart, rangeEnd time.Time) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0)

	for _, def := range defs {
		occurrences, err := Expand(def, rangeStart, rangeEnd)
		if err != nil {
			appLog.Error("skipping event with malformed recurrence rule", err,
				"uid", def.UID, "url", redactURL(feed.URL))
			continue
		}
		for _, occ := range occurrences {
			ev, ok := normalizeOccurrence(def, occ, target, rangeStart, rangeEnd)
			if !ok {
				continue
			}
			out = append(out, ev)
		}
	}

	return out
}

// normalizeOccurrence converts one occurrence into the unified schema.
// It reports false for cancelled occurrences and for occurrences whose
// [start, end) does not overlap the half-open window.
func normalizeOccurrence(def Definition, occ Occurrence, target model.SourceTarget, rangeStart, rangeEnd time.Time) (model.CalendarEvent, bool) {
	status := occ.Status
	if status == "" {
		status = model.StatusConfirmed
	}
	if status == model.StatusCancelled {
		return model.CalendarEvent{}, false
	}

	start := occ.Start.UTC()
	end := occ.End.UTC()
	if !end.After(start) {
		// Lenient end synthesis for absent or mis-ordered DTEND.
		if def.AllDay {
			end = start.Add(24 * time.Hour)
		} else {
			end = start.Add(time.Hour)
		}
	}

	if !start.Before(rangeEnd) || !end.After(rangeStart) {
		return model.CalendarEvent{}, false
	}

	id := "ical:" + target.ID + ":" + def.UID
	if occ.RecurrenceID != nil {
		id += ":" + InstantKey(*occ.RecurrenceID)
	}

	summary := occ.Summary
	if summary == "" {
		summary = "Untitled event"
	}

	startValue := start.Format(time.RFC3339)
	endValue := end.Format(time.RFC3339)
	if def.AllDay {
		startValue = start.Format("2006-01-02")
		endValue = end.Format("2006-01-02")
	}

	return model.CalendarEvent{
		ID:            id,
		CalendarID:    target.ID,
		CalendarLabel: target.Label,
		CalendarColor: target.Color,
		Summary:       summary,
		Description:   occ.Description,
		Location:      occ.Location,
		Status:        status,
		Start:         startValue,
		End:           endValue,
		AllDay:        def.AllDay,
	}, true
}

// feedLabel resolves a feed's display label: configured label first, then
// the calendar's own name, then a label derived from the URL.
func feedLabel(feed Feed, calName string) string {
	if feed.Label != "" {
		return feed.Label
	}
	if calName != "" {
		return calName
	}
	return deriveLabelFromURL(feed.URL)
}

// deriveLabelFromURL turns a feed URL into a readable label: the last path
// segment without its .ics suffix, else the host, else the raw URL.
func deriveLabelFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	segments := strings.Split(parsed.Path, "/")
	last := ""
	for _, seg := range segments {
		if seg != "" {
			last = seg
		}
	}
	if last != "" {
		if decoded, err := url.PathUnescape(last); err == nil {
			last = decoded
		}
		last = strings.TrimSuffix(strings.TrimSuffix(last, ".ics"), ".ICS")
		if last != "" {
			return last
		}
	}
	if parsed.Host != "" {
		return parsed.Host
	}
	return raw
}
