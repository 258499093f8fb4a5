package gcal

import (
	"context"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/jasonhett/digitial-calendar/internal/model"
)

// NormalizeEvent maps one server-expanded Google event into the unified
// schema. It reports false for nil, cancelled, or start-less events.
func NormalizeEvent(ev *calendar.Event, target model.SourceTarget) (model.CalendarEvent, bool) {
	if ev == nil || ev.Status == model.StatusCancelled {
		return model.CalendarEvent{}, false
	}
	if ev.Start == nil {
		return model.CalendarEvent{}, false
	}

	allDay := ev.Start.Date != "" && ev.Start.DateTime == ""

	startValue := ev.Start.DateTime
	if startValue == "" {
		startValue = ev.Start.Date
	}
	if startValue == "" {
		return model.CalendarEvent{}, false
	}

	endValue := ""
	if ev.End != nil {
		if allDay {
			endValue = ev.End.Date
		} else {
			endValue = ev.End.DateTime
		}
	}
	startValue, endValue = synthesizeEnd(startValue, endValue, allDay)

	summary := ev.Summary
	if summary == "" {
		summary = "Untitled event"
	}
	status := ev.Status
	if status == "" {
		status = model.StatusConfirmed
	}

	return model.CalendarEvent{
		ID:            ev.Id,
		CalendarID:    target.ID,
		CalendarLabel: target.Label,
		CalendarColor: target.Color,
		Summary:       summary,
		Description:   ev.Description,
		Location:      ev.Location,
		Status:        status,
		Start:         startValue,
		End:           endValue,
		AllDay:        allDay,
	}, true
}

// synthesizeEnd enforces "end strictly after start": a missing or
// mis-ordered end becomes start+1h for timed events and the next day for
// all-day events. Timed values are also normalized to UTC RFC3339.
func synthesizeEnd(startValue, endValue string, allDay bool) (string, string) {
	if allDay {
		start, err := time.Parse("2006-01-02", startValue)
		if err != nil {
			return startValue, endValue
		}
		end, endErr := time.Parse("2006-01-02", endValue)
		if endErr != nil || !end.After(start) {
			endValue = start.AddDate(0, 0, 1).Format("2006-01-02")
		}
		return startValue, endValue
	}

	start, err := time.Parse(time.RFC3339, startValue)
	if err != nil {
		return startValue, endValue
	}
	end, endErr := time.Parse(time.RFC3339, endValue)
	if endErr != nil || !end.After(start) {
		end = start.Add(time.Hour)
	}
	return start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)
}

// SyncEvents pages through every target calendar and returns the
// normalized merge. Pagination for one calendar completes before the next
// target starts; any API error fails the whole Google branch (the
// orchestrator decides whether that is fatal).
func SyncEvents(ctx context.Context, client Client, targets []model.SourceTarget, timeMin, timeMax time.Time) ([]model.CalendarEvent, error) {
	events := []model.CalendarEvent{}

	for _, target := range targets {
		pageToken := ""
		for {
			resp, err := client.ListEvents(ctx, target.ID, timeMin, timeMax, pageToken)
			if err != nil {
				return nil, err
			}
			for _, item := range resp.Items {
				if normalized, ok := NormalizeEvent(item, target); ok {
					events = append(events, normalized)
				}
			}
			pageToken = resp.NextPageToken
			if pageToken == "" {
				break
			}
		}
	}

	return events, nil
}
