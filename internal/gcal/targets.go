package gcal

import (
	"google.golang.org/api/calendar/v3"

	"github.com/jasonhett/digitial-calendar/internal/config"
	"github.com/jasonhett/digitial-calendar/internal/model"
)

// BuildTargets resolves which calendars take part in a sync and what label
// and color each gets.
//
// With configured selections, exactly the enabled ones are active; label
// and color fall back to the live listing's values and then to the default
// color. With an empty configuration every listed calendar is active;
// that is onboarding behavior, not an error state.
func BuildTargets(selections []config.CalendarSelection, list []*calendar.CalendarListEntry) []model.SourceTarget {
	listByID := make(map[string]*calendar.CalendarListEntry, len(list))
	for _, item := range list {
		if item != nil {
			listByID[item.Id] = item
		}
	}

	if len(selections) > 0 {
		targets := make([]model.SourceTarget, 0, len(selections))
		for _, sel := range selections {
			if !sel.Enabled {
				continue
			}
			item := listByID[sel.ID]

			label := sel.Label
			if label == "" && item != nil {
				label = item.Summary
			}
			if label == "" {
				label = sel.ID
			}

			color := sel.Color
			if color == "" && item != nil {
				color = item.BackgroundColor
			}
			if color == "" {
				color = model.DefaultColor
			}

			targets = append(targets, model.SourceTarget{ID: sel.ID, Label: label, Color: color})
		}
		return targets
	}

	targets := make([]model.SourceTarget, 0, len(list))
	for _, item := range list {
		if item == nil {
			continue
		}
		label := item.Summary
		if label == "" {
			label = item.Id
		}
		color := item.BackgroundColor
		if color == "" {
			color = model.DefaultColor
		}
		targets = append(targets, model.SourceTarget{ID: item.Id, Label: label, Color: color})
	}
	return targets
}
