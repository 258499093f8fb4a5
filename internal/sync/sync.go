// Package sync coordinates one aggregation pass: the Google branch, every
// enabled ICS feed, the merge, and snapshot persistence. It also owns the
// background refresh loop and the window-extension operation.
package sync

import (
	"context"
	"errors"
	"strings"
	gosync "sync"
	"time"

	"github.com/jasonhett/digitial-calendar/internal/config"
	"github.com/jasonhett/digitial-calendar/internal/gcal"
	"github.com/jasonhett/digitial-calendar/internal/ical"
	appLog "github.com/jasonhett/digitial-calendar/internal/log"
	"github.com/jasonhett/digitial-calendar/internal/model"
	"github.com/jasonhett/digitial-calendar/internal/store"
)

// Sync-level failures. Everything else degrades into a partial result plus
// a diagnostic entry in the summary.
var (
	// ErrNotConnected means the Google connection was explicitly demanded
	// and none exists. Background syncs treat a missing connection as zero
	// Google events instead.
	ErrNotConnected = errors.New("google account not connected")

	// ErrNoSources means neither Google is connected nor any feed is
	// enabled. Recoverable configuration problem, never fatal.
	ErrNoSources = errors.New("no calendar sources configured")
)

// Options control one orchestrator run.
type Options struct {
	// RequireGoogle makes a missing Google connection a failure (manual
	// "sync now" semantics) instead of an empty Google branch.
	RequireGoogle bool
}

// Orchestrator runs aggregation passes. At most one run executes at a
// time: Sync blocks on the shared lock, TrySync drops the request instead.
type Orchestrator struct {
	configPath string
	store      *store.Store
	fetcher    *ical.Fetcher
	google     gcal.Connector

	now func() time.Time

	mu gosync.Mutex
}

// New constructs an Orchestrator. google may be nil when the deployment
// has no Google integration at all.
func New(configPath string, st *store.Store, fetcher *ical.Fetcher, google gcal.Connector) *Orchestrator {
	return &Orchestrator{
		configPath: configPath,
		store:      st,
		fetcher:    fetcher,
		google:     google,
		now:        time.Now,
	}
}

// Sync runs one aggregation pass, waiting for any in-flight run first.
func (o *Orchestrator) Sync(ctx context.Context, opts Options) (model.SyncSummary, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run(ctx, opts)
}

// TrySync runs one pass unless another is already in flight, in which case
// the request is dropped and ok is false. Used by the refresh loop.
func (o *Orchestrator) TrySync(ctx context.Context, opts Options) (summary model.SyncSummary, ok bool, err error) {
	if !o.mu.TryLock() {
		return model.SyncSummary{}, false, nil
	}
	defer o.mu.Unlock()
	summary, err = o.run(ctx, opts)
	return summary, true, err
}

func (o *Orchestrator) run(ctx context.Context, opts Options) (model.SyncSummary, error) {
	var summary model.SyncSummary

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return summary, err
	}

	now := o.now().UTC()
	timeMin := now
	timeMax := now.Add(time.Duration(cfg.Google.SyncDays) * 24 * time.Hour)
	feeds := EnabledFeeds(cfg.ICal.Feeds)

	googleSummary, googleEvents, googleErr := o.syncGoogle(ctx, cfg, timeMin, timeMax, opts.RequireGoogle)
	if googleErr != nil {
		if opts.RequireGoogle {
			return summary, googleErr
		}
		googleSummary.Error = googleErr.Error()
	}

	// No connected Google account and no feed enabled: nothing to sync.
	// Checked before feed fetching to avoid wasted network calls. A
	// connected account with zero selected calendars still counts as a
	// source.
	if !googleSummary.Connected && len(feeds) == 0 {
		return summary, ErrNoSources
	}

	feedResult := ical.SyncFeeds(ctx, o.fetcher, feeds, timeMin, timeMax)

	// Plain concatenation: the same external event reaching us through
	// both sources stays duplicated - there is no reconciliation key.
	merged := make([]model.CalendarEvent, 0, len(googleEvents)+len(feedResult.Events))
	merged = append(merged, googleEvents...)
	merged = append(merged, feedResult.Events...)

	updatedAt := o.now().UTC()
	snap := model.EventCacheSnapshot{
		UpdatedAt: &updatedAt,
		Range:     &model.SyncRange{TimeMin: timeMin, TimeMax: timeMax},
		Events:    merged,
	}
	if err := o.store.Save(ctx, snap); err != nil {
		return summary, err
	}

	googleSummary.Events = len(googleEvents)
	summary = model.SyncSummary{
		UpdatedAt: updatedAt,
		Events:    len(merged),
		Calendars: googleSummary.Calendars + feedResult.Calendars,
		Sources: model.SourcesSummary{
			Google: googleSummary,
			ICal: model.FeedSummary{
				Calendars: feedResult.Calendars,
				Events:    len(feedResult.Events),
				Errors:    feedResult.Errors,
			},
		},
	}

	appLog.Info("calendar sync complete",
		"events", summary.Events,
		"calendars", summary.Calendars,
		"google_connected", googleSummary.Connected,
		"feed_errors", len(feedResult.Errors),
	)
	return summary, nil
}

func (o *Orchestrator) syncGoogle(ctx context.Context, cfg *config.Config, timeMin, timeMax time.Time, require bool) (model.GoogleSummary, []model.CalendarEvent, error) {
	var disconnected model.GoogleSummary

	if o.google == nil {
		if require {
			return disconnected, nil, ErrNotConnected
		}
		return disconnected, nil, nil
	}

	client, err := o.google.AuthorizedClient(ctx)
	if err != nil {
		return disconnected, nil, err
	}
	if client == nil {
		if require {
			return disconnected, nil, ErrNotConnected
		}
		return disconnected, nil, nil
	}

	list, err := client.ListCalendars(ctx)
	if err != nil {
		return disconnected, nil, err
	}

	targets := gcal.BuildTargets(cfg.Calendars, list)
	events, err := gcal.SyncEvents(ctx, client, targets, timeMin, timeMax)
	if err != nil {
		return disconnected, nil, err
	}

	return model.GoogleSummary{
		Connected: true,
		Calendars: len(targets),
		Events:    len(events),
	}, events, nil
}

// EnabledFeeds filters configured feeds down to the enabled ones with a
// non-empty URL, producing the transient sync-pass feed list.
func EnabledFeeds(feeds []config.FeedConfig) []ical.Feed {
	out := make([]ical.Feed, 0, len(feeds))
	for _, f := range feeds {
		url := strings.TrimSpace(f.URL)
		if !f.IsEnabled() || url == "" {
			continue
		}
		out = append(out, ical.Feed{
			ID:    url,
			URL:   url,
			Label: strings.TrimSpace(f.Label),
		})
	}
	return out
}

// ExtendResult reports the outcome of a window extension.
type ExtendResult struct {
	Updated  bool               `json:"updated"`
	SyncDays int                `json:"syncDays"`
	Summary  *model.SyncSummary `json:"summary,omitempty"`
}

// Extend widens the sync window so it covers target, clamped at the
// maximum, persists the new width to configuration, and runs one sync
// synchronously. A target not after the cached range (or not after now) is
// a no-op reporting Updated=false.
//
// The widened width is saved before the sync runs, so even a failing sync
// leaves the window in place for the next refresh pass; callers therefore
// receive the partial result alongside the error.
func (o *Orchestrator) Extend(ctx context.Context, target time.Time) (ExtendResult, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return ExtendResult{}, err
	}
	res := ExtendResult{SyncDays: cfg.Google.SyncDays}

	snap, err := o.store.Load(ctx)
	if err != nil {
		return res, err
	}

	now := o.now().UTC()
	if snap.Range != nil && !target.After(snap.Range.TimeMax) {
		return res, nil
	}
	if !target.After(now) {
		return res, nil
	}

	required := store.RequiredWindowDays(now, target)
	next := store.ClampWindowDays(cfg.Google.SyncDays, required)
	if next == cfg.Google.SyncDays {
		return res, nil
	}

	cfg.Google.SyncDays = next
	if err := cfg.Save(o.configPath); err != nil {
		return res, err
	}
	res.Updated = true
	res.SyncDays = next

	summary, err := o.Sync(ctx, Options{})
	if err != nil {
		return res, err
	}
	res.Summary = &summary
	return res, nil
}
