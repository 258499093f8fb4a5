package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jasonhett/digitial-calendar/internal/config"
	appLog "github.com/jasonhett/digitial-calendar/internal/log"
)

// retryDelay is used after a failed sync attempt instead of the configured
// cadence, so transient outages recover faster than the nominal refresh
// interval.
const retryDelay = time.Minute

// Scheduler drives periodic background syncs. It has two states, idle and
// running; a tick that lands while a sync is still in flight is dropped
// (TrySync), never queued. Start and Stop are explicit lifecycle calls.
type Scheduler struct {
	orch       *Orchestrator
	configPath string

	// RetryDelay overrides the failure backoff; zero means the default.
	RetryDelay time.Duration

	startOnce gosync.Once
	stopOnce  gosync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewScheduler creates a scheduler for the given orchestrator. The config
// is re-read every cycle so cadence changes take effect without a restart.
func NewScheduler(orch *Orchestrator, configPath string) *Scheduler {
	return &Scheduler{
		orch:       orch,
		configPath: configPath,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the refresh loop. Safe to call once; a config with
// disable_auto_sync set turns Start into a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		cfg, err := config.Load(s.configPath)
		if err == nil && cfg.DisableAutoSync {
			appLog.Info("calendar auto-sync disabled")
			close(s.done)
			return
		}
		go s.loop(ctx)
	})
}

// Stop terminates the loop and waits for it to exit. A sync already in
// flight completes; there is no mid-sync cancellation.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	for {
		delay := s.runOnce(ctx)

		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// runOnce performs one sync attempt and returns how long to sleep before
// the next one. No failure ever terminates the loop.
func (s *Scheduler) runOnce(ctx context.Context) time.Duration {
	summary, ran, err := s.orch.TrySync(ctx, Options{})
	switch {
	case !ran:
		appLog.Info("calendar auto-sync skipped (already running)")
	case errors.Is(err, ErrNotConnected):
		appLog.Info("calendar auto-sync skipped (not connected)")
	case errors.Is(err, ErrNoSources):
		appLog.Info("calendar auto-sync skipped (no sources configured)")
	case err != nil:
		appLog.Error("calendar auto-sync failed", err)
		return s.retryDelay()
	default:
		appLog.Info("calendar auto-sync complete", "events", summary.Events, "calendars", summary.Calendars)
	}

	return s.interval()
}

func (s *Scheduler) retryDelay() time.Duration {
	if s.RetryDelay > 0 {
		return s.RetryDelay
	}
	return retryDelay
}

// interval derives the nominal sleep from configuration: the cron
// expression when one parses, else the legacy minute interval. Config
// errors also fall back to the retry delay.
func (s *Scheduler) interval() time.Duration {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		appLog.Error("refresh loop config read failed", err)
		return s.retryDelay()
	}

	if cfg.RefreshCron != "" {
		if sched, err := cron.ParseStandard(cfg.RefreshCron); err == nil {
			now := time.Now()
			if d := sched.Next(now).Sub(now); d > 0 {
				return d
			}
		} else {
			appLog.Error("invalid refresh cron expression", err, "refresh", cfg.RefreshCron)
		}
	}

	minutes := cfg.RefreshMinutes
	if minutes < 1 {
		minutes = 1
	}
	return time.Duration(minutes) * time.Minute
}
