package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jasonhett/digitial-calendar/internal/config"
	"github.com/jasonhett/digitial-calendar/internal/gcal"
	"github.com/jasonhett/digitial-calendar/internal/ical"
	appLog "github.com/jasonhett/digitial-calendar/internal/log"
	"github.com/jasonhett/digitial-calendar/internal/store"
	appsync "github.com/jasonhett/digitial-calendar/internal/sync"
	"github.com/jasonhett/digitial-calendar/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		cfg.Listen = flags.listen
	}

	appLog.Info("calendard starting",
		"listen", cfg.Listen,
		"sync_days", cfg.Google.SyncDays,
		"refresh", cfg.RefreshCron,
		"feed_count", len(cfg.ICal.Feeds),
		"calendar_count", len(cfg.Calendars),
		"once", flags.once,
	)

	st, err := store.Open(filepath.Join(cfg.DataDir, "events.db"))
	if err != nil {
		appLog.Error("failed to open event cache store", err, "data_dir", cfg.DataDir)
		os.Exit(1)
	}
	defer st.Close()

	fetcher := ical.NewFetcher(filepath.Join(cfg.DataDir, "feed-cache"))

	tokenFile := cfg.Google.TokenFile
	if tokenFile == "" {
		tokenFile = filepath.Join(cfg.DataDir, "google-token.json")
	}
	connector := &gcal.FileConnector{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		TokenFile:    tokenFile,
	}

	orch := appsync.New(flags.configPath, st, fetcher, connector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.once {
		if _, err := orch.Sync(ctx, appsync.Options{}); err != nil {
			appLog.Error("sync failed", err)
			os.Exit(1)
		}
		return
	}

	scheduler := appsync.NewScheduler(orch, flags.configPath)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	server := web.NewServer(cfg, st, orch)
	if err := web.ListenAndServe(ctx, server); err != nil && !errors.Is(err, context.Canceled) {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}

	appLog.Info("calendard exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/calendard/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one sync and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
