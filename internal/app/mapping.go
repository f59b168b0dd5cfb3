package app

import (
	"strconv"
	"strings"
	"time"

	"arcbot/internal/announce"
	"arcbot/internal/config"
	"arcbot/internal/live"
	"arcbot/internal/observability/httpserver"
	"arcbot/internal/tracker"
	"arcbot/internal/tracker/metaforge"
	kit "arcbot/internal/transport"
	"arcbot/pkg/logx"
)

// trackerSettings is the tracker section with defaults applied.
type trackerSettings struct {
	Disabled  bool
	Source    metaforge.Config
	Freshness time.Duration
}

func mapTrackerConfig(cfg *config.Config) (trackerSettings, error) {
	tc := cfg.Tracker
	fetchTO, err := config.ParseDurationOrDefault("tracker.fetch_timeout", tc.FetchTimeout, tracker.DefaultFetchTimeout)
	if err != nil {
		return trackerSettings{}, err
	}
	fresh, err := config.ParseDurationOrDefault("tracker.freshness_window", tc.FreshnessWindow, tracker.DefaultFreshness)
	if err != nil {
		return trackerSettings{}, err
	}
	return trackerSettings{
		Disabled: tc.Disabled,
		Source: metaforge.Config{
			URL:        strings.TrimSpace(tc.SourceURL),
			UserAgent:  strings.TrimSpace(tc.UserAgent),
			Timeout:    fetchTO,
			RatePerSec: tc.RatePerSec,
		},
		Freshness: fresh,
	}, nil
}

func mapLiveConfig(cfg *config.Config) (live.Options, error) {
	iv, err := config.ParseDurationOrDefault("live.interval", cfg.Live.Interval, live.DefaultInterval)
	if err != nil {
		return live.Options{}, err
	}
	max, err := config.ParseDurationOrDefault("live.max_duration", cfg.Live.MaxDuration, live.DefaultMaxDuration)
	if err != nil {
		return live.Options{}, err
	}
	return live.Options{Interval: iv, MaxDuration: max}, nil
}

func mapAnnounceConfig(cfg *config.Config) (announce.Config, error) {
	ac := cfg.Announce
	loc, err := ac.Location()
	if err != nil {
		return announce.Config{}, err
	}
	targets := make([]kit.ChatTarget, 0, len(ac.Targets))
	for _, t := range ac.Targets {
		targets = append(targets, kit.ChatTarget{ChatID: t.ChatID, ThreadID: t.ThreadID})
	}
	return announce.Config{
		Enabled:  ac.Enabled,
		Spec:     ac.SpecOrDefault(),
		Location: loc,
		Targets:  targets,
	}, nil
}

func mapObservabilityConfig(cfg *config.Config) (httpserver.Config, error) {
	oc := cfg.Observability
	readTO, err := config.ParseDurationOrDefault("observability.read_timeout", oc.ReadTimeout, 5*time.Second)
	if err != nil {
		return httpserver.Config{}, err
	}
	idleTO, err := config.ParseDurationOrDefault("observability.idle_timeout", oc.IdleTimeout, 120*time.Second)
	if err != nil {
		return httpserver.Config{}, err
	}
	addr := strings.TrimSpace(oc.Addr)
	if addr == "" {
		addr = httpserver.DefaultAddr
	}
	return httpserver.Config{
		Enabled:       oc.Enabled,
		Addr:          addr,
		Token:         strings.TrimSpace(oc.Token),
		AllowInsecure: oc.AllowInsecure,
		Pprof:         oc.Pprof,
		ReadTimeout:   readTO,
		IdleTimeout:   idleTO,
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// logTarget parses telegram.group_log. Zero means no target.
func logTarget(cfg *config.Config) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
