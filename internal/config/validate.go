package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultAnnounceSpec = "55 * * * *"

// Validate checks fields that would otherwise only fail when a component
// starts. It does not touch the network.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token: required"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}

	t := cfg.Tracker
	if u := strings.TrimSpace(t.SourceURL); u != "" {
		if pu, err := url.Parse(u); err != nil || (pu.Scheme != "http" && pu.Scheme != "https") || pu.Host == "" {
			errs = append(errs, fmt.Errorf("tracker.source_url: invalid url %q", u))
		}
	}
	if t.RatePerSec < 0 {
		errs = append(errs, errors.New("tracker.rate_per_sec: must be >= 0"))
	}
	for path, raw := range map[string]string{
		"tracker.fetch_timeout":      t.FetchTimeout,
		"tracker.freshness_window":   t.FreshnessWindow,
		"live.interval":              cfg.Live.Interval,
		"live.max_duration":          cfg.Live.MaxDuration,
		"observability.read_timeout": cfg.Observability.ReadTimeout,
		"observability.idle_timeout": cfg.Observability.IdleTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if a := cfg.Announce; a.Enabled {
		if _, err := a.Location(); err != nil {
			errs = append(errs, err)
		}
		if _, err := cron.ParseStandard(a.SpecOrDefault()); err != nil {
			errs = append(errs, fmt.Errorf("announce.spec: %w", err))
		}
		if len(a.Targets) == 0 {
			errs = append(errs, errors.New("announce.targets: at least one target required when enabled"))
		}
		for i, tg := range a.Targets {
			if tg.ChatID == 0 {
				errs = append(errs, fmt.Errorf("announce.targets[%d].chat_id: required", i))
			}
		}
	}

	return errors.Join(errs...)
}

func (a AnnounceConfig) SpecOrDefault() string {
	if s := strings.TrimSpace(a.Spec); s != "" {
		return s
	}
	return DefaultAnnounceSpec
}

// Location resolves Timezone; empty means UTC.
func (a AnnounceConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(a.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("announce.timezone: %w", err)
	}
	return loc, nil
}

// ParseDurationField parses a Go duration string at config path. Empty
// means zero; negative values are rejected.
func ParseDurationField(path, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
