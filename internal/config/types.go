package config

// Config is the root of the bot configuration file (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "30s", "10m").
// Empty or "0s" durations fall back to the component defaults.
type Config struct {
	Telegram      TelegramConfig      `json:"telegram"`
	Logging       LoggingConfig       `json:"logging"`
	Tracker       TrackerConfig       `json:"tracker"`
	Live          LiveConfig          `json:"live"`
	Announce      AnnounceConfig      `json:"announce"`
	Observability ObservabilityConfig `json:"observability"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// TrackerConfig controls the live schedule source and the cache in front
// of it.
//
// Defaults (when fields are omitted/zero):
//   - source_url: metaforge events-schedule endpoint
//   - fetch_timeout: "5s"
//   - freshness_window: "60s"
//   - rate_per_sec: 0 (unlimited)
//
// Disabled skips the live source entirely; every answer is derived from the
// rotation table.
type TrackerConfig struct {
	Disabled        bool    `json:"disabled,omitempty"`
	SourceURL       string  `json:"source_url,omitempty"`
	UserAgent       string  `json:"user_agent,omitempty"`
	FetchTimeout    string  `json:"fetch_timeout,omitempty"`
	FreshnessWindow string  `json:"freshness_window,omitempty"`
	RatePerSec      float64 `json:"rate_per_sec,omitempty"`
}

// LiveConfig holds the defaults for live-refreshing replies
// (interval "30s", max_duration "10m").
type LiveConfig struct {
	Interval    string `json:"interval,omitempty"`
	MaxDuration string `json:"max_duration,omitempty"`
}

// AnnounceConfig controls the scheduled "next wave" post.
//
// Spec is a standard 5-field cron expression evaluated in Timezone
// (default "55 * * * *", UTC).
type AnnounceConfig struct {
	Enabled  bool             `json:"enabled"`
	Spec     string           `json:"spec,omitempty"`
	Timezone string           `json:"timezone,omitempty"`
	Targets  []AnnounceTarget `json:"targets,omitempty"`
}

type AnnounceTarget struct {
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`
}

// ObservabilityConfig controls the optional HTTP server exposing
// /healthz, /metrics and (optionally) pprof.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9090").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type ObservabilityConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9090"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout string `json:"read_timeout,omitempty"`
	IdleTimeout string `json:"idle_timeout,omitempty"`
}
