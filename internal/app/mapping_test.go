package app

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"arcbot/internal/config"
	"arcbot/internal/live"
	"arcbot/internal/observability/httpserver"
	"arcbot/internal/tracker"
	kit "arcbot/internal/transport"
)

func TestMapTrackerConfig_Defaults(t *testing.T) {
	ts, err := mapTrackerConfig(&config.Config{})
	require.NoError(t, err)
	require.False(t, ts.Disabled)
	require.Equal(t, tracker.DefaultFreshness, ts.Freshness)
	require.Equal(t, tracker.DefaultFetchTimeout, ts.Source.Timeout)
	require.Empty(t, ts.Source.URL)
}

func TestMapTrackerConfig_Values(t *testing.T) {
	ts, err := mapTrackerConfig(&config.Config{Tracker: config.TrackerConfig{
		SourceURL:       " https://example.test/schedule ",
		FetchTimeout:    "2s",
		FreshnessWindow: "90s",
		RatePerSec:      0.5,
	}})
	require.NoError(t, err)
	require.Equal(t, "https://example.test/schedule", ts.Source.URL)
	require.Equal(t, 2*time.Second, ts.Source.Timeout)
	require.Equal(t, 90*time.Second, ts.Freshness)
	require.Equal(t, 0.5, ts.Source.RatePerSec)

	_, err = mapTrackerConfig(&config.Config{Tracker: config.TrackerConfig{FreshnessWindow: "soon"}})
	require.Error(t, err)
}

func TestMapLiveConfig(t *testing.T) {
	o, err := mapLiveConfig(&config.Config{})
	require.NoError(t, err)
	require.Equal(t, live.Options{Interval: live.DefaultInterval, MaxDuration: live.DefaultMaxDuration}, o)

	o, err = mapLiveConfig(&config.Config{Live: config.LiveConfig{Interval: "15s", MaxDuration: "5m"}})
	require.NoError(t, err)
	require.Equal(t, live.Options{Interval: 15 * time.Second, MaxDuration: 5 * time.Minute}, o)
}

func TestMapAnnounceConfig(t *testing.T) {
	ac, err := mapAnnounceConfig(&config.Config{Announce: config.AnnounceConfig{
		Enabled:  true,
		Timezone: "Asia/Jakarta",
		Targets:  []config.AnnounceTarget{{ChatID: -100, ThreadID: 2}},
	}})
	require.NoError(t, err)
	require.True(t, ac.Enabled)
	require.Equal(t, config.DefaultAnnounceSpec, ac.Spec)
	require.Equal(t, "Asia/Jakarta", ac.Location.String())
	require.Equal(t, []kit.ChatTarget{{ChatID: -100, ThreadID: 2}}, ac.Targets)

	_, err = mapAnnounceConfig(&config.Config{Announce: config.AnnounceConfig{Timezone: "Nowhere/City"}})
	require.Error(t, err)
}

func TestMapObservabilityConfig(t *testing.T) {
	oc, err := mapObservabilityConfig(&config.Config{Observability: config.ObservabilityConfig{
		Enabled: true,
		Token:   " t ",
		Pprof:   true,
	}})
	require.NoError(t, err)
	require.Equal(t, httpserver.Config{
		Enabled:     true,
		Addr:        httpserver.DefaultAddr,
		Token:       "t",
		Pprof:       true,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}, oc)
}

func TestLogTarget(t *testing.T) {
	cfg := &config.Config{}
	require.Zero(t, logTarget(cfg))
	cfg.Telegram.GroupLog = " -100123 "
	require.EqualValues(t, -100123, logTarget(cfg))
	cfg.Telegram.GroupLog = "@channel"
	require.Zero(t, logTarget(cfg))
}
