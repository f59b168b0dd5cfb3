package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "telegram": {"token": "123:abc", "owner_user_ids": [42], "poll_timeout": "10s"},
  "logging": {"level": "info", "console": true},
  "tracker": {"freshness_window": "60s", "fetch_timeout": "5s"},
  "live": {"interval": "30s", "max_duration": "10m"},
  "announce": {"enabled": true, "spec": "55 * * * *", "timezone": "UTC", "targets": [{"chat_id": -100123}]},
  "observability": {"enabled": true, "addr": "127.0.0.1:9090", "pprof": true}
}`

const sampleYAML = `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
logging:
  level: debug
tracker:
  disabled: true
live:
  interval: 15s
announce:
  enabled: false
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParse_JSON(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.json", sampleJSON)
	cfg, err := NewConfigManager(p).Parse()
	require.NoError(t, err)
	require.Equal(t, "123:abc", cfg.Telegram.Token)
	require.Equal(t, []int64{42}, cfg.Telegram.OwnerUserIDs)
	require.Equal(t, "60s", cfg.Tracker.FreshnessWindow)
	require.Len(t, cfg.Announce.Targets, 1)
	require.EqualValues(t, -100123, cfg.Announce.Targets[0].ChatID)
	require.NoError(t, Validate(cfg))
}

func TestParse_YAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)
	cfg, err := NewConfigManager(p).Parse()
	require.NoError(t, err)
	require.True(t, cfg.Tracker.Disabled)
	require.Equal(t, "15s", cfg.Live.Interval)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.NoError(t, Validate(cfg))
}

func TestParse_RejectsUnknownAndTrailing(t *testing.T) {
	dir := t.TempDir()

	p := writeFile(t, dir, "unknown.json", `{"telegram":{"token":"x"},"plugins":{}}`)
	_, err := NewConfigManager(p).Parse()
	require.Error(t, err)

	p = writeFile(t, dir, "trailing.json", `{"telegram":{"token":"x"}}{}`)
	_, err = NewConfigManager(p).Parse()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Telegram: TelegramConfig{Token: "t"}}
	}
	require.NoError(t, Validate(base()))

	cases := map[string]func(c *Config){
		"missing token":     func(c *Config) { c.Telegram.Token = "" },
		"bad duration":      func(c *Config) { c.Live.Interval = "soon" },
		"negative duration": func(c *Config) { c.Tracker.FreshnessWindow = "-1s" },
		"bad url":           func(c *Config) { c.Tracker.SourceURL = "ftp://x" },
		"bad cron": func(c *Config) {
			c.Announce = AnnounceConfig{Enabled: true, Spec: "every hour", Targets: []AnnounceTarget{{ChatID: 1}}}
		},
		"bad timezone": func(c *Config) {
			c.Announce = AnnounceConfig{Enabled: true, Timezone: "Mars/Olympus", Targets: []AnnounceTarget{{ChatID: 1}}}
		},
		"no targets": func(c *Config) { c.Announce = AnnounceConfig{Enabled: true} },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mut(c)
			require.Error(t, Validate(c))
		})
	}
}

func TestAnnounceDefaults(t *testing.T) {
	a := AnnounceConfig{}
	require.Equal(t, DefaultAnnounceSpec, a.SpecOrDefault())
	loc, err := a.Location()
	require.NoError(t, err)
	require.Equal(t, time.UTC, loc)
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 30*time.Second)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, d)

	d, err = ParseDurationOrDefault("x", " 2m ", 30*time.Second)
	require.NoError(t, err)
	require.Equal(t, 2*time.Minute, d)

	_, err = ParseDurationField("x", "-5s")
	require.Error(t, err)
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg := &Config{
		Telegram:      TelegramConfig{Token: "secret-1"},
		Observability: ObservabilityConfig{Token: "tok-1"},
	}
	newCfg := &Config{
		Telegram:      TelegramConfig{Token: "secret-1"},
		Live:          LiveConfig{Interval: "15s"},
		Tracker:       TrackerConfig{FreshnessWindow: "30s"},
		Observability: ObservabilityConfig{Token: "tok-2"},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	require.Equal(t, []string{"live", "observability", "tracker"}, changed)
	require.NotEmpty(t, attrs)

	changed, _ = SummarizeConfigChange(newCfg, newCfg)
	require.Empty(t, changed)
}

func TestWatch_PublishesValidChanges(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"telegram":{"token":"a"}}`)

	m := NewConfigManager(p)
	m.SetValidator(func(_ context.Context, c *Config) error { return Validate(c) })
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)

	// Invalid content is rejected and never published.
	require.NoError(t, os.WriteFile(p, []byte(`{"telegram":{"token":""}}`), 0o600))
	select {
	case c := <-ch:
		t.Fatalf("unexpected publish: %+v", c)
	case <-time.After(600 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(p, []byte(`{"telegram":{"token":"b"}}`), 0o600))
	select {
	case c := <-ch:
		require.Equal(t, "b", c.Telegram.Token)
	case <-time.After(3 * time.Second):
		t.Fatal("config not published")
	}
	require.Equal(t, "b", m.Get().Telegram.Token)

	cancel()
	<-done
}

func TestParse_ExampleConfig(t *testing.T) {
	cfg, err := NewConfigManager(filepath.Join("..", "..", "config.example.yaml")).Parse()
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	require.Equal(t, "30s", cfg.Live.Interval)
	require.EqualValues(t, -1001234567890, cfg.Announce.Targets[0].ChatID)
}
