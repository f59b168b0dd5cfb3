// Package app wires the tracker, the chat bot and the operational services
// together and applies configuration hot reloads.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"arcbot/internal/announce"
	"arcbot/internal/bot"
	"arcbot/internal/config"
	"arcbot/internal/eventbus"
	"arcbot/internal/live"
	"arcbot/internal/observability/httpserver"
	"arcbot/internal/runtime/supervisor"
	"arcbot/internal/tracker"
	"arcbot/internal/tracker/metaforge"
	kit "arcbot/internal/transport"
	telegram "arcbot/internal/transport/telegram/adapter"
	"arcbot/internal/transport/telegram/router"
	"arcbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	adapter kit.Adapter
	cache   *tracker.Cache
	engine  *tracker.Engine
	live    *live.Manager
	bot     *bot.Bot
	cmdm    *router.CommandManager
	ann     *announce.Service
	http    *httpserver.Server

	lastFallback atomic.Pointer[tracker.FallbackInfo]

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return config.Validate(cfg) })
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole("INFO").With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	return newApp(cfgm, cfg, ad)
}

// newApp builds the app around an already connected adapter.
func newApp(cfgm *config.ConfigManager, cfg *config.Config, ad kit.Adapter) (*App, error) {
	// Telegram logging is enabled only after its target is set, so Apply
	// does not warn about a missing target.
	baseLogCfg := mapLogConfig(cfg)
	baseLogCfg.Telegram.Enabled = false
	logSvc, log := logx.New(baseLogCfg, ad)
	if id := logTarget(cfg); id != 0 {
		logSvc.SetTelegramTarget(id, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(mapLogConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	ts, err := mapTrackerConfig(cfg)
	if err != nil {
		return nil, err
	}
	var src tracker.Source
	if !ts.Disabled {
		src = metaforge.New(ts.Source, log.With(logx.String("comp", "metaforge")))
	}
	cache := tracker.NewCache(src,
		tracker.WithLogger(log.With(logx.String("comp", "tracker"))),
		tracker.WithBus(bus),
		tracker.WithFreshness(ts.Freshness),
		tracker.WithFetchTimeout(ts.Source.Timeout),
	)

	return &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		adapter: ad,
		cache:   cache,
		engine:  tracker.NewEngine(cache),
		cmdm:    router.NewCommandManager(log.With(logx.String("comp", "commands")), ad, cfg.Telegram.OwnerUserIDs),
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()
	cfg := a.cfgm.Get()

	a.live = live.New(runCtx, a.log.With(logx.String("comp", "live")))
	if o, err := mapLiveConfig(cfg); err == nil {
		a.live.SetDefaults(o)
	}
	a.bot = bot.New(a.engine, a.live, a.adapter, a.log.With(logx.String("comp", "bot")))
	a.ann = announce.New(a.adapter, a.bot.Announcement, a.log.With(logx.String("comp", "announce")))
	a.http = httpserver.New(a.statusDoc, a.log.With(logx.String("comp", "http")))

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	a.cmdm.SetRegistry(runCtx, a.bot.Commands(), a.bot.Callbacks())

	a.sup.Go("bot.replies", a.bot.Run)
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	if ac, err := mapAnnounceConfig(cfg); err != nil {
		a.log.Warn("invalid announce config", logx.Err(err))
	} else if err := a.ann.Apply(ac); err != nil {
		a.log.Warn("announcements not scheduled", logx.Err(err))
	}
	if err := a.ann.Start(runCtx); err != nil {
		a.log.Warn("announcements not scheduled", logx.Err(err))
	}
	if oc, err := mapObservabilityConfig(cfg); err == nil {
		a.http.Reconfigure(runCtx, oc)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if fi, ok := e.Data.(tracker.FallbackInfo); ok {
					a.lastFallback.Store(&fi)
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.Bool("live_source", !cfg.Tracker.Disabled))
	return nil
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, fields := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	// update log target first so Apply does not warn when Telegram logging is enabled
	a.logs.SetTelegramTarget(logTarget(newCfg), newCfg.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogConfig(newCfg))

	a.cmdm.SetOwners(newCfg.Telegram.OwnerUserIDs)

	if ts, err := mapTrackerConfig(newCfg); err != nil {
		a.log.Warn("invalid tracker config; keeping previous", logx.Err(err))
	} else {
		a.cache.SetFreshness(ts.Freshness)
	}
	if oldCfg.Tracker.Disabled != newCfg.Tracker.Disabled ||
		oldCfg.Tracker.SourceURL != newCfg.Tracker.SourceURL ||
		oldCfg.Tracker.UserAgent != newCfg.Tracker.UserAgent ||
		oldCfg.Tracker.FetchTimeout != newCfg.Tracker.FetchTimeout ||
		oldCfg.Tracker.RatePerSec != newCfg.Tracker.RatePerSec {
		a.log.Warn("tracker source changed; restart required for changes to take effect")
	}
	if oldCfg.Telegram.Token != newCfg.Telegram.Token || oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout {
		a.log.Warn("telegram connection changed; restart required for changes to take effect")
	}

	if o, err := mapLiveConfig(newCfg); err != nil {
		a.log.Warn("invalid live config; keeping previous", logx.Err(err))
	} else {
		a.live.SetDefaults(o)
	}

	if ac, err := mapAnnounceConfig(newCfg); err != nil {
		a.log.Warn("invalid announce config; keeping previous", logx.Err(err))
	} else if err := a.ann.Apply(ac); err != nil {
		a.log.Warn("announce config rejected", logx.Err(err))
	}

	if oc, err := mapObservabilityConfig(newCfg); err != nil {
		a.log.Warn("invalid observability config; keeping previous", logx.Err(err))
	} else {
		a.http.Reconfigure(ctx, oc)
	}

	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)
}

// Status is the document served at /status.
type Status struct {
	Origin           tracker.Origin        `json:"origin"`
	FetchedAt        time.Time             `json:"fetched_at,omitzero"`
	Freshness        string                `json:"freshness"`
	LiveViews        []live.Handle         `json:"live_views"`
	LastFallback     *tracker.FallbackInfo `json:"last_fallback,omitempty"`
	NextAnnouncement time.Time             `json:"next_announcement,omitzero"`
}

func (a *App) statusDoc(context.Context) any {
	snap := a.cache.Peek()
	return Status{
		Origin:           snap.Origin,
		FetchedAt:        snap.FetchedAt,
		Freshness:        a.cache.Freshness().String(),
		LiveViews:        a.live.List(),
		LastFallback:     a.lastFallback.Load(),
		NextAnnouncement: a.ann.Next(),
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// step bounds one shutdown step so a single component cannot stall Stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("announce", 2*time.Second, a.ann.Stop)
	step("live", 2*time.Second, a.live.Stop)
	step("http", 1*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
