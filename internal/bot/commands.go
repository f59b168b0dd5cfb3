package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"arcbot/internal/tracker"
	"arcbot/internal/transport/telegram/router"
	"arcbot/pkg/logx"
	"arcbot/pkg/tgui"
)

const cmdTimeout = 15 * time.Second

// Commands returns the command table served by the bot.
func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{
			Route:       "events",
			Aliases:     []string{"e"},
			Description: "active events and the next wave",
			Usage:       "/events [live]",
			Timeout:     cmdTimeout,
			Handle:      b.handleEvents,
		},
		{
			Route:       "next",
			Description: "upcoming events",
			Usage:       "/next",
			Timeout:     cmdTimeout,
			Handle:      b.handleView(view{kind: viewNext}),
		},
		{
			Route:       "event",
			Description: "schedule of one event type",
			Usage:       "/event <name>",
			Timeout:     cmdTimeout,
			Handle:      b.handleEvent,
		},
		{
			Route:       "map",
			Description: "schedule of one map",
			Usage:       "/map <name>",
			Timeout:     cmdTimeout,
			Handle:      b.handleMap,
		},
		{
			Route:       "allevents",
			Aliases:     []string{"day"},
			Description: "events of the next 24 hours",
			Usage:       "/allevents",
			Timeout:     cmdTimeout,
			Handle:      b.handleView(view{kind: viewDay}),
		},
		{
			Route:       "live stop",
			Description: "stop the live view",
			Usage:       "/live stop",
			Handle:      b.handleLiveStop,
		},
		{
			Route:       "status",
			Description: "tracker status",
			Usage:       "/status",
			Access:      router.AccessOwnerOnly,
			Handle:      b.handleStatus,
		},
	}
}

// Callbacks returns the inline button routes served by the bot.
func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Group: cbGroup, Action: cbRefresh, Timeout: cmdTimeout, Handle: b.handleRefresh},
		{Group: cbGroup, Action: cbStop, Handle: b.handleStop},
	}
}

func (b *Bot) handleView(v view) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		_, err := b.reply(ctx, req.Chat, v, b.render(ctx, v, nil))
		return err
	}
}

func (b *Bot) handleEvents(ctx context.Context, req *router.Request) error {
	v := view{kind: viewEvents}
	wantLive := req.BoolFlags["live"]
	for _, a := range req.Args {
		if strings.EqualFold(a, "live") {
			wantLive = true
		}
	}
	if !wantLive {
		return b.handleView(v)(ctx, req)
	}

	ls := b.newLiveState()
	ref, err := b.reply(ctx, req.Chat, v, b.render(ctx, v, ls))
	if err != nil {
		return err
	}
	h, err := b.startLive(ref, v, ls)
	if err != nil {
		return err
	}
	req.Logger.Info("live view started", logx.String("key", h.Key), logx.String("id", h.ID))
	return nil
}

func (b *Bot) handleEvent(ctx context.Context, req *router.Request) error {
	arg := strings.Join(req.Args, " ")
	name, ok := tracker.LookupEvent(arg)
	if !ok {
		return b.usage(ctx, req, "Unknown event. Usage: /event <name>", tracker.EventNames)
	}
	return b.handleView(view{kind: viewEvent, arg: name})(ctx, req)
}

func (b *Bot) handleMap(ctx context.Context, req *router.Request) error {
	arg := strings.Join(req.Args, " ")
	name, ok := tracker.LookupMap(arg)
	if !ok {
		return b.usage(ctx, req, "Unknown map. Usage: /map <name>", tracker.Maps)
	}
	return b.handleView(view{kind: viewMap, arg: name})(ctx, req)
}

func (b *Bot) usage(ctx context.Context, req *router.Request, head string, known []string) error {
	mb := tgui.New().Line(head).Blank().H(tgui.B("Known names:"))
	for _, n := range known {
		mb.H(tgui.JoinH("", tgui.Raw("• "), tgui.Code(n)))
	}
	_, err := b.reply(ctx, req.Chat, view{}, mb.Build())
	return err
}

func (b *Bot) handleLiveStop(ctx context.Context, req *router.Request) error {
	text := "No live view is running."
	unlock := b.locks.lock(req.Chat.Key())
	if ref, ok := b.LastReply(req.Chat); ok && b.live.Cancel(ref.Key()) {
		text = "Live view stopped."
		if err := b.render(ctx, b.viewOf(ref), nil).Edit(ctx, b.ad, ref); err != nil {
			req.Logger.Debug("could not finalize live view", logx.Err(err))
		}
	}
	unlock()
	_, err := tgui.New().Line(text).Build().Send(ctx, b.ad, req.Chat)
	return err
}

func (b *Bot) handleStatus(ctx context.Context, req *router.Request) error {
	now := b.now()
	c := b.engine.Cache()
	snap := c.Peek()

	mb := tgui.New().Title("🛠", "Tracker status")
	if snap.FetchedAt.IsZero() {
		mb.KV("Cache", "empty")
	} else {
		mb.KV("Cache", fmt.Sprintf("%s, %d events, age %s", snap.Origin, snap.Set.Len(), humanDur(snap.Age(now))))
	}
	mb.KV("Freshness", c.Freshness().String())
	d := b.live.Defaults()
	mb.KV("Live views", fmt.Sprintf("%d active (every %s, up to %s)", b.live.Len(), d.Interval, d.MaxDuration))
	mb.KV("Tracked replies", fmt.Sprintf("%d", b.replies.Len()))
	_, err := mb.Build().Send(ctx, b.ad, req.Chat)
	return err
}

func (b *Bot) handleRefresh(ctx context.Context, req *router.Request, payload string) error {
	v, ok := parseView(payload)
	if !ok {
		return fmt.Errorf("bad refresh payload %q", payload)
	}
	defer b.locks.lock(chatOf(req.Source).Key())()
	var ls *liveState
	if h, on := b.live.Active(req.Source.Key()); on {
		ls = &liveState{interval: h.Interval, until: h.ExpiresAt}
	}
	return b.render(ctx, v, ls).Edit(ctx, b.ad, req.Source)
}

func (b *Bot) handleStop(ctx context.Context, req *router.Request, _ string) error {
	defer b.locks.lock(chatOf(req.Source).Key())()
	b.live.Cancel(req.Source.Key())
	return b.render(ctx, b.viewOf(req.Source), nil).Edit(ctx, b.ad, req.Source)
}

// Announcement composes the scheduled post about the next wave. It reports
// false when nothing is upcoming.
func (b *Bot) Announcement(ctx context.Context) (tgui.Message, bool) {
	snap := b.engine.Current(ctx)
	wave := tracker.NextWave(snap.Set)
	if len(wave) == 0 {
		return tgui.Message{}, false
	}
	now := b.now()
	mb := tgui.New()
	renderWave(mb, wave, now)
	footer(mb, snap.Origin, snap.FetchedAt, now)
	return mb.Build(), true
}
