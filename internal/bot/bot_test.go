package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"arcbot/internal/live"
	"arcbot/internal/tracker"
	kit "arcbot/internal/transport"
	"arcbot/internal/transport/telegram/router"
	"arcbot/internal/transport/transporttest"
	"arcbot/pkg/logx"
)

var testNow = time.Date(2025, 11, 3, 10, 15, 0, 0, time.UTC)

type fixture struct {
	bot  *Bot
	ad   *transporttest.Adapter
	live *live.Manager
	chat kit.ChatTarget
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	clock := func() time.Time { return testNow }

	lm := live.New(ctx, logx.Nop())
	ad := transporttest.New()
	cache := tracker.NewCache(nil, tracker.WithClock(clock))
	b := New(tracker.NewEngine(cache), lm, ad, logx.Nop(), WithClock(clock))
	go func() { _ = b.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		sctx, scancel := context.WithTimeout(context.Background(), time.Second)
		defer scancel()
		_ = lm.Stop(sctx)
	})
	return &fixture{bot: b, ad: ad, live: lm, chat: kit.ChatTarget{ChatID: -100, ThreadID: 3}}
}

func (f *fixture) req(args ...string) *router.Request {
	return &router.Request{
		Chat:      f.chat,
		Args:      args,
		BoolFlags: map[string]bool{},
		Adapter:   f.ad,
		Logger:    logx.Nop(),
	}
}

func (f *fixture) run(t *testing.T, route string, args ...string) {
	t.Helper()
	for _, c := range f.bot.Commands() {
		if c.Route == route {
			require.NoError(t, c.Handle(context.Background(), f.req(args...)))
			return
		}
	}
	t.Fatalf("no command %q", route)
}

func TestEvents_RendersActiveAndNextWave(t *testing.T) {
	f := newFixture(t)
	f.run(t, "events")

	msg, ok := f.ad.Last()
	require.True(t, ok)
	require.Equal(t, "HTML", msg.Opt.ParseMode)
	require.Contains(t, msg.Text, "ACTIVE NOW")
	require.Contains(t, msg.Text, "Locked Gate")
	require.Contains(t, msg.Text, "UPCOMING NEXT")
	require.Contains(t, msg.Text, "Lush Blooms")
	require.Contains(t, msg.Text, "starts in 45m (11:00 UTC)")
	require.Contains(t, msg.Text, "Rotation schedule")
}

func TestReply_DeletesPreviousReply(t *testing.T) {
	f := newFixture(t)
	f.run(t, "events")
	f.run(t, "next")

	sent := f.ad.Sent()
	require.Len(t, sent, 2)
	require.True(t, sent[0].Deleted)
	require.False(t, sent[1].Deleted)

	last, ok := f.bot.LastReply(f.chat)
	require.True(t, ok)
	require.Equal(t, sent[1].Ref, last)
}

func TestReply_OtherThreadIsIndependent(t *testing.T) {
	f := newFixture(t)
	f.run(t, "events")
	f.chat.ThreadID = 4
	f.run(t, "events")

	sent := f.ad.Sent()
	require.Len(t, sent, 2)
	require.False(t, sent[0].Deleted)
}

func TestEvent_LookupIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	f.run(t, "event", "launch", "tower", "LOOT")

	msg, _ := f.ad.Last()
	require.Contains(t, msg.Text, "Launch Tower Loot - Event Schedule")
	require.Contains(t, msg.Text, "Blue Gate")
	require.Contains(t, msg.Text, "Dam")
}

func TestEvent_UnknownListsKnownNames(t *testing.T) {
	f := newFixture(t)
	f.run(t, "event", "bogus")

	msg, _ := f.ad.Last()
	require.Contains(t, msg.Text, "Unknown event")
	for _, n := range tracker.EventNames {
		require.Contains(t, msg.Text, n)
	}
}

func TestMap_JoinsArgs(t *testing.T) {
	f := newFixture(t)
	f.run(t, "map", "stella", "montis")

	msg, _ := f.ad.Last()
	require.Contains(t, msg.Text, "Stella Montis - Event Schedule")
	require.Contains(t, msg.Text, "Bird City")
	require.Contains(t, msg.Text, "Locked Gate")
	require.NotContains(t, msg.Text, "Lush Blooms")
}

func TestAllEvents_GroupsByHour(t *testing.T) {
	f := newFixture(t)
	f.run(t, "allevents")

	msg, _ := f.ad.Last()
	require.Contains(t, msg.Text, "Next 24 Hours")
	require.Contains(t, msg.Text, "🔴 Now")
	require.Equal(t, 23, strings.Count(msg.Text, "🕐 "))
}

func TestEventsLive_StartsAndIsReplaced(t *testing.T) {
	f := newFixture(t)
	f.live.SetDefaults(live.Options{Interval: 20 * time.Millisecond, MaxDuration: time.Minute})

	f.run(t, "events", "live")
	first, _ := f.ad.Last()
	require.Contains(t, first.Text, "Live view")
	require.Equal(t, 1, f.live.Len())

	require.Eventually(t, func() bool {
		s, _ := f.ad.Get(first.Ref)
		return s.Edits > 0
	}, 2*time.Second, 10*time.Millisecond)

	f.run(t, "next")
	_, running := f.live.Active(first.Ref.Key())
	require.False(t, running)
	require.Equal(t, 0, f.live.Len())
}

func TestEventsLive_Flag(t *testing.T) {
	f := newFixture(t)
	req := f.req()
	req.BoolFlags["live"] = true
	require.NoError(t, f.bot.handleEvents(context.Background(), req))
	require.Equal(t, 1, f.live.Len())
}

func TestLiveStop(t *testing.T) {
	f := newFixture(t)
	f.run(t, "live stop")
	msg, _ := f.ad.Last()
	require.Equal(t, "No live view is running.", msg.Text)

	f.run(t, "events", "live")
	ref, _ := f.bot.LastReply(f.chat)
	f.run(t, "live stop")

	msg, _ = f.ad.Last()
	require.Equal(t, "Live view stopped.", msg.Text)
	require.Equal(t, 0, f.live.Len())

	// The confirmation is not tracked, so the live message stays.
	last, _ := f.bot.LastReply(f.chat)
	require.Equal(t, ref, last)
	s, _ := f.ad.Get(ref)
	require.False(t, s.Deleted)
	require.NotContains(t, s.Text, "Live view")
}

func TestEventsLive_TickErrorDropsLiveControls(t *testing.T) {
	f := newFixture(t)
	f.live.SetDefaults(live.Options{Interval: 20 * time.Millisecond, MaxDuration: time.Minute})
	f.ad.FailNextEdit(errors.New("message is not modified"))

	f.run(t, "events", "live")
	ref, _ := f.bot.LastReply(f.chat)

	require.Eventually(t, func() bool {
		s, _ := f.ad.Get(ref)
		return f.live.Len() == 0 && s.Edits == 1
	}, 2*time.Second, 10*time.Millisecond)
	s, _ := f.ad.Get(ref)
	require.NotContains(t, s.Text, "Live view")
}

func TestFinalize(t *testing.T) {
	f := newFixture(t)
	f.run(t, "events", "live")
	ref, _ := f.bot.LastReply(f.chat)

	// Still running: left alone.
	f.bot.finalize(ref, view{kind: viewEvents})
	s, _ := f.ad.Get(ref)
	require.Zero(t, s.Edits)

	require.True(t, f.live.Cancel(ref.Key()))
	f.bot.finalize(ref, view{kind: viewEvents})
	s, _ = f.ad.Get(ref)
	require.Equal(t, 1, s.Edits)
	require.NotContains(t, s.Text, "Live view")
}

func TestFinalize_SkippedAfterShutdown(t *testing.T) {
	f := newFixture(t)
	f.run(t, "events", "live")
	ref, _ := f.bot.LastReply(f.chat)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.live.Stop(ctx))

	f.bot.finalize(ref, view{kind: viewEvents})
	s, _ := f.ad.Get(ref)
	require.Zero(t, s.Edits)
	require.Contains(t, s.Text, "Live view")
}

func TestStop_NoTickAfterStop(t *testing.T) {
	f := newFixture(t)
	f.live.SetDefaults(live.Options{Interval: time.Millisecond, MaxDuration: time.Minute})
	f.run(t, "events", "live")
	ref, _ := f.bot.LastReply(f.chat)

	require.Eventually(t, func() bool {
		s, _ := f.ad.Get(ref)
		return s.Edits > 0
	}, 2*time.Second, time.Millisecond)

	req := f.req()
	req.Source = ref
	require.NoError(t, f.bot.handleStop(context.Background(), req, ""))
	after, _ := f.ad.Get(ref)
	require.NotContains(t, after.Text, "Live view")

	time.Sleep(20 * time.Millisecond)
	s, _ := f.ad.Get(ref)
	require.Equal(t, after.Edits, s.Edits)
	require.NotContains(t, s.Text, "Live view")
}

func TestChatLocksAreReleased(t *testing.T) {
	f := newFixture(t)
	for i := int64(1); i <= 5; i++ {
		f.chat = kit.ChatTarget{ChatID: i}
		f.run(t, "next")
	}
	f.run(t, "live stop")
	require.Zero(t, f.bot.locks.len())
}

func TestCallbacks_RefreshAndStop(t *testing.T) {
	f := newFixture(t)
	f.run(t, "map", "dam")
	ref, _ := f.bot.LastReply(f.chat)

	req := f.req()
	req.Source = ref
	require.NoError(t, f.bot.handleRefresh(context.Background(), req, "map=Dam"))
	s, _ := f.ad.Get(ref)
	require.Equal(t, 1, s.Edits)
	require.Contains(t, s.Text, "Dam - Event Schedule")

	require.Error(t, f.bot.handleRefresh(context.Background(), req, "map=Nowhere"))

	require.NoError(t, f.bot.handleStop(context.Background(), req, ""))
	s, _ = f.ad.Get(ref)
	require.Equal(t, 2, s.Edits)
	require.Contains(t, s.Text, "Dam - Event Schedule")
}

func TestParseView(t *testing.T) {
	for in, want := range map[string]view{
		"events":          {kind: viewEvents},
		"day":             {kind: viewDay},
		"event=matriarch": {kind: viewEvent, arg: tracker.EventMatriarch},
		"map=blue gate":   {kind: viewMap, arg: tracker.MapBlueGate},
	} {
		got, ok := parseView(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "events=x", "map=", "nope"} {
		_, ok := parseView(in)
		require.False(t, ok, in)
	}
}

func TestAnnouncement(t *testing.T) {
	f := newFixture(t)
	msg, ok := f.bot.Announcement(context.Background())
	require.True(t, ok)
	require.Contains(t, msg.Text, "Next wave starts in 45m")
	require.Contains(t, msg.Text, "Matriarch")
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.run(t, "events")
	f.run(t, "status")
	msg, _ := f.ad.Last()
	require.Contains(t, msg.Text, "Tracker status")
	require.Contains(t, msg.Text, "1m0s")
	require.Contains(t, msg.Text, "Tracked replies")
}
