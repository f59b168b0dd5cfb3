// Package bot implements the chat commands of the event tracker on top of
// the router, the tracker engine and the live view manager.
package bot

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	tele "gopkg.in/telebot.v4"

	"arcbot/internal/live"
	"arcbot/internal/tracker"
	kit "arcbot/internal/transport"
	"arcbot/pkg/logx"
	"arcbot/pkg/tgui"
)

// ReplyTTL is how long the last reply of a chat is remembered for cleanup.
// Telegram refuses to delete bot messages older than 48 hours.
const ReplyTTL = 48 * time.Hour

const (
	cbGroup     = "ev"
	cbRefresh   = "refresh"
	cbStop      = "stop"
	sendTimeout = 10 * time.Second
)

type Bot struct {
	engine *tracker.Engine
	live   *live.Manager
	ad     kit.Adapter
	log    logx.Logger
	now    func() time.Time

	replies *ttlcache.Cache[string, sent]
	locks   keyLocks
}

// sent is the last reply of a chat and the view it shows.
type sent struct {
	ref  kit.MessageRef
	view view
}

type Option func(*Bot)

func WithClock(now func() time.Time) Option { return func(b *Bot) { b.now = now } }

func New(engine *tracker.Engine, lm *live.Manager, ad kit.Adapter, log logx.Logger, opts ...Option) *Bot {
	b := &Bot{
		engine: engine,
		live:   lm,
		ad:     ad,
		log:    log,
		now:    time.Now,
		replies: ttlcache.New[string, sent](
			ttlcache.WithTTL[string, sent](ReplyTTL),
			ttlcache.WithDisableTouchOnHit[string, sent](),
		),
	}
	for _, o := range opts {
		o(b)
	}
	b.replies.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, it *ttlcache.Item[string, sent]) {
		if reason == ttlcache.EvictionReasonExpired {
			b.live.Cancel(it.Value().ref.Key())
		}
	})
	return b
}

// Run expires remembered replies until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		b.replies.Stop()
	}()
	b.replies.Start()
	return nil
}

// LastReply returns the reply the bot last sent to chat.
func (b *Bot) LastReply(chat kit.ChatTarget) (kit.MessageRef, bool) {
	if it := b.replies.Get(chat.Key()); it != nil {
		return it.Value().ref, true
	}
	return kit.MessageRef{}, false
}

// viewOf returns the view shown by ref, falling back to the events view
// for messages the bot no longer tracks.
func (b *Bot) viewOf(ref kit.MessageRef) view {
	if it := b.replies.Get(chatOf(ref).Key()); it != nil && it.Value().ref == ref && it.Value().view.kind != "" {
		return it.Value().view
	}
	return view{kind: viewEvents}
}

func chatOf(ref kit.MessageRef) kit.ChatTarget {
	return kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}
}

// keyLocks hands out one mutex per chat and forgets it when nobody holds or
// waits for it.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (l *keyLocks) lock(key string) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*keyLock)
	}
	k := l.m[key]
	if k == nil {
		k = &keyLock{}
		l.m[key] = k
	}
	k.refs++
	l.mu.Unlock()

	k.mu.Lock()
	return func() {
		k.mu.Unlock()
		l.mu.Lock()
		k.refs--
		if k.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}

func (l *keyLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// reply replaces the previous reply in chat with msg: the old message is
// deleted and its live view cancelled before msg is sent.
func (b *Bot) reply(ctx context.Context, chat kit.ChatTarget, v view, msg tgui.Message) (kit.MessageRef, error) {
	key := chat.Key()
	defer b.locks.lock(key)()

	if it, ok := b.replies.GetAndDelete(key); ok {
		prev := it.Value().ref
		b.live.Cancel(prev.Key())
		if err := b.ad.DeleteText(ctx, prev); err != nil {
			b.log.Debug("could not delete previous reply", logx.String("chat", key), logx.Err(err))
		}
	}

	ref, err := msg.Send(ctx, b.ad, chat)
	if err != nil {
		return kit.MessageRef{}, err
	}
	b.replies.Set(key, sent{ref: ref, view: v}, ttlcache.DefaultTTL)
	return ref, nil
}

// render builds the message for v. A non-nil ls marks it as a live view.
func (b *Bot) render(ctx context.Context, v view, ls *liveState) tgui.Message {
	now := b.now()
	mb := tgui.New()

	var (
		origin    tracker.Origin
		fetchedAt time.Time
	)
	switch v.kind {
	case viewDay:
		ws, o := b.engine.Next24Hours(ctx)
		renderDay(mb, ws, now)
		origin, fetchedAt = o, b.engine.Cache().Peek().FetchedAt
		if o != tracker.OriginLive {
			fetchedAt = now
		}
	default:
		snap := b.engine.Current(ctx)
		origin, fetchedAt = snap.Origin, snap.FetchedAt
		switch v.kind {
		case viewNext:
			renderUpcoming(mb, snap, now)
		case viewEvent:
			renderFiltered(mb, "📍", v.arg, tracker.FilterByName(snap.Set, v.arg),
				func(w tracker.Window) string { return w.Map }, now,
				"No "+v.arg+" events scheduled in the near future.")
		case viewMap:
			renderFiltered(mb, "🗺️", v.arg, tracker.FilterByMap(snap.Set, v.arg),
				func(w tracker.Window) string { return w.Name }, now,
				"No events scheduled on "+v.arg+" in the near future.")
		default:
			renderEvents(mb, snap, now)
		}
	}

	footer(mb, origin, fetchedAt, now)
	liveNote(mb, ls)
	mb.Inline(keyboard(v, ls != nil))
	return mb.Build()
}

func keyboard(v view, isLive bool) *tgui.Inline {
	refresh, err := tgui.Data(cbGroup, cbRefresh, v.String())
	if err != nil {
		return nil
	}
	row := []tele.Btn{tgui.Btn("🔄 Refresh", refresh)}
	if isLive {
		stop, _ := tgui.Data(cbGroup, cbStop, "")
		row = append(row, tgui.Btn("⏹ Stop live", stop))
	}
	return tgui.NewInline().Row(row...)
}

// newLiveState describes a live view started now with the manager defaults.
func (b *Bot) newLiveState() *liveState {
	d := b.live.Defaults()
	return &liveState{interval: d.Interval, until: b.now().Add(d.MaxDuration)}
}

// startLive keeps ref refreshed with v until the live view ends. When it
// expires or fails the live controls are dropped from the message.
func (b *Bot) startLive(ref kit.MessageRef, v view, ls *liveState) (live.Handle, error) {
	key := ref.Key()
	chat := chatOf(ref).Key()
	tick := func(ctx context.Context) error {
		defer b.locks.lock(chat)()
		if _, on := b.live.Active(key); !on {
			return nil
		}
		return b.render(ctx, v, ls).Edit(ctx, b.ad, ref)
	}
	onErr := func(h live.Handle, err error) {
		b.log.Info("live view ended", logx.String("key", h.Key), logx.Err(err))
		b.finalize(ref, v)
	}
	o := live.Options{Interval: ls.interval, MaxDuration: ls.until.Sub(b.now())}
	h, err := b.live.Start(key, o, tick, onErr)
	if err != nil {
		return live.Handle{}, err
	}
	t := time.AfterFunc(o.MaxDuration+time.Second, func() { b.finalize(ref, v) })
	context.AfterFunc(b.live.Context(), func() { t.Stop() })
	return h, nil
}

// finalize redraws ref without live controls once its live view is over,
// as long as ref is still the chat's last reply and the manager runs.
func (b *Bot) finalize(ref kit.MessageRef, v view) {
	ctx, cancel := context.WithTimeout(b.live.Context(), sendTimeout)
	defer cancel()

	chat := chatOf(ref)
	defer b.locks.lock(chat.Key())()
	if ctx.Err() != nil {
		return
	}
	if _, running := b.live.Active(ref.Key()); running {
		return
	}
	if last, ok := b.LastReply(chat); !ok || last != ref {
		return
	}
	if err := b.render(ctx, v, nil).Edit(ctx, b.ad, ref); err != nil {
		b.log.Debug("could not finalize live view", logx.String("key", ref.Key()), logx.Err(err))
	}
}
