package bot

import (
	"fmt"
	"time"

	"arcbot/internal/tracker"
	"arcbot/pkg/tgui"
)

const (
	nextLimit     = 10
	filteredLimit = 8

	metaforgeSite = "https://metaforge.app/arc-raiders"
)

var mapEmoji = map[string]string{
	tracker.MapSpaceport:    "🚀",
	tracker.MapBlueGate:     "🌉",
	tracker.MapBuriedCity:   "🏚️",
	tracker.MapDam:          "🌊",
	tracker.MapStellaMontis: "🏔️",
}

// humanDur renders a coarse duration: "<1m", "42m", "3h 05m".
func humanDur(d time.Duration) string {
	if d < time.Minute {
		return "<1m"
	}
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %02dm", h, m)
}

func clock(t time.Time) string { return t.UTC().Format("15:04") + " UTC" }

func startsIn(w tracker.Window, now time.Time) string {
	return "starts in " + humanDur(w.StartsAt.Sub(now)) + " (" + clock(w.StartsAt) + ")"
}

func endsIn(w tracker.Window, now time.Time) string {
	return "ends in " + humanDur(w.EndsAt.Sub(now)) + " (" + clock(w.EndsAt) + ")"
}

func mapLabel(m string) string {
	if e, ok := mapEmoji[m]; ok {
		return e + " " + m
	}
	return "📍 " + m
}

// footer says where the data came from.
func footer(b *tgui.Builder, origin tracker.Origin, fetchedAt, now time.Time) {
	b.Blank()
	switch origin {
	case tracker.OriginLive:
		b.H(tgui.JoinH(" ",
			tgui.I("📡 Live data from"),
			tgui.Link("metaforge.app", metaforgeSite),
			tgui.I("updated "+humanDur(now.Sub(fetchedAt))+" ago"),
		))
	default:
		b.H(tgui.I("🧮 Rotation schedule (live data unavailable)"))
	}
}

type liveState struct {
	interval time.Duration
	until    time.Time
}

func liveNote(b *tgui.Builder, live *liveState) {
	if live == nil {
		return
	}
	b.H(tgui.I(fmt.Sprintf("🔴 Live view, refreshes every %s until %s", live.interval, clock(live.until))))
}

func renderEvents(b *tgui.Builder, snap tracker.Snapshot, now time.Time) {
	b.Title("🟢", "Arc Raiders - Active Events")

	b.Section("━━━ ACTIVE NOW ━━━")
	if len(snap.Set.Active) == 0 {
		b.Line("⚫ No active events")
	}
	for _, w := range snap.Set.Active {
		b.H(tgui.JoinH(" • ", tgui.B(w.Name), tgui.Esc(mapLabel(w.Map))))
		b.Line("   ⏱️ " + endsIn(w, now))
	}

	if wave := tracker.NextWave(snap.Set); len(wave) > 0 {
		b.Section("━━━ UPCOMING NEXT ━━━")
		for _, w := range wave {
			b.H(tgui.JoinH(" • ", tgui.B(w.Name), tgui.Esc(mapLabel(w.Map))))
		}
		b.Line("   🕐 " + startsIn(wave[0], now))
	}
}

func renderUpcoming(b *tgui.Builder, snap tracker.Snapshot, now time.Time) {
	b.Title("⏰", "Arc Raiders - Upcoming Events")
	b.Section("━━━ STARTING NEXT ━━━")
	up := snap.Set.Upcoming
	if len(up) == 0 {
		b.Line("⚫ No upcoming events")
		return
	}
	if len(up) > nextLimit {
		up = up[:nextLimit]
	}
	for _, w := range up {
		b.H(tgui.JoinH(" • ", tgui.B(w.Name), tgui.Esc(mapLabel(w.Map))))
		b.Line("   🕐 " + startsIn(w, now))
	}
}

// renderFiltered renders a per-event or per-map view. label picks the
// column that is not already in the title.
func renderFiltered(b *tgui.Builder, emoji, title string, set tracker.Set, label func(tracker.Window) string, now time.Time, empty string) {
	b.Title(emoji, title+" - Event Schedule")
	if set.Empty() {
		b.Blank()
		b.Line(empty)
		return
	}
	if len(set.Active) > 0 {
		b.Section("━━━ ACTIVE NOW ━━━")
		for _, w := range set.Active {
			b.H(tgui.B("🔴 " + label(w)))
			b.Line("   ⏱️ " + endsIn(w, now))
		}
	}
	if len(set.Upcoming) > 0 {
		b.Section("━━━ UPCOMING ━━━")
		up := set.Upcoming
		if len(up) > filteredLimit {
			up = up[:filteredLimit]
		}
		for _, w := range up {
			b.H(tgui.JoinH(" • ", tgui.B("⏳ "+label(w)), tgui.Esc(startsIn(w, now))))
		}
	}
}

// renderDay groups windows by start hour so 24 hours of five maps fit in a
// single Telegram message.
func renderDay(b *tgui.Builder, ws []tracker.Window, now time.Time) {
	b.Title("📅", "Events - Next 24 Hours")
	if len(ws) == 0 {
		b.Blank()
		b.Line("No events scheduled for the next 24 hours.")
		return
	}

	var (
		cur   time.Time
		parts []tgui.H
	)
	flush := func() {
		if len(parts) > 0 {
			b.H(tgui.JoinH(" · ", parts...))
			parts = parts[:0]
		}
	}
	for _, w := range ws {
		if !w.StartsAt.Equal(cur) {
			flush()
			cur = w.StartsAt
			head := "🕐 " + clock(w.StartsAt) + " - in " + humanDur(w.StartsAt.Sub(now))
			if w.IsActive {
				head = "🔴 Now - " + endsIn(w, now)
			}
			b.Section(head)
		}
		parts = append(parts, tgui.JoinH(": ", tgui.Esc(w.Map), tgui.B(w.Name)))
	}
	flush()
}

// renderWave announces the next wave of events.
func renderWave(b *tgui.Builder, wave []tracker.Window, now time.Time) {
	b.Title("📣", "Next wave "+startsIn(wave[0], now))
	for _, w := range wave {
		b.H(tgui.JoinH(" • ", tgui.B(w.Name), tgui.Esc(mapLabel(w.Map))))
	}
}
