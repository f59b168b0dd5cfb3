package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"arcbot/internal/eventbus"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingSource struct {
	calls atomic.Int32
	fn    func(ctx context.Context) ([]RawEvent, error)
}

func (s *countingSource) FetchLiveEvents(ctx context.Context) ([]RawEvent, error) {
	s.calls.Add(1)
	return s.fn(ctx)
}

func raw(name, m string, start, end time.Time) RawEvent {
	return RawEvent{Name: name, Map: m, StartMs: start.UnixMilli(), EndMs: end.UnixMilli()}
}

func liveFixture(now time.Time) []RawEvent {
	h := now.Truncate(time.Hour)
	return []RawEvent{
		raw(EventHarvester, MapDam, h, h.Add(time.Hour)),
		raw(EventNightRaid, MapStellaMontis, h.Add(2*time.Hour), h.Add(3*time.Hour)),
		raw(EventMatriarch, MapBlueGate, h.Add(time.Hour), h.Add(2*time.Hour)),
	}
}

func TestCache_FreshnessWindow(t *testing.T) {
	clk := &fakeClock{t: utc(2025, 11, 3, 10, 15, 0)}
	src := &countingSource{fn: func(context.Context) ([]RawEvent, error) { return liveFixture(clk.Now()), nil }}
	c := NewCache(src, WithClock(clk.Now))

	snap := c.Current(context.Background())
	require.Equal(t, OriginLive, snap.Origin)
	require.EqualValues(t, 1, src.calls.Load())
	require.Len(t, snap.Set.Active, 1)
	require.Len(t, snap.Set.Upcoming, 2)
	require.Equal(t, EventMatriarch, snap.Set.Upcoming[0].Name)

	clk.Advance(59 * time.Second)
	snap = c.Current(context.Background())
	require.Equal(t, OriginLive, snap.Origin)
	require.EqualValues(t, 1, src.calls.Load())

	clk.Advance(2 * time.Second)
	_ = c.Current(context.Background())
	require.EqualValues(t, 2, src.calls.Load())
}

func TestCache_HitIsReclassified(t *testing.T) {
	clk := &fakeClock{t: utc(2025, 11, 3, 10, 59, 30)}
	src := &countingSource{fn: func(context.Context) ([]RawEvent, error) { return liveFixture(clk.Now()), nil }}
	c := NewCache(src, WithClock(clk.Now))

	first := c.Current(context.Background())
	require.Len(t, first.Set.Active, 1)

	// 11:00:05 is still within freshness: the Dam window ended and the
	// Blue Gate window started.
	clk.Advance(35 * time.Second)
	snap := c.Current(context.Background())
	require.EqualValues(t, 1, src.calls.Load())
	require.Len(t, snap.Set.Active, 1)
	require.Equal(t, MapBlueGate, snap.Set.Active[0].Map)
	require.True(t, snap.Set.Active[0].IsActive)
	require.Len(t, snap.Set.Upcoming, 1)

	// The published snapshot is untouched.
	require.Len(t, c.Peek().Set.Active, 1)
	require.Equal(t, MapDam, c.Peek().Set.Active[0].Map)
}

func TestCache_AdapterFailureFallsBack(t *testing.T) {
	clk := &fakeClock{t: utc(2025, 11, 3, 5, 20, 0)}
	src := &countingSource{fn: func(context.Context) ([]RawEvent, error) { return nil, errors.New("connection refused") }}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()
	c := NewCache(src, WithClock(clk.Now), WithBus(bus))

	for i := 0; i < 3; i++ {
		snap := c.Current(context.Background())
		require.Equal(t, OriginDerived, snap.Origin)
		require.Equal(t, DeriveEvents(DefaultTable, clk.Now()), snap.Set)
		require.NotEmpty(t, snap.Set.Active)
	}
	// Failures do not extend freshness: every query retries.
	require.EqualValues(t, 3, src.calls.Load())
	require.Equal(t, OriginNone, c.Peek().Origin)

	ev := <-ch
	require.Equal(t, EventFallback, ev.Type)
	info, ok := ev.Data.(FallbackInfo)
	require.True(t, ok)
	require.Equal(t, ReasonAdapter, info.Reason)
}

func TestCache_FailureKeepsStaleLiveEntry(t *testing.T) {
	clk := &fakeClock{t: utc(2025, 11, 3, 10, 15, 0)}
	fail := atomic.Bool{}
	src := &countingSource{fn: func(context.Context) ([]RawEvent, error) {
		if fail.Load() {
			return nil, errors.New("boom")
		}
		return liveFixture(clk.Now()), nil
	}}
	c := NewCache(src, WithClock(clk.Now))

	live := c.Current(context.Background())
	require.Equal(t, OriginLive, live.Origin)

	fail.Store(true)
	clk.Advance(2 * time.Minute)
	snap := c.Current(context.Background())
	require.Equal(t, OriginDerived, snap.Origin)
	require.Equal(t, live.FetchedAt, c.Peek().FetchedAt)
	require.Equal(t, OriginLive, c.Peek().Origin)

	fail.Store(false)
	snap = c.Current(context.Background())
	require.Equal(t, OriginLive, snap.Origin)
	require.Equal(t, clk.Now(), c.Peek().FetchedAt)
}

func TestCache_EmptyAndInvalidResultsFallBack(t *testing.T) {
	clk := &fakeClock{t: utc(2025, 11, 3, 10, 15, 0)}
	h := clk.Now().Truncate(time.Hour)
	src := &countingSource{fn: func(context.Context) ([]RawEvent, error) {
		return []RawEvent{
			raw(EventHarvester, MapDam, h.Add(-3*time.Hour), h.Add(-2*time.Hour)), // ended
			raw(EventHarvester, MapDam, h.Add(time.Hour), h.Add(time.Hour)),       // end == start
			raw(EventHarvester, "", h, h.Add(time.Hour)),                          // no map
		}, nil
	}}
	c := NewCache(src, WithClock(clk.Now))

	snap := c.Current(context.Background())
	require.Equal(t, OriginDerived, snap.Origin)
	require.Equal(t, OriginNone, c.Peek().Origin)
}

func TestCache_PanickingSourceFallsBack(t *testing.T) {
	clk := &fakeClock{t: utc(2025, 11, 3, 10, 15, 0)}
	src := SourceFunc(func(context.Context) ([]RawEvent, error) { panic("decoder bug") })
	c := NewCache(src, WithClock(clk.Now))

	require.Equal(t, OriginDerived, c.Current(context.Background()).Origin)
}

func TestCache_NilSourceAlwaysDerives(t *testing.T) {
	clk := &fakeClock{t: utc(2025, 11, 3, 10, 15, 0)}
	c := NewCache(nil, WithClock(clk.Now))
	snap := c.Current(context.Background())
	require.Equal(t, OriginDerived, snap.Origin)
	require.Equal(t, clk.Now(), snap.FetchedAt)
}

func TestCache_FetchIgnoresCallerCancel(t *testing.T) {
	clk := &fakeClock{t: utc(2025, 11, 3, 10, 15, 0)}
	src := &countingSource{fn: func(ctx context.Context) ([]RawEvent, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return liveFixture(clk.Now()), nil
	}}
	c := NewCache(src, WithClock(clk.Now))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, OriginLive, c.Current(ctx).Origin)
}

func TestCache_CoalescesConcurrentFetches(t *testing.T) {
	clk := &fakeClock{t: utc(2025, 11, 3, 10, 15, 0)}
	release := make(chan struct{})
	src := &countingSource{fn: func(context.Context) ([]RawEvent, error) {
		<-release
		return liveFixture(clk.Now()), nil
	}}
	c := NewCache(src, WithClock(clk.Now))

	const n = 8
	var wg sync.WaitGroup
	results := make(chan Snapshot, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.Current(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for snap := range results {
		require.Equal(t, OriginLive, snap.Origin)
	}
	// Late goroutines may arrive after the first fetch stored its entry and
	// be served from cache; none may start a second fetch.
	require.EqualValues(t, 1, src.calls.Load())
}

func TestCache_Next24Hours(t *testing.T) {
	clk := &fakeClock{t: utc(2025, 11, 3, 10, 15, 0)}
	h := clk.Now().Truncate(time.Hour)
	src := &countingSource{fn: func(context.Context) ([]RawEvent, error) {
		var out []RawEvent
		for i := 0; i < 30; i++ {
			start := h.Add(time.Duration(i) * time.Hour)
			out = append(out, raw(EventHarvester, MapDam, start, start.Add(time.Hour)))
		}
		return out, nil
	}}
	c := NewCache(src, WithClock(clk.Now))

	ws, origin := c.Next24Hours(context.Background())
	require.Equal(t, OriginLive, origin)
	require.Len(t, ws, LiveDayCap)
	require.True(t, ws[0].IsActive)

	derived := NewCache(nil, WithClock(clk.Now))
	ws, origin = derived.Next24Hours(context.Background())
	require.Equal(t, OriginDerived, origin)
	require.Len(t, ws, 24*len(Maps))
}

func TestCache_SetFreshness(t *testing.T) {
	c := NewCache(nil)
	require.Equal(t, DefaultFreshness, c.Freshness())
	c.SetFreshness(5 * time.Second)
	require.Equal(t, 5*time.Second, c.Freshness())
	c.SetFreshness(0)
	require.Equal(t, DefaultFreshness, c.Freshness())
}
