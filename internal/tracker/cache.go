package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"arcbot/internal/eventbus"
	"arcbot/pkg/logx"
)

const (
	DefaultFreshness    = 60 * time.Second
	DefaultFetchTimeout = 5 * time.Second

	// LiveDayCap bounds the 24h view when it is served from live data.
	LiveDayCap = 20
	dayHours   = 24
)

// Bus event types published by the cache.
const (
	EventFallback      = "tracker.fallback"
	EventLiveRefreshed = "tracker.live_refreshed"
)

// Fallback reasons.
const (
	ReasonAdapter  = "adapter_failure"
	ReasonEmpty    = "empty_live_result"
	ReasonDisabled = "source_disabled"
)

// FallbackInfo is the payload of EventFallback.
type FallbackInfo struct {
	Reason string    `json:"reason"`
	Err    string    `json:"err,omitempty"`
	At     time.Time `json:"at"`
}

type CacheOption func(*Cache)

func WithClock(now func() time.Time) CacheOption { return func(c *Cache) { c.now = now } }
func WithTable(t Table) CacheOption              { return func(c *Cache) { c.table = t } }
func WithLogger(log logx.Logger) CacheOption     { return func(c *Cache) { c.log = log } }
func WithBus(bus eventbus.Bus) CacheOption       { return func(c *Cache) { c.bus = bus } }
func WithFreshness(d time.Duration) CacheOption {
	return func(c *Cache) { c.SetFreshness(d) }
}
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// Cache holds the most recent live dataset and decides between serving it,
// fetching again or deriving the schedule locally. The zero value is not
// usable; see NewCache.
type Cache struct {
	src          Source
	table        Table
	now          func() time.Time
	fetchTimeout time.Duration
	freshness    atomic.Int64 // time.Duration

	entry atomic.Pointer[Snapshot]
	group singleflight.Group

	log logx.Logger
	bus eventbus.Bus
}

// NewCache builds a cache over src. A nil src always serves derived data.
func NewCache(src Source, opts ...CacheOption) *Cache {
	c := &Cache{
		src:          src,
		table:        DefaultTable,
		now:          time.Now,
		fetchTimeout: DefaultFetchTimeout,
		log:          logx.Nop(),
		bus:          eventbus.Nop{},
	}
	c.freshness.Store(int64(DefaultFreshness))
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) Freshness() time.Duration { return time.Duration(c.freshness.Load()) }

// SetFreshness changes the freshness window; d <= 0 restores the default.
func (c *Cache) SetFreshness(d time.Duration) {
	if d <= 0 {
		d = DefaultFreshness
	}
	c.freshness.Store(int64(d))
}

func (c *Cache) Table() Table { return c.table }

// Peek returns the stored live snapshot without fetching. The snapshot is
// zero when no live fetch has succeeded yet.
func (c *Cache) Peek() Snapshot {
	if e := c.entry.Load(); e != nil {
		return *e
	}
	return Snapshot{}
}

// Current returns the dataset to answer queries with. It never fails:
// a fresh live entry is reused, otherwise the source is asked again, and
// failures or empty answers fall back to the derived schedule without
// touching the stored entry.
func (c *Cache) Current(ctx context.Context) Snapshot {
	now := c.now()
	if e := c.entry.Load(); e != nil && now.Sub(e.FetchedAt) <= c.Freshness() {
		recordServed("hit")
		return Snapshot{Set: e.Set.Reclassify(now), FetchedAt: e.FetchedAt, Origin: OriginLive}
	}

	if c.src == nil {
		recordServed("derived")
		recordFallback(ReasonDisabled)
		return c.derived(now)
	}

	v, err, shared := c.group.Do("live", func() (any, error) { return c.fetch(ctx) })
	if err == nil {
		snap := v.(Snapshot)
		recordServed("live")
		if shared {
			snap.Set = snap.Set.Reclassify(c.now())
		}
		return snap
	}

	c.reportFallback(err)
	recordServed("derived")
	return c.derived(c.now())
}

// Next24Hours lists the windows of the coming day. Live data is capped at
// LiveDayCap entries; the derived schedule is always recomputed in full.
func (c *Cache) Next24Hours(ctx context.Context) ([]Window, Origin) {
	snap := c.Current(ctx)
	if snap.Origin == OriginLive {
		all := snap.Set.All()
		if len(all) > LiveDayCap {
			all = all[:LiveDayCap]
		}
		return all, OriginLive
	}
	return DeriveWindow(c.table, c.now(), dayHours), OriginDerived
}

func (c *Cache) derived(now time.Time) Snapshot {
	return Snapshot{Set: DeriveEvents(c.table, now), FetchedAt: now, Origin: OriginDerived}
}

// fetch runs one live request on a context detached from the caller, so a
// canceled chat command does not abort a fetch other callers share.
func (c *Cache) fetch(ctx context.Context) (snap Snapshot, err error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrAdapterFailure, r)
		}
	}()

	start := time.Now()
	raw, err := c.src.FetchLiveEvents(fctx)
	fetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrAdapterFailure, err)
	}

	now := c.now()
	windows, skipped := windowsFromRaw(raw)
	if skipped > 0 {
		c.log.Debug("skipped invalid live records", logx.Int("skipped", skipped), logx.Int("total", len(raw)))
	}
	set := Classify(windows, now)
	if set.Empty() {
		return Snapshot{}, ErrEmptyLiveResult
	}

	snap = Snapshot{Set: set, FetchedAt: now, Origin: OriginLive}
	c.entry.Store(&snap)
	lastLiveFetch.Set(float64(now.Unix()))
	c.log.Debug("live events refreshed", logx.Int("active", len(set.Active)), logx.Int("upcoming", len(set.Upcoming)))
	c.bus.Publish(eventbus.Event{Type: EventLiveRefreshed, Time: now, Data: set.Len()})
	return snap, nil
}

func (c *Cache) reportFallback(err error) {
	reason := ReasonAdapter
	if errors.Is(err, ErrEmptyLiveResult) {
		reason = ReasonEmpty
	}
	recordFallback(reason)
	now := c.now()
	c.log.Warn("using derived schedule", logx.String("reason", reason), logx.Err(err))
	c.bus.Publish(eventbus.Event{
		Type: EventFallback,
		Time: now,
		Data: FallbackInfo{Reason: reason, Err: err.Error(), At: now},
	})
}
