package tracker

import "context"

// FilterByName keeps the windows of one event type. The result never aliases s.
func FilterByName(s Set, name string) Set {
	return s.filter(func(w Window) bool { return w.Name == name })
}

// FilterByMap keeps the windows on one map. The result never aliases s.
func FilterByMap(s Set, m string) Set {
	return s.filter(func(w Window) bool { return w.Map == m })
}

// FirstUpcoming returns the earliest upcoming window.
func FirstUpcoming(s Set) (Window, bool) {
	if len(s.Upcoming) == 0 {
		return Window{}, false
	}
	return s.Upcoming[0], true
}

// NextWave returns every upcoming window that shares the earliest start.
func NextWave(s Set) []Window {
	out := []Window{}
	if len(s.Upcoming) == 0 {
		return out
	}
	first := s.Upcoming[0].StartsAt
	for _, w := range s.Upcoming {
		if w.StartsAt.Equal(first) {
			out = append(out, w)
		}
	}
	return out
}

func (s Set) filter(keep func(Window) bool) Set {
	out := Set{Active: []Window{}, Upcoming: []Window{}}
	for _, w := range s.Active {
		if keep(w) {
			out.Active = append(out.Active, w)
		}
	}
	for _, w := range s.Upcoming {
		if keep(w) {
			out.Upcoming = append(out.Upcoming, w)
		}
	}
	return out
}

// Engine answers event queries from a Cache.
type Engine struct {
	cache *Cache
}

func NewEngine(c *Cache) *Engine { return &Engine{cache: c} }

func (e *Engine) Cache() *Cache { return e.cache }

func (e *Engine) Current(ctx context.Context) Snapshot { return e.cache.Current(ctx) }

// Next returns the first upcoming window, if any.
func (e *Engine) Next(ctx context.Context) (Window, bool) {
	return FirstUpcoming(e.cache.Current(ctx).Set)
}

// ByName filters the current dataset by event type. Unknown names yield an
// empty set.
func (e *Engine) ByName(ctx context.Context, name string) Snapshot {
	snap := e.cache.Current(ctx)
	snap.Set = FilterByName(snap.Set, name)
	return snap
}

// ByMap filters the current dataset by map. Unknown maps yield an empty set.
func (e *Engine) ByMap(ctx context.Context, m string) Snapshot {
	snap := e.cache.Current(ctx)
	snap.Set = FilterByMap(snap.Set, m)
	return snap
}

func (e *Engine) NextWave(ctx context.Context) []Window {
	return NextWave(e.cache.Current(ctx).Set)
}

func (e *Engine) Next24Hours(ctx context.Context) ([]Window, Origin) {
	return e.cache.Next24Hours(ctx)
}
