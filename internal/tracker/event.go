package tracker

import (
	"math"
	"sort"
	"time"
)

// Origin tells where a dataset came from.
type Origin string

const (
	OriginNone    Origin = ""
	OriginLive    Origin = "live"
	OriginDerived Origin = "derived"
)

// Window is one occurrence of an event on a map, [StartsAt, EndsAt).
type Window struct {
	Name     string    `json:"name"`
	Map      string    `json:"map"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	IsActive bool      `json:"is_active"`
}

// DurationMinutes is always computed from the timestamps.
func (w Window) DurationMinutes() int {
	return int(math.Round(w.EndsAt.Sub(w.StartsAt).Minutes()))
}

// ActiveAt reports StartsAt <= now < EndsAt.
func (w Window) ActiveAt(now time.Time) bool {
	return !now.Before(w.StartsAt) && now.Before(w.EndsAt)
}

// Set groups the windows running now and the ones still ahead.
type Set struct {
	Active   []Window `json:"active"`
	Upcoming []Window `json:"upcoming"`
}

func (s Set) Empty() bool { return len(s.Active) == 0 && len(s.Upcoming) == 0 }

func (s Set) Len() int { return len(s.Active) + len(s.Upcoming) }

// All returns Active followed by Upcoming in a fresh slice.
func (s Set) All() []Window {
	out := make([]Window, 0, s.Len())
	out = append(out, s.Active...)
	return append(out, s.Upcoming...)
}

// Classify sorts windows into a Set at now. Windows that already ended are
// dropped; Upcoming is ordered by StartsAt (stable). The input is not
// modified.
func Classify(windows []Window, now time.Time) Set {
	set := Set{Active: []Window{}, Upcoming: []Window{}}
	for _, w := range windows {
		switch {
		case w.ActiveAt(now):
			w.IsActive = true
			set.Active = append(set.Active, w)
		case w.StartsAt.After(now):
			w.IsActive = false
			set.Upcoming = append(set.Upcoming, w)
		}
	}
	sort.SliceStable(set.Upcoming, func(i, j int) bool {
		return set.Upcoming[i].StartsAt.Before(set.Upcoming[j].StartsAt)
	})
	return set
}

// Reclassify re-evaluates s at now and returns a new Set. Upcoming windows
// that started move to Active, ended windows disappear.
func (s Set) Reclassify(now time.Time) Set {
	return Classify(s.All(), now)
}

// Snapshot is the cache's unit of replacement. A Snapshot is never mutated
// after it is published.
type Snapshot struct {
	Set       Set       `json:"set"`
	FetchedAt time.Time `json:"fetched_at"`
	Origin    Origin    `json:"origin"`
}

// Age is how old the snapshot is at now; zero for an empty snapshot.
func (s Snapshot) Age(now time.Time) time.Duration {
	if s.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(s.FetchedAt)
}
