package tracker

import "time"

// DeriveEvents computes the active and next-hour windows for ref from the
// rotation table. It is pure: the same ref always yields the same Set.
func DeriveEvents(t Table, ref time.Time) Set {
	hourStart := ref.UTC().Truncate(time.Hour)
	active := t.hourWindows(hourStart, true)
	upcoming := t.hourWindows(hourStart.Add(time.Hour), false)
	if active == nil {
		active = []Window{}
	}
	if upcoming == nil {
		upcoming = []Window{}
	}
	return Set{Active: active, Upcoming: upcoming}
}

// DeriveWindow enumerates hours consecutive hours starting with ref's hour,
// one window per map per hour. Only the first hour is marked active.
func DeriveWindow(t Table, ref time.Time, hours int) []Window {
	if hours <= 0 {
		return []Window{}
	}
	hourStart := ref.UTC().Truncate(time.Hour)
	out := make([]Window, 0, hours*len(t.Order))
	for offset := 0; offset < hours; offset++ {
		out = append(out, t.hourWindows(hourStart.Add(time.Duration(offset)*time.Hour), offset == 0)...)
	}
	return out
}

// hourWindows builds one window per known map for the hour at start.
// Arithmetic happens on instants, so day rollover needs no special case.
func (t Table) hourWindows(start time.Time, active bool) []Window {
	var out []Window
	for _, m := range t.Order {
		name, ok := t.EventForHour(m, start.Hour())
		if !ok {
			continue
		}
		out = append(out, Window{
			Name:     name,
			Map:      m,
			StartsAt: start,
			EndsAt:   start.Add(time.Hour),
			IsActive: active,
		})
	}
	return out
}
