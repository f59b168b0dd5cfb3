package tracker

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAdapterFailure wraps any transport or format error from a Source.
	ErrAdapterFailure = errors.New("live source failed")
	// ErrEmptyLiveResult means the source answered but had nothing current.
	ErrEmptyLiveResult = errors.New("live source returned no events")
)

// RawEvent is one record as delivered by a live source. Instants are epoch
// milliseconds.
type RawEvent struct {
	Name    string
	Map     string
	Icon    string
	StartMs int64
	EndMs   int64
}

// Source fetches the live schedule. Any returned error is treated as an
// adapter failure; its detail is only logged.
type Source interface {
	FetchLiveEvents(ctx context.Context) ([]RawEvent, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]RawEvent, error)

func (f SourceFunc) FetchLiveEvents(ctx context.Context) ([]RawEvent, error) { return f(ctx) }

// windowsFromRaw converts records to windows, skipping the ones whose end is
// not after their start. It returns the number of skipped records.
func windowsFromRaw(raw []RawEvent) ([]Window, int) {
	out := make([]Window, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		if r.EndMs <= r.StartMs || r.Name == "" || r.Map == "" {
			skipped++
			continue
		}
		out = append(out, Window{
			Name:     r.Name,
			Map:      r.Map,
			StartsAt: time.UnixMilli(r.StartMs).UTC(),
			EndsAt:   time.UnixMilli(r.EndMs).UTC(),
		})
	}
	return out, skipped
}
