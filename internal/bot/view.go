package bot

import (
	"strings"

	"arcbot/internal/tracker"
)

type viewKind string

const (
	viewEvents viewKind = "events"
	viewNext   viewKind = "next"
	viewDay    viewKind = "day"
	viewEvent  viewKind = "event"
	viewMap    viewKind = "map"
)

// view identifies what a reply shows so it can be rendered again on a
// refresh button or a live tick. Its string form is the callback payload.
type view struct {
	kind viewKind
	arg  string
}

func (v view) String() string {
	if v.arg == "" {
		return string(v.kind)
	}
	return string(v.kind) + "=" + v.arg
}

func parseView(s string) (view, bool) {
	kind, arg, _ := strings.Cut(s, "=")
	switch v := (view{kind: viewKind(kind)}); v.kind {
	case viewEvents, viewNext, viewDay:
		return v, arg == ""
	case viewEvent:
		v.arg, _ = tracker.LookupEvent(arg)
		return v, v.arg != ""
	case viewMap:
		v.arg, _ = tracker.LookupMap(arg)
		return v, v.arg != ""
	}
	return view{}, false
}
