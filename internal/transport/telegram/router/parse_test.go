package router

import (
	"reflect"
	"testing"
)

func TestTokenizeCommandLine(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"/events", []string{"/events"}},
		{`/event "night raid"`, []string{"/event", "night raid"}},
		{"/map 'blue gate' --live", []string{"/map", "blue gate", "--live"}},
		{`/event night\ raid`, []string{"/event", "night raid"}},
		{"   ", nil},
	}
	for _, c := range cases {
		if got := tokenizeCommandLine(c.in); !reflect.DeepEqual(got, c.want) {
			t.Errorf("tokenizeCommandLine(%q) = %#v, want %#v", c.in, got, c.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	pos, flags, bools := parseFlags([]string{"dam", "--live", "-n", "5", "--at=12", "-xy"})
	if !reflect.DeepEqual(pos, []string{"dam"}) {
		t.Fatalf("pos = %#v", pos)
	}
	if !bools["live"] || !bools["x"] || !bools["y"] {
		t.Fatalf("bools = %#v", bools)
	}
	if flags["n"] != "5" || flags["at"] != "12" {
		t.Fatalf("flags = %#v", flags)
	}
}

func TestNewReqID(t *testing.T) {
	a, b := newReqID(), newReqID()
	if len(a) != 12 || a == b {
		t.Fatalf("unexpected ids %q %q", a, b)
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	cases := map[string]string{
		"live stop":  "live_stop",
		"All-Events": "all_events",
		"9lives":     "cmd_9lives",
		"__x__":      "x",
		"!!!":        "",
		"a/b/c":      "a_b_c",
	}
	for in, want := range cases {
		if got := sanitizeTelegramCommand(in); got != want {
			t.Errorf("sanitizeTelegramCommand(%q) = %q, want %q", in, got, want)
		}
	}
}
