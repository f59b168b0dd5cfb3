package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestSplitTelegramText_Short(t *testing.T) {
	require.Equal(t, []string{"hello"}, splitTelegramText("hello", 10, ""))
	require.Equal(t, []string{""}, splitTelegramText("", 10, ""))
}

func TestSplitTelegramText_PrefersNewlines(t *testing.T) {
	s := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8) + "\n" + strings.Repeat("c", 8)
	got := splitTelegramText(s, 12, "")
	require.Equal(t, []string{strings.Repeat("a", 8), strings.Repeat("b", 8), strings.Repeat("c", 8)}, got)
}

func TestSplitTelegramText_CountsRunes(t *testing.T) {
	s := strings.Repeat("🚀", 25)
	got := splitTelegramText(s, 10, "")
	require.Len(t, got, 3)
	for _, part := range got {
		require.True(t, utf8.ValidString(part))
		require.LessOrEqual(t, utf8.RuneCountInString(part), 10)
	}
	require.Equal(t, s, strings.Join(got, ""))
}

func TestSplitTelegramText_HTMLKeepsTagsWhole(t *testing.T) {
	s := strings.Repeat("x", 10) + "<b>bold</b>"
	got := splitTelegramText(s, 12, "HTML")
	require.Equal(t, strings.Repeat("x", 10), got[0])
	require.True(t, strings.HasPrefix(got[1], "<b>"))
	require.Equal(t, s, strings.Join(got, ""))
}
