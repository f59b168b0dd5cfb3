package tgui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestBuilder_HTML(t *testing.T) {
	msg := New().
		Title("🟢", "Events <now>").
		Section("Active").
		Line("a & b").
		KV("Map", "Dam").
		H(JoinH(" • ", B("x"), "", Esc("<y>"))).
		Build()

	require.Equal(t, "🟢 <b>Events &lt;now&gt;</b>\n\n<b>Active</b>\na &amp; b\n• <b>Map</b>: Dam\n<b>x</b> • &lt;y&gt;", msg.Text)
	require.Equal(t, "HTML", msg.Opt.ParseMode)
	require.True(t, msg.Opt.DisablePreview)
	require.Nil(t, msg.Opt.ReplyMarkupAdapter)
}

func TestBuilder_PlainAndKeyboard(t *testing.T) {
	kb := NewInline().Row(Btn("🔄", "ev:refresh"))
	msg := New().ParseMode("").Title("", "a < b").Inline(kb).Build()

	require.Equal(t, "a < b", msg.Text)
	rm, ok := msg.Opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	require.True(t, ok)
	require.Len(t, rm.InlineKeyboard, 1)
	require.Equal(t, "ev:refresh", rm.InlineKeyboard[0][0].Data)

	msg = New().Inline(kb).Inline(nil).Line("x").Build()
	require.Nil(t, msg.Opt.ReplyMarkupAdapter)
}

func TestLink_Escapes(t *testing.T) {
	require.Equal(t, `<a href="https://x.test/?a=1&amp;b=&#34;2&#34;">R&amp;D</a>`, Link("R&D", `https://x.test/?a=1&b="2"`).String())
}

func TestData(t *testing.T) {
	d, err := Data(" ev ", "refresh", "map=Dam")
	require.NoError(t, err)
	require.Equal(t, "ev:refresh:map=Dam", d)

	d, err = Data("ev", "stop", "")
	require.NoError(t, err)
	require.Equal(t, "ev:stop", d)

	_, err = Data("ev", "refresh", strings.Repeat("x", MaxCallbackDataLen))
	require.ErrorIs(t, err, ErrCallbackDataTooLong)
}
