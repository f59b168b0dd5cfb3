package announce

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	kit "arcbot/internal/transport"
	"arcbot/internal/transport/transporttest"
	"arcbot/pkg/logx"
	"arcbot/pkg/tgui"
)

func wave(ctx context.Context) (tgui.Message, bool) {
	return tgui.New().Title("📣", "Next wave").Build(), true
}

var targets = []kit.ChatTarget{{ChatID: 1}, {ChatID: -100, ThreadID: 9}}

func TestPost_SendsToEveryTarget(t *testing.T) {
	ad := transporttest.New()
	s := New(ad, wave, logx.Nop())
	require.NoError(t, s.Apply(Config{Targets: targets}))

	require.NoError(t, s.Post(context.Background()))
	sent := ad.Sent()
	require.Len(t, sent, 2)
	require.Equal(t, targets[0], sent[0].Chat)
	require.Equal(t, targets[1], sent[1].Chat)
	require.Contains(t, sent[0].Text, "Next wave")
}

func TestPost_NothingToAnnounce(t *testing.T) {
	ad := transporttest.New()
	s := New(ad, func(context.Context) (tgui.Message, bool) { return tgui.Message{}, false }, logx.Nop())
	require.NoError(t, s.Apply(Config{Targets: targets}))
	require.NoError(t, s.Post(context.Background()))
	require.Empty(t, ad.Sent())
}

func TestPost_JoinsSendErrors(t *testing.T) {
	ad := transporttest.New()
	boom := errors.New("boom")
	ad.FailSend(boom)
	s := New(ad, wave, logx.Nop())
	require.NoError(t, s.Apply(Config{Targets: targets}))

	err := s.Post(context.Background())
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "chat -100:9")
}

func TestSchedule_Runs(t *testing.T) {
	var calls atomic.Int32
	s := New(transporttest.New(), func(ctx context.Context) (tgui.Message, bool) {
		calls.Add(1)
		return wave(ctx)
	}, logx.Nop())

	require.NoError(t, s.Apply(Config{Enabled: true, Spec: "@every 1s", Targets: targets[:1]}))
	require.True(t, s.Next().IsZero(), "not started yet")

	require.NoError(t, s.Start(context.Background()))
	require.False(t, s.Next().IsZero())
	require.Eventually(t, func() bool { return calls.Load() > 0 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.True(t, s.Next().IsZero())
}

func TestApply_DisableAndBadSpec(t *testing.T) {
	s := New(transporttest.New(), wave, logx.Nop())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	require.NoError(t, s.Apply(Config{Enabled: true, Spec: "55 * * * *"}))
	next := s.Next()
	require.Equal(t, 55, next.Minute())

	require.NoError(t, s.Apply(Config{Enabled: false, Spec: "55 * * * *"}))
	require.True(t, s.Next().IsZero())

	require.Error(t, s.Apply(Config{Enabled: true, Spec: "not a spec"}))
	require.True(t, s.Next().IsZero())
}

func TestApply_Location(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	s := New(transporttest.New(), wave, logx.Nop())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	require.NoError(t, s.Apply(Config{Enabled: true, Spec: "0 9 * * *", Location: loc}))
	next := s.Next()
	require.Equal(t, 9, next.In(loc).Hour())
	require.Equal(t, 2, next.UTC().Hour())
}
