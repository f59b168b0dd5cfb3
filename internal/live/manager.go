// Package live runs periodic refresh jobs ("live views") keyed by the chat
// message they update. Each job ticks on a fixed interval until it is
// cancelled, reaches its maximum duration or its tick fails once.
package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"arcbot/internal/runtime/supervisor"
	"arcbot/pkg/logx"
)

const (
	DefaultInterval    = 30 * time.Second
	DefaultMaxDuration = 10 * time.Minute
)

// End reasons.
const (
	ReasonCancelled = "cancelled"
	ReasonReplaced  = "replaced"
	ReasonExpired   = "expired"
	ReasonError     = "error"
	ReasonShutdown  = "shutdown"
)

var ErrStopped = errors.New("live: manager stopped")

// TickFunc refreshes the view once. A non-nil error ends the subscription.
type TickFunc func(ctx context.Context) error

// ErrorFunc is told about the tick error that ended a subscription.
type ErrorFunc func(h Handle, err error)

// Options zero fields take the manager defaults.
type Options struct {
	Interval    time.Duration
	MaxDuration time.Duration
}

// Handle identifies one run of a subscription. Restarting a key yields a new
// ID.
type Handle struct {
	Key       string        `json:"key"`
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	Interval  time.Duration `json:"interval"`
}

type subscription struct {
	Handle
	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer
}

type Manager struct {
	mu       sync.Mutex
	subs     map[string]*subscription
	defaults Options
	stopped  bool

	sup *supervisor.Supervisor
	log logx.Logger

	// onTick, when set, is called under mu each time a tick is let through.
	onTick func(Handle)
}

func New(parent context.Context, log logx.Logger) *Manager {
	return &Manager{
		subs:     make(map[string]*subscription),
		defaults: Options{Interval: DefaultInterval, MaxDuration: DefaultMaxDuration},
		sup:      supervisor.NewSupervisor(parent, supervisor.WithLogger(log)),
		log:      log,
	}
}

// SetDefaults replaces the defaults used for zero Options fields. Running
// subscriptions keep their settings.
func (m *Manager) SetDefaults(o Options) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.Interval > 0 {
		m.defaults.Interval = o.Interval
	}
	if o.MaxDuration > 0 {
		m.defaults.MaxDuration = o.MaxDuration
	}
}

func (m *Manager) Defaults() Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaults
}

// Start begins ticking for key, replacing any subscription already running
// under it. The first tick runs one interval after Start.
func (m *Manager) Start(key string, o Options, tick TickFunc, onErr ErrorFunc) (Handle, error) {
	if tick == nil {
		return Handle{}, fmt.Errorf("live: nil tick for %q", key)
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return Handle{}, ErrStopped
	}
	if o.Interval <= 0 {
		o.Interval = m.defaults.Interval
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = m.defaults.MaxDuration
	}
	if prev := m.subs[key]; prev != nil {
		m.removeLocked(prev, ReasonReplaced)
	}

	now := time.Now()
	ctx, cancel := context.WithCancel(m.sup.Context())
	s := &subscription{
		Handle: Handle{
			Key:       key,
			ID:        uuid.NewString(),
			StartedAt: now,
			ExpiresAt: now.Add(o.MaxDuration),
			Interval:  o.Interval,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	s.timer = time.AfterFunc(o.MaxDuration, func() { m.remove(s, ReasonExpired) })
	m.subs[key] = s
	activeSubs.Set(float64(len(m.subs)))
	m.mu.Unlock()

	m.log.Debug("live view started",
		logx.String("key", key),
		logx.String("id", s.ID),
		logx.Duration("interval", o.Interval),
		logx.Duration("max", o.MaxDuration),
	)
	m.sup.Go0("live:"+key, func(context.Context) { m.run(s, tick, onErr) })
	return s.Handle, nil
}

func (m *Manager) run(s *subscription, tick TickFunc, onErr ErrorFunc) {
	t := time.NewTicker(s.Interval)
	defer t.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
		}
		if !m.admit(s) {
			return
		}

		// A tick outlives Cancel so an edit in flight can complete; only a
		// manager shutdown or the interval bound cut it short.
		tctx, cancel := context.WithTimeout(m.sup.Context(), s.Interval)
		err := runTick(tctx, tick)
		cancel()
		if err == nil {
			ticks.WithLabelValues("ok").Inc()
			continue
		}

		ticks.WithLabelValues("error").Inc()
		if m.remove(s, ReasonError) {
			m.log.Warn("live view stopped on error", logx.String("key", s.Key), logx.String("id", s.ID), logx.Err(err))
			if onErr != nil {
				onErr(s.Handle, err)
			}
		}
		return
	}
}

// admit reports whether s may start another tick. Cancel and expiry remove
// s under the same lock, so once they return no tick is admitted.
func (m *Manager) admit(s *subscription) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[s.Key] != s {
		return false
	}
	if m.onTick != nil {
		m.onTick(s.Handle)
	}
	return true
}

func runTick(ctx context.Context, tick TickFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("live: tick panicked: %v", r)
		}
	}()
	return tick(ctx)
}

// Cancel stops the subscription for key. It reports whether one was running
// and is safe to call any number of times.
func (m *Manager) Cancel(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.subs[key]
	if s == nil {
		return false
	}
	m.removeLocked(s, ReasonCancelled)
	return true
}

// Context is done once the manager is stopped.
func (m *Manager) Context() context.Context { return m.sup.Context() }

// Active returns the handle running under key.
func (m *Manager) Active(key string) (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.subs[key]; s != nil {
		return s.Handle, true
	}
	return Handle{}, false
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Manager) List() []Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Handle, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s.Handle)
	}
	return out
}

// Stop cancels every subscription, refuses new ones and waits for running
// ticks until ctx is done.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopped = true
	for _, s := range m.subs {
		m.removeLocked(s, ReasonShutdown)
	}
	m.mu.Unlock()
	return m.sup.Stop(ctx)
}

// remove drops s if it is still the subscription registered for its key.
func (m *Manager) remove(s *subscription, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[s.Key] != s {
		return false
	}
	m.removeLocked(s, reason)
	return true
}

func (m *Manager) removeLocked(s *subscription, reason string) {
	delete(m.subs, s.Key)
	s.cancel()
	s.timer.Stop()
	activeSubs.Set(float64(len(m.subs)))
	ended.WithLabelValues(reason).Inc()
	m.log.Debug("live view ended", logx.String("key", s.Key), logx.String("id", s.ID), logx.String("reason", reason))
}
