// Package announce posts the next wave of events to configured chats on a
// cron schedule.
package announce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	kit "arcbot/internal/transport"
	"arcbot/pkg/logx"
	"arcbot/pkg/tgui"
)

const postTimeout = 20 * time.Second

// Compose builds the post. ok is false when there is nothing to announce.
type Compose func(ctx context.Context) (msg tgui.Message, ok bool)

type Config struct {
	Enabled  bool
	Spec     string // standard 5-field cron spec
	Location *time.Location
	Targets  []kit.ChatTarget
}

func (c Config) equal(o Config) bool {
	if c.Enabled != o.Enabled || c.Spec != o.Spec || c.Location.String() != o.Location.String() || len(c.Targets) != len(o.Targets) {
		return false
	}
	for i := range c.Targets {
		if c.Targets[i] != o.Targets[i] {
			return false
		}
	}
	return true
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	c       *cron.Cron
	ctx     context.Context
	running bool

	ad      kit.Adapter
	compose Compose
	log     logx.Logger
}

func New(ad kit.Adapter, compose Compose, log logx.Logger) *Service {
	return &Service{ad: ad, compose: compose, log: log}
}

// Start runs the schedule of the last applied config until Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.ctx = ctx
	s.running = true
	return s.restartLocked()
}

// Apply swaps the config. A running schedule is rebuilt when it changed.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cfg.Targets = append([]kit.ChatTarget(nil), cfg.Targets...)
	if s.cfg.equal(cfg) && (s.c != nil) == cfg.Enabled {
		return nil
	}
	s.cfg = cfg
	if !s.running {
		return nil
	}
	return s.restartLocked()
}

func (s *Service) restartLocked() error {
	s.stopCronLocked()
	if !s.cfg.Enabled {
		return nil
	}
	spec := strings.TrimSpace(s.cfg.Spec)
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(spec, func() { s.post(s.ctx) }); err != nil {
		return fmt.Errorf("announce: bad spec %q: %w", spec, err)
	}
	c.Start()
	s.c = c
	s.log.Info("announcements scheduled",
		logx.String("spec", spec),
		logx.String("tz", s.cfg.Location.String()),
		logx.Int("targets", len(s.cfg.Targets)),
	)
	return nil
}

func (s *Service) stopCronLocked() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
}

// Stop halts the schedule and waits for a running post until ctx is done.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.running = false
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next scheduled run, or the zero time when idle.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	for _, e := range s.c.Entries() {
		return e.Next
	}
	return time.Time{}
}

// Post sends one announcement to every target now.
func (s *Service) Post(ctx context.Context) error {
	s.mu.Lock()
	targets := append([]kit.ChatTarget(nil), s.cfg.Targets...)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()

	msg, ok := s.compose(ctx)
	if !ok {
		s.log.Debug("nothing to announce")
		return nil
	}
	var errs []error
	for _, to := range targets {
		if _, err := msg.Send(ctx, s.ad, to); err != nil {
			errs = append(errs, fmt.Errorf("chat %s: %w", to.Key(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) post(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Post(ctx); err != nil {
		s.log.Warn("announcement failed", logx.Err(err))
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) { l.log.Debug("cron: "+msg, kvFields(kv)...) }

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
