// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"errors"
	"sync"

	kit "arcbot/internal/transport"
)

var ErrNotFound = errors.New("transporttest: message not found")

// Sent is one message as last rendered.
type Sent struct {
	Ref     kit.MessageRef
	Chat    kit.ChatTarget
	Text    string
	Opt     kit.SendOptions
	Edits   int
	Deleted bool
}

// Adapter records every call. Errors can be injected per operation with
// the Fail* methods.
type Adapter struct {
	mu      sync.Mutex
	nextID  int
	sent    []*Sent
	byKey   map[string]*Sent
	answers []string
	menu    []kit.BotCommand

	sendErr   error
	editErr   error
	editOnce  error
	deleteErr error
}

var (
	_ kit.Adapter            = (*Adapter)(nil)
	_ kit.CommandMenuUpdater = (*Adapter)(nil)
)

func New() *Adapter { return &Adapter{byKey: map[string]*Sent{}} }

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *Adapter) Stop(ctx context.Context) error                         { return nil }

func (a *Adapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return kit.MessageRef{}, a.sendErr
	}
	a.nextID++
	ref := kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: a.nextID}
	s := &Sent{Ref: ref, Chat: to, Text: text}
	if opt != nil {
		s.Opt = *opt
	}
	a.sent = append(a.sent, s)
	a.byKey[ref.Key()] = s
	return ref, nil
}

func (a *Adapter) EditText(_ context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.editErr != nil {
		return a.editErr
	}
	if err := a.editOnce; err != nil {
		a.editOnce = nil
		return err
	}
	s, ok := a.byKey[ref.Key()]
	if !ok || s.Deleted {
		return ErrNotFound
	}
	s.Text = text
	if opt != nil {
		s.Opt = *opt
	}
	s.Edits++
	return nil
}

func (a *Adapter) DeleteText(_ context.Context, ref kit.MessageRef) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.deleteErr != nil {
		return a.deleteErr
	}
	s, ok := a.byKey[ref.Key()]
	if !ok || s.Deleted {
		return ErrNotFound
	}
	s.Deleted = true
	return nil
}

func (a *Adapter) AnswerCallback(_ context.Context, id, text string) error {
	a.mu.Lock()
	a.answers = append(a.answers, id)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	a.mu.Lock()
	a.menu = append([]kit.BotCommand(nil), cmds...)
	a.mu.Unlock()
	return nil
}

// Sent returns copies of every message sent so far, oldest first.
func (a *Adapter) Sent() []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Sent, 0, len(a.sent))
	for _, s := range a.sent {
		out = append(out, *s)
	}
	return out
}

// Last returns the most recent message.
func (a *Adapter) Last() (Sent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sent) == 0 {
		return Sent{}, false
	}
	return *a.sent[len(a.sent)-1], true
}

// Get returns the message behind ref.
func (a *Adapter) Get(ref kit.MessageRef) (Sent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.byKey[ref.Key()]
	if !ok {
		return Sent{}, false
	}
	return *s, true
}

func (a *Adapter) Answers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.answers...)
}

func (a *Adapter) Menu() []kit.BotCommand {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]kit.BotCommand(nil), a.menu...)
}

func (a *Adapter) FailSend(err error)     { a.mu.Lock(); a.sendErr = err; a.mu.Unlock() }
func (a *Adapter) FailEdit(err error)     { a.mu.Lock(); a.editErr = err; a.mu.Unlock() }
func (a *Adapter) FailNextEdit(err error) { a.mu.Lock(); a.editOnce = err; a.mu.Unlock() }
func (a *Adapter) FailDelete(err error)   { a.mu.Lock(); a.deleteErr = err; a.mu.Unlock() }
