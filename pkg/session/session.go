// Package session binds telephony calls to dialogue controllers. The
// Manager keeps at most one live call, drives each session through
// Connecting, Active and Disconnected, and tears everything down exactly
// once.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-doorbell/pkg/dialogue"
	"github.com/teslashibe/go-doorbell/pkg/events"
	"github.com/teslashibe/go-doorbell/pkg/telephony"
)

// State is the lifecycle state of a session.
type State int32

const (
	Connecting State = iota
	Active
	Disconnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

const utteranceBuffer = 16

// Session is one call and the controller that serves it.
type Session struct {
	id      string
	call    telephony.Call
	mgr     *Manager
	logger  *slog.Logger
	created time.Time

	// ctx ends with the call; speech still playing is cut off.
	ctx    context.Context
	cancel context.CancelFunc

	// stopConnect cancels the connect limit once media is up.
	stopConnect func()

	// mu serializes the controller with scheduled actions.
	mu   sync.Mutex
	ctrl *dialogue.Controller

	state      atomic.Int32
	hangingUp  atomic.Bool
	utterances chan string
	done       chan struct{}
}

func newSession(m *Manager, call telephony.Call) *Session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(m.ctx)
	return &Session{
		id:         id,
		call:       call,
		mgr:        m,
		logger:     m.logger.With("session_id", id, "call_id", call.ID()),
		created:    m.clock.Now(),
		ctx:        ctx,
		cancel:     cancel,
		utterances: make(chan string, utteranceBuffer),
		done:       make(chan struct{}),
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// CallID returns the telephony call id.
func (s *Session) CallID() string { return s.call.ID() }

// Context returns the call-scoped context, cancelled on teardown.
func (s *Session) Context() context.Context { return s.ctx }

// State returns the lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Active reports whether the session is Active. Safe to call while
// holding the session lock.
func (s *Session) Active() bool { return s.State() == Active }

// Schedule runs fn after d under the session lock, unless the session
// has left Active by then. Pending tasks are cancelled on teardown.
func (s *Session) Schedule(d time.Duration, fn func()) {
	s.mgr.sched.After(s.id, d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.Active() {
			s.logger.Debug("stale action suppressed")
			return
		}
		fn()
	})
}

// Hangup asks the telephony layer to end the call. Teardown follows the
// disconnect notification; if the request itself fails the session is
// torn down locally.
func (s *Session) Hangup() {
	if s.State() == Disconnected || !s.hangingUp.CompareAndSwap(false, true) {
		return
	}
	s.logger.Info("hanging up")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.mgr.cfg.CommandTimeout)
		defer cancel()
		if err := s.call.Hangup(ctx, telephony.StatusNormal); err != nil {
			s.logger.Warn("hangup failed, tearing down locally", "error", err)
			s.mgr.teardown(s, "hangup failed")
		}
	}()
}

// enqueue hands a recognized utterance to the session's consumer.
func (s *Session) enqueue(text string) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.utterances <- text:
	case <-s.done:
	default:
		s.logger.Warn("utterance queue full, dropping", "text", text)
	}
}

// consume feeds utterances to the controller one at a time, in arrival
// order.
func (s *Session) consume() {
	for {
		select {
		case <-s.done:
			return
		case text := <-s.utterances:
			s.mu.Lock()
			if s.Active() && s.ctrl != nil {
				s.ctrl.Receive(text)
			}
			s.mu.Unlock()
		}
	}
}

// Snapshot describes a session for status reporting.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	CallID    string    `json:"call_id"`
	Peer      string    `json:"peer"`
	State     string    `json:"state"`
	Dialogue  string    `json:"dialogue"`
	LampOn    bool      `json:"lamp_on"`
	Since     time.Time `json:"since"`
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		SessionID: s.id,
		CallID:    s.call.ID(),
		Peer:      s.call.Peer(),
		State:     s.State().String(),
		Dialogue:  dialogue.NotStarted.String(),
		Since:     s.created,
	}
	if s.ctrl != nil {
		snap.Dialogue = s.ctrl.State().String()
		snap.LampOn = s.ctrl.LampOn()
	}
	return snap
}

var _ dialogue.Line = (*Session)(nil)

// record is a shorthand for journal entries about this call.
func (s *Session) record(kind events.Kind, text string) {
	s.mgr.cfg.Events.Record(kind, s.call.ID(), text)
}
