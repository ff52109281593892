package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-doorbell/internal/clock"
	"github.com/teslashibe/go-doorbell/pkg/dialogue"
	"github.com/teslashibe/go-doorbell/pkg/events"
	"github.com/teslashibe/go-doorbell/pkg/notify"
	"github.com/teslashibe/go-doorbell/pkg/relay"
	"github.com/teslashibe/go-doorbell/pkg/schedule"
	"github.com/teslashibe/go-doorbell/pkg/stt"
	"github.com/teslashibe/go-doorbell/pkg/telephony"
)

// DefaultMaxDuration caps every call.
const DefaultMaxDuration = 120 * time.Second

// AudioRouter rebinds a call's audio streams to the recognizer and
// synthesizer sinks.
type AudioRouter interface {
	Attach(ctx context.Context, stream string) error
	Detach(stream string)
}

// Config wires a Manager to its collaborators.
type Config struct {
	Speaker    dialogue.Speaker
	Relay      relay.Pulser
	Notifier   notify.Notifier
	Recognizer stt.Recognizer

	// Router may be nil when audio routing is disabled.
	Router AudioRouter

	Clock     clock.Clock
	Scheduler *schedule.Scheduler

	MaxDuration    time.Duration
	CommandTimeout time.Duration
	RouteTimeout   time.Duration

	// ConnectTimeout bounds how long an answered call may wait for
	// media before its line is released. Defaults to MaxDuration.
	ConnectTimeout time.Duration

	Phrases dialogue.Phrases
	Timing  dialogue.Timing

	Events *events.Journal
	Logger *slog.Logger
}

// Manager is the call registry. Handle is its telephony.Handler.
type Manager struct {
	cfg    Config
	clock  clock.Clock
	sched  *schedule.Scheduler
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	lampOn   bool
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = schedule.New(cfg.Clock)
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = cfg.MaxDuration
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 5 * time.Second
	}
	if cfg.RouteTimeout == 0 {
		cfg.RouteTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		clock:    cfg.Clock,
		sched:    cfg.Scheduler,
		logger:   cfg.Logger.With("component", "session"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Handle processes one telephony event.
func (m *Manager) Handle(ev telephony.Event) {
	if ev.Call == nil {
		return
	}
	switch ev.Type {
	case telephony.EventIncoming:
		m.incoming(ev.Call)
	case telephony.EventStateChanged:
		m.logger.Debug("call state", "call_id", ev.Call.ID(), "state", ev.State)
	case telephony.EventMediaActive:
		if s := m.lookup(ev.Call.ID()); s != nil {
			m.activate(s)
		}
	case telephony.EventDisconnected:
		if s := m.lookup(ev.Call.ID()); s != nil {
			m.teardown(s, ev.State)
		}
	}
}

func (m *Manager) lookup(callID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[callID]
}

// incoming registers a new session, or rejects the call while another
// one is live.
func (m *Manager) incoming(call telephony.Call) {
	m.mu.Lock()
	if _, dup := m.sessions[call.ID()]; dup {
		m.mu.Unlock()
		return
	}
	if len(m.sessions) > 0 {
		m.mu.Unlock()
		m.reject(call)
		return
	}
	s := newSession(m, call)
	s.stopConnect = m.sched.After(s.id, m.cfg.ConnectTimeout, func() { m.releaseStalled(s) })
	m.sessions[call.ID()] = s
	m.mu.Unlock()

	s.logger.Info("incoming call", "peer", call.Peer())
	s.record(events.CallIncoming, call.Peer())

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.CommandTimeout)
	defer cancel()
	if err := call.Answer(ctx); err != nil {
		s.logger.Error("answer failed", "error", err)
		m.teardown(s, "answer failed")
	}
}

func (m *Manager) reject(call telephony.Call) {
	m.logger.Info("line busy, rejecting call", "call_id", call.ID(), "peer", call.Peer())
	m.cfg.Events.Record(events.CallRejected, call.ID(), call.Peer())
	go func() {
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.CommandTimeout)
		defer cancel()
		if err := call.Hangup(ctx, telephony.StatusBusyHere); err != nil {
			m.logger.Warn("reject failed", "call_id", call.ID(), "error", err)
		}
	}()
}

// releaseStalled frees the line held by a call that was answered but
// never got media. There is no dialogue to wind down, so the session is
// torn down without waiting for the disconnect notification.
func (m *Manager) releaseStalled(s *Session) {
	if s.State() != Connecting {
		return
	}
	s.logger.Warn("call never became active, releasing line")
	go func() {
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.CommandTimeout)
		defer cancel()
		if err := s.call.Hangup(ctx, telephony.StatusNormal); err != nil {
			s.logger.Warn("hangup of stalled call failed", "error", err)
		}
	}()
	m.teardown(s, "connect timeout")
}

// activate runs Connecting -> Active once: routes audio, starts the
// recognizer, greets the caller and arms the duration limit.
func (m *Manager) activate(s *Session) {
	s.mu.Lock()
	if !s.state.CompareAndSwap(int32(Connecting), int32(Active)) {
		s.mu.Unlock()
		return
	}
	if s.stopConnect != nil {
		s.stopConnect()
	}
	m.mu.Lock()
	lampOn := m.lampOn
	m.mu.Unlock()
	s.ctrl = dialogue.New(dialogue.Config{
		CallID:   s.call.ID(),
		Line:     s,
		Speaker:  m.cfg.Speaker,
		Relay:    m.cfg.Relay,
		Notifier: m.cfg.Notifier,
		Context:  s.ctx,
		LampOn:   lampOn,
		Phrases:  m.cfg.Phrases,
		Timing:   m.cfg.Timing,
		Events:   m.cfg.Events,
		Logger:   m.cfg.Logger,
	})
	s.mu.Unlock()

	s.logger.Info("call active")
	s.record(events.CallActive, "")

	if m.cfg.Router != nil {
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.RouteTimeout)
		err := m.cfg.Router.Attach(ctx, s.call.AudioChannel())
		cancel()
		if err != nil {
			s.logger.Warn("audio routing incomplete, continuing", "error", err)
		}
	}

	if m.cfg.Recognizer != nil {
		if err := m.cfg.Recognizer.Start(m.ctx, s.enqueue); err != nil {
			s.logger.Error("recognizer failed to start", "error", err)
		} else if !s.Active() {
			m.cfg.Recognizer.Stop()
			return
		}
	}
	go s.consume()

	s.mu.Lock()
	if s.Active() {
		s.ctrl.Start()
		s.Schedule(m.cfg.MaxDuration, func() {
			s.logger.Info("maximum call duration reached")
			s.Hangup()
		})
	}
	s.mu.Unlock()
}

// teardown moves a session to Disconnected and releases everything it
// holds. Later calls are no-ops.
func (m *Manager) teardown(s *Session, reason string) {
	s.mu.Lock()
	prev := State(s.state.Swap(int32(Disconnected)))
	if prev == Disconnected {
		s.mu.Unlock()
		return
	}
	cancelled := m.sched.Cancel(s.id)
	if s.ctrl != nil {
		s.ctrl.Close()
		m.mu.Lock()
		m.lampOn = s.ctrl.LampOn()
		m.mu.Unlock()
		s.ctrl = nil
	}
	close(s.done)
	s.cancel()
	s.mu.Unlock()

	if prev == Active {
		if m.cfg.Recognizer != nil {
			if err := m.cfg.Recognizer.Stop(); err != nil {
				s.logger.Warn("recognizer stop failed", "error", err)
			}
		}
		if m.cfg.Router != nil {
			m.cfg.Router.Detach(s.call.AudioChannel())
		}
	}

	m.mu.Lock()
	if m.sessions[s.call.ID()] == s {
		delete(m.sessions, s.call.ID())
	}
	m.mu.Unlock()

	s.logger.Info("call ended", "reason", reason, "cancelled_actions", cancelled)
	s.record(events.CallEnded, reason)
}

// Current returns the live session, if any.
func (m *Manager) Current() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		return s, true
	}
	return nil, false
}

// LampOn returns the light state reported by the live call, or by the
// last call when the line is idle.
func (m *Manager) LampOn() bool {
	if s, ok := m.Current(); ok {
		if snap := s.Snapshot(); snap.Dialogue != dialogue.NotStarted.String() {
			return snap.LampOn
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lampOn
}

// Shutdown hangs up any live call and tears it down.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range live {
		if err := s.call.Hangup(ctx, telephony.StatusNormal); err != nil {
			errs = append(errs, err)
		}
		m.teardown(s, "shutdown")
	}
	m.cancel()
	return errors.Join(errs...)
}
