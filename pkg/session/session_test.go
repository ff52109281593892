package session

import (
	"context"
	"errors"
	"sync"
	"testing"
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

type recordingSpeaker struct {
	mu    sync.Mutex
	spoke []string
	ctxs  []context.Context
}

func (s *recordingSpeaker) Speak(ctx context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoke = append(s.spoke, text)
	s.ctxs = append(s.ctxs, ctx)
}

func (s *recordingSpeaker) lastContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctxs[len(s.ctxs)-1]
}

func (s *recordingSpeaker) said(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.spoke {
		if t == text {
			n++
		}
	}
	return n
}

type fakeRouter struct {
	mu       sync.Mutex
	err      error
	attached []string
	detached []string
}

func (r *fakeRouter) Attach(ctx context.Context, stream string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached = append(r.attached, stream)
	return r.err
}

func (r *fakeRouter) Detach(stream string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = append(r.detached, stream)
}

func (r *fakeRouter) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attached), len(r.detached)
}

type harness struct {
	clk        *clock.FakeClock
	sched      *schedule.Scheduler
	speaker    *recordingSpeaker
	relay      *relay.Mock
	recognizer *stt.Mock
	router     *fakeRouter
	journal    *events.Journal
	mgr        *Manager
	phrases    dialogue.Phrases
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.Fake(time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC))
	h := &harness{
		clk:        clk,
		sched:      schedule.New(clk),
		speaker:    &recordingSpeaker{},
		relay:      relay.NewMock(),
		recognizer: stt.NewMock(),
		router:     &fakeRouter{},
		journal:    events.NewJournal(100, clk),
		phrases:    dialogue.PolishPhrases(),
	}
	h.mgr = NewManager(Config{
		Speaker:    h.speaker,
		Relay:      h.relay,
		Notifier:   notify.NewMock(),
		Recognizer: h.recognizer,
		Router:     h.router,
		Clock:      clk,
		Scheduler:  h.sched,
		Events:     h.journal,
	})
	t.Cleanup(func() {
		h.mgr.Shutdown(context.Background())
		h.sched.Close()
	})
	return h
}

// connect brings a call to Active.
func (h *harness) connect(t *testing.T, call *telephony.MockCall) *Session {
	t.Helper()
	h.mgr.Handle(call.Event(telephony.EventIncoming, ""))
	h.mgr.Handle(call.Event(telephony.EventStateChanged, "CONFIRMED"))
	h.mgr.Handle(call.Event(telephony.EventMediaActive, ""))
	s, ok := h.mgr.Current()
	if !ok {
		t.Fatal("expected a live session")
	}
	return s
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCallLifecycle(t *testing.T) {
	h := newHarness(t)
	call := telephony.NewMockCall("c1", "sip:gate@local")

	h.mgr.Handle(call.Event(telephony.EventIncoming, ""))
	s, ok := h.mgr.Current()
	if !ok || s.State() != Connecting {
		t.Fatalf("expected Connecting session, got %v", s)
	}
	if call.Answered() != 1 {
		t.Errorf("expected call answered, got %d", call.Answered())
	}

	h.mgr.Handle(call.Event(telephony.EventMediaActive, ""))
	h.mgr.Handle(call.Event(telephony.EventMediaActive, ""))
	if s.State() != Active {
		t.Fatalf("expected Active, got %v", s.State())
	}
	if h.speaker.said(h.phrases.Greeting) != 1 {
		t.Errorf("expected one greeting, got %d", h.speaker.said(h.phrases.Greeting))
	}
	if !h.recognizer.Running() {
		t.Error("expected recognizer running")
	}
	if attached, _ := h.router.counts(); attached != 1 {
		t.Errorf("expected one routing attach, got %d", attached)
	}

	h.recognizer.Emit("koniec")
	eventually(t, "goodbye", func() bool { return h.speaker.said("Do widzenia.") == 1 })
	h.clk.WaitForTimers(2) // duration limit and goodbye hangup

	h.clk.Advance(3 * time.Second)
	eventually(t, "hangup", func() bool { return len(call.Hangups()) == 1 })
	if call.Hangups()[0] != telephony.StatusNormal {
		t.Errorf("expected normal hangup, got %d", call.Hangups()[0])
	}

	h.mgr.Handle(call.Event(telephony.EventDisconnected, "BYE"))
	h.mgr.Handle(call.Event(telephony.EventDisconnected, "BYE"))

	if s.State() != Disconnected {
		t.Errorf("expected Disconnected, got %v", s.State())
	}
	if _, ok := h.mgr.Current(); ok {
		t.Error("expected registry to be empty")
	}
	if h.recognizer.Running() {
		t.Error("expected recognizer stopped")
	}
	if _, stops := h.recognizer.Counts(); stops != 1 {
		t.Errorf("expected a single recognizer stop, got %d", stops)
	}
	if _, detached := h.router.counts(); detached != 1 {
		t.Errorf("expected one routing detach, got %d", detached)
	}
	if h.sched.Pending(s.ID()) != 0 {
		t.Errorf("expected no pending actions, got %d", h.sched.Pending(s.ID()))
	}

	var ended int
	for _, ev := range h.journal.Recent(0) {
		if ev.Kind == events.CallEnded {
			ended++
		}
	}
	if ended != 1 {
		t.Errorf("expected one call_ended event, got %d", ended)
	}
}

func TestSecondCallRejected(t *testing.T) {
	h := newHarness(t)
	first := telephony.NewMockCall("c1", "sip:a@local")
	second := telephony.NewMockCall("c2", "sip:b@local")

	s := h.connect(t, first)
	h.mgr.Handle(second.Event(telephony.EventIncoming, ""))

	eventually(t, "busy reject", func() bool { return len(second.Hangups()) == 1 })
	if second.Hangups()[0] != telephony.StatusBusyHere {
		t.Errorf("expected 486, got %d", second.Hangups()[0])
	}
	if second.Answered() != 0 {
		t.Error("rejected call must not be answered")
	}
	if cur, _ := h.mgr.Current(); cur != s || s.State() != Active {
		t.Error("expected first call to stay active")
	}

	h.mgr.Handle(second.Event(telephony.EventDisconnected, ""))
	if s.State() != Active {
		t.Error("disconnect of rejected call affected the live one")
	}
}

func TestMaxDurationHangup(t *testing.T) {
	h := newHarness(t)
	call := telephony.NewMockCall("c1", "")
	h.connect(t, call)

	h.clk.Advance(119 * time.Second)
	if len(call.Hangups()) != 0 {
		t.Fatal("hung up before the limit")
	}
	h.clk.Advance(time.Second)
	eventually(t, "max duration hangup", func() bool { return len(call.Hangups()) == 1 })
	if s, ok := h.mgr.Current(); !ok || s.State() != Active {
		t.Error("expected an active call to wait for the disconnect, not the connect limit")
	}
}

func TestStaleDoorActionAfterDisconnect(t *testing.T) {
	h := newHarness(t)
	call := telephony.NewMockCall("c1", "")
	h.connect(t, call)

	h.recognizer.Emit("jestem z wizytą")
	eventually(t, "visit reply", func() bool { return h.speaker.said(h.phrases.VisitReply) == 1 })

	h.mgr.Handle(call.Event(telephony.EventDisconnected, "BYE"))
	h.clk.Advance(30 * time.Second)

	if len(h.relay.Pulses()) != 0 {
		t.Errorf("expected no relay action after teardown, got %v", h.relay.Pulses())
	}
	if len(call.Hangups()) != 0 {
		t.Errorf("expected no hangup after teardown, got %v", call.Hangups())
	}
}

func TestRoutingFailureIsDegradedNotFatal(t *testing.T) {
	h := newHarness(t)
	h.router.err = errors.New("no stream")
	call := telephony.NewMockCall("c1", "")

	s := h.connect(t, call)
	if s.State() != Active {
		t.Errorf("expected call to continue, got %v", s.State())
	}
	if h.speaker.said(h.phrases.Greeting) != 1 {
		t.Error("expected greeting despite routing failure")
	}
}

func TestAnswerFailureReleasesSlot(t *testing.T) {
	h := newHarness(t)
	call := telephony.NewMockCall("c1", "")
	call.AnswerFunc = func(ctx context.Context) error { return errors.New("gone") }

	h.mgr.Handle(call.Event(telephony.EventIncoming, ""))
	if _, ok := h.mgr.Current(); ok {
		t.Error("expected slot released after answer failure")
	}

	next := telephony.NewMockCall("c2", "")
	h.mgr.Handle(next.Event(telephony.EventIncoming, ""))
	if next.Answered() != 1 {
		t.Error("expected next call to be answered")
	}
}

func TestDisconnectWhileConnecting(t *testing.T) {
	h := newHarness(t)
	call := telephony.NewMockCall("c1", "")

	h.mgr.Handle(call.Event(telephony.EventIncoming, ""))
	h.mgr.Handle(call.Event(telephony.EventDisconnected, "CANCEL"))
	h.mgr.Handle(call.Event(telephony.EventMediaActive, ""))

	if starts, _ := h.recognizer.Counts(); starts != 0 {
		t.Errorf("expected recognizer never started, got %d", starts)
	}
	if h.speaker.said(h.phrases.Greeting) != 0 {
		t.Error("expected no greeting for a cancelled call")
	}
}

func TestHangupFailureTearsDown(t *testing.T) {
	h := newHarness(t)
	call := telephony.NewMockCall("c1", "")
	call.HangupFunc = func(ctx context.Context, code int) error { return errors.New("not connected") }

	s := h.connect(t, call)
	s.Hangup()
	eventually(t, "local teardown", func() bool { return s.State() == Disconnected })
}

func TestSnapshotAndLamp(t *testing.T) {
	h := newHarness(t)
	call := telephony.NewMockCall("c1", "sip:gate@local")
	s := h.connect(t, call)

	h.recognizer.Emit("włącz światło")
	eventually(t, "lamp on", func() bool { return h.mgr.LampOn() })

	snap := s.Snapshot()
	if snap.CallID != "c1" || snap.State != "active" || snap.Dialogue != "awaiting_command" || !snap.LampOn {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	h.mgr.Handle(call.Event(telephony.EventDisconnected, "BYE"))
	if !h.mgr.LampOn() {
		t.Error("expected lamp state kept after the call")
	}
}

func TestLampStateSurvivesNextCall(t *testing.T) {
	h := newHarness(t)
	first := telephony.NewMockCall("c1", "")
	h.connect(t, first)

	h.recognizer.Emit("włącz światło")
	eventually(t, "lamp on", func() bool { return h.mgr.LampOn() })
	h.mgr.Handle(first.Event(telephony.EventDisconnected, "BYE"))

	second := telephony.NewMockCall("c2", "")
	s := h.connect(t, second)
	if !h.mgr.LampOn() || !s.Snapshot().LampOn {
		t.Fatal("expected the next call to start with the lamp on")
	}

	h.recognizer.Emit("włącz światło")
	eventually(t, "already-on reply", func() bool { return h.speaker.said(h.phrases.LightAlreadyOn) == 1 })
	if n := h.relay.Count(relay.Light); n != 1 {
		t.Errorf("expected the light relay pulsed once across both calls, got %d", n)
	}
	if h.speaker.said(h.phrases.LightOn) != 1 {
		t.Errorf("expected a single light-on reply, got %d", h.speaker.said(h.phrases.LightOn))
	}
}

func TestStalledConnectReleasesLine(t *testing.T) {
	h := newHarness(t)
	stalled := telephony.NewMockCall("c1", "")
	h.mgr.Handle(stalled.Event(telephony.EventIncoming, ""))

	h.clk.Advance(119 * time.Second)
	if _, ok := h.mgr.Current(); !ok {
		t.Fatal("line released before the limit")
	}
	h.clk.Advance(time.Second)
	if _, ok := h.mgr.Current(); ok {
		t.Fatal("expected the stalled call to release the line")
	}
	eventually(t, "stalled hangup", func() bool { return len(stalled.Hangups()) == 1 })

	next := telephony.NewMockCall("c2", "")
	h.mgr.Handle(next.Event(telephony.EventIncoming, ""))
	if next.Answered() != 1 {
		t.Error("expected the next call to be answered")
	}
	if len(next.Hangups()) != 0 {
		t.Errorf("next call rejected: %v", next.Hangups())
	}
}

func TestSpeechBoundToCall(t *testing.T) {
	h := newHarness(t)
	call := telephony.NewMockCall("c1", "")
	s := h.connect(t, call)

	ctx := h.speaker.lastContext()
	if ctx.Err() != nil {
		t.Fatal("speech context cancelled during the call")
	}
	h.mgr.Handle(call.Event(telephony.EventDisconnected, "BYE"))
	if ctx.Err() == nil || s.Context().Err() == nil {
		t.Error("expected speech context cancelled on teardown")
	}
}
