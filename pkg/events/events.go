// Package events keeps a bounded in-memory journal of doorbell activity
// and fans new entries out to live subscribers.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-doorbell/internal/clock"
)

// Kind represents the type of event.
type Kind string

// Call events.
const (
	CallIncoming Kind = "call_incoming"
	CallActive   Kind = "call_active"
	CallRejected Kind = "call_rejected"
	CallEnded    Kind = "call_ended"
	Utterance    Kind = "utterance"
	IntentMatch  Kind = "intent"
	Spoken       Kind = "spoken"
)

// Actuation events.
const (
	RelayPulse  Kind = "relay_pulse"
	RelayFailed Kind = "relay_failed"
	Notified    Kind = "notified"
)

// Sensor events.
const (
	ProximityActive   Kind = "proximity_active"
	ProximityInactive Kind = "proximity_inactive"
	FaceAccepted      Kind = "face_accepted"
	ClipSaved         Kind = "clip_saved"
)

// DefaultCapacity is the journal size used by the daemon.
const DefaultCapacity = 500

// Event is one journal entry.
type Event struct {
	ID     string    `json:"id"`
	Time   time.Time `json:"time"`
	Kind   Kind      `json:"kind"`
	CallID string    `json:"call_id,omitempty"`
	Text   string    `json:"text,omitempty"`
}

// Journal is a bounded, concurrency-safe event log. A nil *Journal
// discards everything, so components can record unconditionally.
type Journal struct {
	clock    clock.Clock
	capacity int

	mu      sync.Mutex
	entries []Event
	start   int
	subs    map[int]func(Event)
	nextSub int
}

// NewJournal creates a journal holding at most capacity events.
func NewJournal(capacity int, clk clock.Clock) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Journal{
		clock:    clk,
		capacity: capacity,
		entries:  make([]Event, 0, capacity),
		subs:     make(map[int]func(Event)),
	}
}

// Record appends an event and delivers it to subscribers.
func (j *Journal) Record(kind Kind, callID, text string) Event {
	if j == nil {
		return Event{}
	}
	ev := Event{
		ID:     uuid.NewString(),
		Time:   j.clock.Now(),
		Kind:   kind,
		CallID: callID,
		Text:   text,
	}

	j.mu.Lock()
	if len(j.entries) < j.capacity {
		j.entries = append(j.entries, ev)
	} else {
		j.entries[j.start] = ev
		j.start = (j.start + 1) % j.capacity
	}
	subs := make([]func(Event), 0, len(j.subs))
	for _, fn := range j.subs {
		subs = append(subs, fn)
	}
	j.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
	return ev
}

// Recent returns up to n of the newest events, oldest first. n <= 0
// returns everything.
func (j *Journal) Recent(n int) []Event {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	total := len(j.entries)
	if n <= 0 || n > total {
		n = total
	}
	out := make([]Event, 0, n)
	for i := total - n; i < total; i++ {
		out = append(out, j.entries[(j.start+i)%total])
	}
	return out
}

// Len returns the number of stored events.
func (j *Journal) Len() int {
	if j == nil {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Subscribe registers fn for every future event. fn runs on the
// recording goroutine and must not block.
func (j *Journal) Subscribe(fn func(Event)) (unsubscribe func()) {
	if j == nil {
		return func() {}
	}
	j.mu.Lock()
	id := j.nextSub
	j.nextSub++
	j.subs[id] = fn
	j.mu.Unlock()

	return func() {
		j.mu.Lock()
		delete(j.subs, id)
		j.mu.Unlock()
	}
}
