package telephony

import (
	"context"
	"sync"
	"time"
)

// MockCall implements Call for testing.
type MockCall struct {
	// AnswerFunc is called when Answer is invoked. If nil, Answer succeeds.
	AnswerFunc func(ctx context.Context) error

	// HangupFunc is called when Hangup is invoked. If nil, Hangup succeeds.
	HangupFunc func(ctx context.Context, code int) error

	id      string
	peer    string
	channel string

	mu       sync.Mutex
	answered int
	hangups  []int
}

// NewMockCall creates a mock call on the "baresip" audio channel.
func NewMockCall(id, peer string) *MockCall {
	return &MockCall{id: id, peer: peer, channel: "baresip"}
}

// ID implements Call.
func (m *MockCall) ID() string { return m.id }

// Peer implements Call.
func (m *MockCall) Peer() string { return m.peer }

// AudioChannel implements Call.
func (m *MockCall) AudioChannel() string { return m.channel }

// Answer implements Call.
func (m *MockCall) Answer(ctx context.Context) error {
	m.mu.Lock()
	m.answered++
	m.mu.Unlock()
	if m.AnswerFunc != nil {
		return m.AnswerFunc(ctx)
	}
	return nil
}

// Hangup implements Call.
func (m *MockCall) Hangup(ctx context.Context, code int) error {
	m.mu.Lock()
	m.hangups = append(m.hangups, code)
	m.mu.Unlock()
	if m.HangupFunc != nil {
		return m.HangupFunc(ctx, code)
	}
	return nil
}

// Answered returns how many times Answer was called.
func (m *MockCall) Answered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answered
}

// Hangups returns the status code of every Hangup call.
func (m *MockCall) Hangups() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.hangups...)
}

// Event builds an event for this call stamped with the current time.
func (m *MockCall) Event(t EventType, state string) Event {
	return Event{Type: t, Call: m, State: state, Time: time.Now()}
}

var _ Call = (*MockCall)(nil)
