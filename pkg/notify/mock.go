package notify

import (
	"context"
	"sync"
)

// Mock implements Notifier for testing.
type Mock struct {
	// NotifyFunc is called when Notify is invoked. If nil, Notify succeeds.
	NotifyFunc func(ctx context.Context, msg Message) error

	mu       sync.Mutex
	messages []Message
	notified chan struct{}
}

// NewMock returns a Mock that always succeeds.
func NewMock() *Mock {
	return &Mock{notified: make(chan struct{}, 64)}
}

// Notify records the message.
func (m *Mock) Notify(ctx context.Context, msg Message) error {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	fn := m.NotifyFunc
	m.mu.Unlock()

	select {
	case m.notified <- struct{}{}:
	default:
	}

	if fn != nil {
		return fn(ctx, msg)
	}
	return nil
}

// Notified signals once per Notify call. Useful when notifications are
// sent from a background goroutine.
func (m *Mock) Notified() <-chan struct{} {
	return m.notified
}

// Messages returns every recorded message.
func (m *Mock) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// Reset clears recorded messages.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

var _ Notifier = (*Mock)(nil)
