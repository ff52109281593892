package stt

import (
	"context"
	"sync"
)

// Mock implements Recognizer for testing. Emit delivers text as if it
// had been recognized.
type Mock struct {
	// StartFunc is called when Start is invoked. If nil, Start succeeds.
	StartFunc func(ctx context.Context) error

	mu      sync.Mutex
	onText  func(string)
	running bool
	starts  int
	stops   int
}

// NewMock returns a Mock recognizer.
func NewMock() *Mock {
	return &Mock{}
}

// Start implements Recognizer.
func (m *Mock) Start(ctx context.Context, onText func(string)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.StartFunc != nil {
		if err := m.StartFunc(ctx); err != nil {
			return err
		}
	}
	if m.running {
		return ErrAlreadyRunning
	}
	m.onText = onText
	m.running = true
	return nil
}

// Stop implements Recognizer.
func (m *Mock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.stops++
	}
	m.running = false
	m.onText = nil
	return nil
}

// Emit delivers text to the running callback. It reports false when
// the recognizer is not running.
func (m *Mock) Emit(text string) bool {
	m.mu.Lock()
	fn := m.onText
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(text)
	return true
}

// Running reports whether Start has been called without a Stop.
func (m *Mock) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Counts returns how many times Start and Stop took effect.
func (m *Mock) Counts() (starts, stops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops
}

var _ Recognizer = (*Mock)(nil)
