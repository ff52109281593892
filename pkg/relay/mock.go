package relay

import (
	"context"
	"sync"
)

// Mock implements Pulser for testing.
type Mock struct {
	// PulseFunc is called when Pulse is invoked. If nil, Pulse succeeds.
	PulseFunc func(ctx context.Context, relay int) error

	mu     sync.Mutex
	pulses []int
}

// NewMock returns a Mock that always succeeds.
func NewMock() *Mock {
	return &Mock{}
}

// Pulse records the relay and calls PulseFunc.
func (m *Mock) Pulse(ctx context.Context, relay int) error {
	m.mu.Lock()
	m.pulses = append(m.pulses, relay)
	fn := m.PulseFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, relay)
	}
	return nil
}

// Pulses returns every relay pulsed so far, in order.
func (m *Mock) Pulses() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.pulses...)
}

// Count returns how many times relay was pulsed.
func (m *Mock) Count(relay int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.pulses {
		if r == relay {
			n++
		}
	}
	return n
}

// Reset clears recorded pulses.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulses = nil
}

var _ Pulser = (*Mock)(nil)
