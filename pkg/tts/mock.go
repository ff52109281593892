package tts

import (
	"context"
	"sync"
	"time"
)

// MockFormat is the PCM format the Mock produces, matching a
// medium-quality Piper voice.
var MockFormat = AudioFormat{SampleRate: 22050, Channels: 1, BitDepth: 16}

// mockBytesPerChar approximates Piper's pacing: about 60ms of audio per
// character at MockFormat.
const mockBytesPerChar = 2646

// Mock is a Provider for tests. By default it returns silence sized to
// the text; set SynthesizeFunc or HealthFunc to script failures.
type Mock struct {
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)
	HealthFunc     func(ctx context.Context) error

	// Delay holds each synthesis until it elapses or ctx ends.
	Delay time.Duration

	mu     sync.Mutex
	calls  []MockCall
	closed bool
}

// MockCall is one recorded Provider call.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

// NewMock returns a Mock that synthesizes silence.
func NewMock() *Mock {
	return &Mock{}
}

// WithError returns a Mock whose every call fails with err.
func WithError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(context.Context, string) (*AudioResult, error) { return nil, err },
		HealthFunc:     func(context.Context) error { return err },
	}
}

// Synthesize implements Provider.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.record("Synthesize", text)

	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, WrapError("mock", ctx.Err())
		case <-time.After(m.Delay):
		}
	}
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text)
	}
	if m.isClosed() {
		return nil, WrapError("mock", ErrProviderUnavailable)
	}

	silence := make([]byte, len(text)*mockBytesPerChar)
	return &AudioResult{
		Audio:     silence,
		Format:    MockFormat,
		Duration:  MockFormat.DurationOf(len(silence)),
		CharCount: len(text),
	}, nil
}

// Health implements Provider.
func (m *Mock) Health(ctx context.Context) error {
	m.record("Health", "")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	if m.isClosed() {
		return WrapError("mock", ErrProviderUnavailable)
	}
	return nil
}

// Close implements Provider. Later calls report the provider unavailable.
func (m *Mock) Close() error {
	m.record("Close", "")
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Mock) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mock) record(method, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Text: text, Time: time.Now()})
}

// Calls returns every recorded call in order.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns how many times method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Texts returns the synthesized texts in order.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		if c.Method == "Synthesize" {
			out = append(out, c.Text)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

var _ Provider = (*Mock)(nil)
