package proc

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
)

// Call is one recorded command invocation.
type Call struct {
	Name  string
	Args  []string
	Stdin []byte
}

// Line returns the command line joined with spaces.
func (c Call) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Fake is a scripted Runner for tests. Handler decides the output of each
// call; unhandled calls return empty output.
type Fake struct {
	Handler func(call Call) ([]byte, error)

	mu    sync.Mutex
	calls []Call
}

// Run implements Runner.
func (f *Fake) Run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	call := f.record(stdin, name, args)
	if f.Handler == nil {
		return nil, nil
	}
	return f.Handler(call)
}

// Stream implements Runner by serving the handler output as the stream.
func (f *Fake) Stream(ctx context.Context, stdin io.Reader, name string, args ...string) (io.ReadCloser, error) {
	call := f.record(stdin, name, args)
	var out []byte
	if f.Handler != nil {
		var err error
		if out, err = f.Handler(call); err != nil {
			return nil, err
		}
	}
	return io.NopCloser(bytes.NewReader(out)), nil
}

func (f *Fake) record(stdin io.Reader, name string, args []string) Call {
	call := Call{Name: name, Args: append([]string(nil), args...)}
	if stdin != nil {
		call.Stdin, _ = io.ReadAll(stdin)
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	return call
}

// Calls returns every recorded call.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Count returns how many recorded calls start with prefix.
func (f *Fake) Count(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c.Line(), prefix) {
			n++
		}
	}
	return n
}

var _ Runner = (*Fake)(nil)
