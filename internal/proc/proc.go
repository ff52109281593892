// Package proc runs the external command-line tools go-doorbell drives
// (pactl, parec, pacat, piper) behind an interface so callers can be
// tested without the tools installed.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

const maxErrorLineLength = 200

// Runner starts external commands.
type Runner interface {
	// Run executes name with args, feeding stdin (may be nil), and
	// returns its standard output.
	Run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)

	// Stream starts name with args and returns its standard output.
	// Closing the stream stops the process.
	Stream(ctx context.Context, stdin io.Reader, name string, args ...string) (io.ReadCloser, error)
}

// CommandError is returned when a command fails. Stderr holds the last
// meaningful line the command printed.
type CommandError struct {
	Name   string
	Args   []string
	Stderr string
	Err    error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	cmd := strings.TrimSpace(e.Name + " " + strings.Join(e.Args, " "))
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", cmd, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", cmd, e.Err)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// Exec is the os/exec backed Runner.
type Exec struct{}

// Run implements Runner.
func (Exec) Run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &CommandError{Name: name, Args: args, Stderr: LastLine(stderr.String()), Err: err}
	}
	return stdout.Bytes(), nil
}

// Stream implements Runner.
func (Exec) Stream(ctx context.Context, stdin io.Reader, name string, args ...string) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &CommandError{Name: name, Args: args, Err: err}
	}
	return &stream{ReadCloser: stdout, cmd: cmd, cancel: cancel, stderr: &stderr}, nil
}

type stream struct {
	io.ReadCloser
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stderr *bytes.Buffer

	once sync.Once
	err  error
}

// Close kills the process and waits for it. A process killed by Close
// is not reported as an error.
func (s *stream) Close() error {
	s.once.Do(func() {
		s.cancel()
		err := s.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			s.err = err
		}
	})
	return s.err
}

// LastLine extracts the last non-empty line of tool output, truncated.
func LastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if len(line) > maxErrorLineLength {
			return line[:maxErrorLineLength] + "..."
		}
		return line
	}
	return ""
}

var _ Runner = Exec{}
