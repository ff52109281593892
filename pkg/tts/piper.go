package tts

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/teslashibe/go-doorbell/internal/proc"
)

// Piper synthesizes speech with the piper binary. Text goes in on stdin,
// raw 16-bit mono PCM comes out on stdout.
type Piper struct {
	cfg    *Config
	runner proc.Runner
	logger *slog.Logger
}

// NewPiper creates a Piper provider.
func NewPiper(opts ...Option) (*Piper, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Piper{
		cfg:    cfg,
		runner: proc.Exec{},
		logger: cfg.Logger.With("component", "piper"),
	}, nil
}

// SetRunner replaces the command runner, for tests.
func (p *Piper) SetRunner(r proc.Runner) {
	p.runner = r
}

// Format returns the PCM format piper produces.
func (p *Piper) Format() AudioFormat {
	return AudioFormat{SampleRate: p.cfg.SampleRate, Channels: 1, BitDepth: 16}
}

// Synthesize runs piper once for text.
func (p *Piper) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, WrapError("piper", ErrEmptyText)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	audio, err := p.runner.Run(ctx, strings.NewReader(text+"\n"), p.cfg.Executable,
		"--model", p.cfg.Model,
		"--output-raw",
	)
	if err != nil {
		return nil, WrapError("piper", err)
	}
	if len(audio) == 0 {
		return nil, WrapError("piper", ErrNoAudio)
	}

	format := p.Format()
	result := &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  format.DurationOf(len(audio)),
		CharCount: len([]rune(text)),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	p.logger.Debug("synthesized", "chars", result.CharCount, "duration", result.Duration, "latency_ms", result.LatencyMs)
	return result, nil
}

// Health checks that the executable and model exist.
func (p *Piper) Health(ctx context.Context) error {
	if _, err := os.Stat(p.cfg.Model); err != nil {
		return WrapError("piper", err)
	}
	if strings.ContainsRune(p.cfg.Executable, os.PathSeparator) {
		if _, err := os.Stat(p.cfg.Executable); err != nil {
			return WrapError("piper", err)
		}
	}
	return nil
}

// Close implements Provider. Piper keeps no state between runs.
func (p *Piper) Close() error {
	return nil
}

var _ Provider = (*Piper)(nil)
