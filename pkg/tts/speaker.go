package tts

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-doorbell/internal/proc"
)

// Speaker synthesizes text and plays it on a PulseAudio sink. Speak
// returns immediately; overlapping utterances play concurrently.
type Speaker struct {
	ctx      context.Context
	provider Provider
	runner   proc.Runner
	device   string
	logger   *slog.Logger

	wg       sync.WaitGroup
	inFlight atomic.Int32
	spoken   atomic.Int64
	failed   atomic.Int64
}

// SpeakerOption configures a Speaker.
type SpeakerOption func(*Speaker)

// WithDevice sets the playback sink name (default "PiperSink").
func WithDevice(device string) SpeakerOption {
	return func(s *Speaker) { s.device = device }
}

// WithRunner sets the command runner used for playback.
func WithRunner(r proc.Runner) SpeakerOption {
	return func(s *Speaker) { s.runner = r }
}

// WithSpeakerLogger sets the logger.
func WithSpeakerLogger(l *slog.Logger) SpeakerOption {
	return func(s *Speaker) { s.logger = l }
}

// NewSpeaker creates a Speaker. Playback stops when ctx is cancelled.
func NewSpeaker(ctx context.Context, provider Provider, opts ...SpeakerOption) *Speaker {
	s := &Speaker{
		ctx:      ctx,
		provider: provider,
		runner:   proc.Exec{},
		device:   "PiperSink",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "speaker")
	return s
}

// Speak synthesizes and plays text in the background. Playback stops
// when either ctx or the speaker's own context is cancelled.
func (s *Speaker) Speak(ctx context.Context, text string) {
	s.wg.Add(1)
	s.inFlight.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Add(-1)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(s.ctx, cancel)
		defer stop()

		if err := s.speak(ctx, text); err != nil {
			s.failed.Add(1)
			s.logger.Error("speak failed", "text", text, "error", err)
			return
		}
		s.spoken.Add(1)
	}()
}

func (s *Speaker) speak(ctx context.Context, text string) error {
	if s.provider == nil {
		return ErrProviderUnavailable
	}
	result, err := s.provider.Synthesize(ctx, text)
	if err != nil {
		return err
	}

	s.logger.Info("speaking", "text", text, "duration", result.Duration)
	_, err = s.runner.Run(ctx, bytes.NewReader(result.Audio), "pacat",
		"--playback",
		"--device="+s.device,
		"--raw",
		"--format=s16le",
		"--rate="+strconv.Itoa(result.Format.SampleRate),
		"--channels="+strconv.Itoa(result.Format.Channels),
	)
	return err
}

// Wait blocks until every pending utterance has finished.
func (s *Speaker) Wait() {
	s.wg.Wait()
}

// InFlight returns the number of utterances being synthesized or played.
func (s *Speaker) InFlight() int {
	return int(s.inFlight.Load())
}

// Stats returns how many utterances completed and failed.
func (s *Speaker) Stats() (spoken, failed int64) {
	return s.spoken.Load(), s.failed.Load()
}
