package vision

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-doorbell/internal/clock"
	"github.com/teslashibe/go-doorbell/pkg/faces"
)

// FrameSource yields camera frames.
type FrameSource interface {
	Next() (faces.Frame, error)
}

// Detector identifies the faces in a JPEG frame.
type Detector interface {
	Detect(jpeg []byte) ([]Face, error)
}

// Presence reports whether someone stands at the door.
type Presence interface {
	Active() bool
	Activated() <-chan struct{}
}

// Observer consumes frames and per-face identities.
type Observer interface {
	Record(frame faces.Frame)
	Observe(frame faces.Frame, name string) bool
}

// LoopConfig wires the camera loop.
type LoopConfig struct {
	Source   FrameSource
	Detector Detector
	Presence Presence
	Filter   Observer

	// ErrorBackoff is the pause after a failed read or detection.
	ErrorBackoff time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Loop runs capture and inference while the proximity sensor reports a
// visitor.
type Loop struct {
	cfg    LoopConfig
	clock  clock.Clock
	logger *slog.Logger

	frames     atomic.Int64
	detections atomic.Int64
	failures   atomic.Int64
}

// NewLoop creates a Loop.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = 500 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		cfg:    cfg,
		clock:  cfg.Clock,
		logger: cfg.Logger.With("component", "camera"),
	}
}

// Run waits for each activation and processes frames until presence
// decays. It returns when ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.cfg.Presence.Activated():
		}

		l.logger.Info("visitor present, starting recognition")
		l.watch(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Info("visitor gone, recognition paused", "frames", l.frames.Load())
	}
}

func (l *Loop) watch(ctx context.Context) {
	for l.cfg.Presence.Active() {
		if ctx.Err() != nil {
			return
		}
		if !l.step() {
			select {
			case <-ctx.Done():
				return
			case <-l.clock.After(l.cfg.ErrorBackoff):
			}
		}
	}
}

// step handles one frame and reports whether it succeeded.
func (l *Loop) step() bool {
	frame, err := l.cfg.Source.Next()
	if err != nil {
		l.failures.Add(1)
		l.logger.Warn("frame read failed", "error", err)
		return false
	}
	l.frames.Add(1)
	l.cfg.Filter.Record(frame)

	found, err := l.cfg.Detector.Detect(frame.JPEG)
	if err != nil {
		l.failures.Add(1)
		l.logger.Warn("detection failed", "error", err)
		return false
	}
	for _, f := range found {
		l.detections.Add(1)
		l.logger.Debug("face", "name", f.Name, "similarity", f.Similarity)
		l.cfg.Filter.Observe(frame, f.Name)
	}
	return true
}

// Stats returns frames processed, faces detected and failed steps.
func (l *Loop) Stats() (frames, detections, failures int64) {
	return l.frames.Load(), l.detections.Load(), l.failures.Load()
}
