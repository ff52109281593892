package faces

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/teslashibe/go-doorbell/internal/clock"
	"github.com/teslashibe/go-doorbell/pkg/archive"
	"github.com/teslashibe/go-doorbell/pkg/events"
	"github.com/teslashibe/go-doorbell/pkg/notify"
	"github.com/teslashibe/go-doorbell/pkg/relay"
)

// ClipWriter encodes frames into a video file.
type ClipWriter interface {
	WriteClip(path string, frames []Frame, fps int) error
}

// Responder acts on acceptances: it opens the door for known faces,
// saves and archives the clip and notifies the operator.
type Responder struct {
	Relay      relay.Pulser
	Clips      ClipWriter
	Archive    archive.Store
	Notifier   notify.Notifier
	StorageDir string
	FPS        int
	Title      string
	Timeout    time.Duration
	Clock      clock.Clock
	Events     *events.Journal
	Logger     *slog.Logger
}

// ClipName returns storage/YYYY-MM-DD_HHMMSS_<name>.avi style names.
func ClipName(t time.Time, name string) string {
	return fmt.Sprintf("%s_%s.avi", t.Format("2006-01-02_150405"), name)
}

// Handle implements the Filter handler.
func (r *Responder) Handle(acc Acceptance) {
	logger := r.logger().With("name", acc.Name)
	r.Events.Record(events.FaceAccepted, "", acc.Name)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout())
	defer cancel()

	if acc.Name != Unknown && r.Relay != nil {
		if err := r.Relay.Pulse(ctx, relay.Door); err != nil {
			logger.Error("door relay failed", "error", err)
			r.Events.Record(events.RelayFailed, "", err.Error())
		} else {
			logger.Info("door opened for known face")
			r.Events.Record(events.RelayPulse, "", "door")
		}
	}

	path := r.saveClip(logger, acc)
	if path != "" && r.Archive != nil {
		if err := archive.PutFile(ctx, r.Archive, path); err != nil {
			logger.Warn("clip archive failed", "path", path, "error", err)
		}
	}

	if r.Notifier != nil {
		msg := notify.Message{
			Title: r.Title,
			Text:  fmt.Sprintf("Rozpoznano twarz: %s", acc.Name),
		}
		if n := len(acc.Frames); n > 0 {
			msg.Image = acc.Frames[n-1].JPEG
			msg.ImageName = "face.jpg"
		}
		if err := r.Notifier.Notify(ctx, msg); err != nil {
			logger.Warn("face notification failed", "error", err)
		}
	}
}

func (r *Responder) saveClip(logger *slog.Logger, acc Acceptance) string {
	if r.Clips == nil || len(acc.Frames) == 0 {
		return ""
	}
	if err := os.MkdirAll(r.StorageDir, 0o755); err != nil {
		logger.Error("create storage dir", "error", err)
		return ""
	}

	now := acc.Time
	if r.Clock != nil {
		now = r.Clock.Now()
	}
	path := filepath.Join(r.StorageDir, ClipName(now, acc.Name))

	fps := r.FPS
	if fps <= 0 {
		fps = 10
	}
	if err := r.Clips.WriteClip(path, acc.Frames, fps); err != nil {
		logger.Error("clip write failed", "path", path, "error", err)
		return ""
	}
	logger.Info("clip saved", "path", path, "frames", len(acc.Frames))
	r.Events.Record(events.ClipSaved, "", filepath.Base(path))
	return path
}

func (r *Responder) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default().With("component", "faces")
	}
	return r.Logger.With("component", "faces")
}

func (r *Responder) timeout() time.Duration {
	if r.Timeout == 0 {
		return 2 * time.Minute
	}
	return r.Timeout
}
