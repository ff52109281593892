// Package faces decides when a stream of per-frame face recognitions is
// trustworthy enough to act on. A name must be seen K times in a tight
// run before it is accepted, after which the filter pauses.
package faces

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-doorbell/internal/clock"
)

// Unknown is the name reported for faces outside the gallery.
const Unknown = "Unknown"

// Defaults for the consensus rule.
const (
	DefaultConsensus    = 5
	DefaultWindow       = 1200 * time.Millisecond
	DefaultGap          = 500 * time.Millisecond
	DefaultCooldown     = 10 * time.Second
	DefaultBufferFrames = 30
)

// Frame is one JPEG-encoded camera frame.
type Frame struct {
	Seq  uint64
	Time time.Time
	JPEG []byte
}

// Acceptance is emitted once per accepted detection episode.
type Acceptance struct {
	Name   string
	Time   time.Time
	Frames []Frame
}

// Config configures a Filter.
type Config struct {
	// Consensus is the number of consecutive matching observations required.
	Consensus int

	// Window bounds the time from the first to the Consensus-th observation.
	Window time.Duration

	// Gap resets the run when observations are further apart.
	Gap time.Duration

	// Cooldown suppresses all observations after an acceptance.
	Cooldown time.Duration

	// BufferFrames caps the frames handed to the handler.
	BufferFrames int

	Clock clock.Clock

	// Handler receives acceptances on its own goroutine.
	Handler func(Acceptance)

	Logger *slog.Logger
}

// Filter applies the temporal consensus rule.
type Filter struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu          sync.Mutex
	lastName    string
	count       int
	windowStart time.Time
	lastEvent   time.Time
	pauseUntil  time.Time
	frames      *ring
	lastSeq     uint64
	haveSeq     bool

	handlers sync.WaitGroup
}

// NewFilter creates a Filter.
func NewFilter(cfg Config) *Filter {
	if cfg.Consensus <= 0 {
		cfg.Consensus = DefaultConsensus
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Gap == 0 {
		cfg.Gap = DefaultGap
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.BufferFrames <= 0 {
		cfg.BufferFrames = DefaultBufferFrames
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Filter{
		cfg:    cfg,
		clock:  cfg.Clock,
		logger: cfg.Logger.With("component", "faces"),
		frames: newRing(cfg.BufferFrames),
	}
}

// Observe feeds one recognition result and reports whether it completed
// an acceptance. A frame carrying several faces is buffered once.
func (f *Filter) Observe(frame Frame, name string) bool {
	now := f.clock.Now()

	f.mu.Lock()
	if now.Before(f.pauseUntil) {
		f.mu.Unlock()
		return false
	}

	f.recordLocked(frame)

	if f.lastEvent.IsZero() || now.Sub(f.lastEvent) > f.cfg.Gap || name != f.lastName {
		f.count = 1
		f.windowStart = now
		f.lastName = name
	} else {
		f.count++
	}
	f.lastEvent = now

	if f.count < f.cfg.Consensus || now.Sub(f.windowStart) > f.cfg.Window {
		f.mu.Unlock()
		return false
	}

	acc := Acceptance{Name: name, Time: now, Frames: f.frames.drain()}
	f.count = 0
	f.lastName = ""
	f.lastEvent = time.Time{}
	f.windowStart = time.Time{}
	f.pauseUntil = now.Add(f.cfg.Cooldown)
	f.mu.Unlock()

	f.logger.Info("face accepted", "name", name, "frames", len(acc.Frames))
	if f.cfg.Handler != nil {
		f.handlers.Add(1)
		go func() {
			defer f.handlers.Done()
			f.cfg.Handler(acc)
		}()
	}
	return true
}

// Record buffers a captured frame for the next clip without counting
// towards consensus. Frames already buffered are ignored.
func (f *Filter) Record(frame Frame) {
	f.mu.Lock()
	f.recordLocked(frame)
	f.mu.Unlock()
}

func (f *Filter) recordLocked(frame Frame) {
	if f.haveSeq && frame.Seq == f.lastSeq {
		return
	}
	f.frames.push(frame)
	f.lastSeq, f.haveSeq = frame.Seq, true
}

// Paused reports whether the filter is in its cooldown.
func (f *Filter) Paused() bool {
	now := f.clock.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	return now.Before(f.pauseUntil)
}

// Wait blocks until every running handler has returned.
func (f *Filter) Wait() {
	f.handlers.Wait()
}

// ring is a fixed-capacity frame buffer that drops the oldest frame.
type ring struct {
	buf   []Frame
	start int
	size  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Frame, capacity)}
}

func (r *ring) push(f Frame) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = f
		r.size++
		return
	}
	r.buf[r.start] = f
	r.start = (r.start + 1) % len(r.buf)
}

// drain returns the buffered frames oldest first and empties the ring.
func (r *ring) drain() []Frame {
	out := make([]Frame, r.size)
	for i := range out {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	clear(r.buf)
	r.start, r.size = 0, 0
	return out
}
