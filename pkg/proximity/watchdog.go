// Package proximity turns proximity-sensor heartbeats into a debounced
// "visitor present" signal. Presence starts on the first heartbeat and
// decays on a polling tick once heartbeats stop for longer than the
// timeout.
package proximity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-doorbell/internal/clock"
	"github.com/teslashibe/go-doorbell/pkg/events"
)

// Defaults match a sensor that pings about once a second.
const (
	DefaultTimeout      = 3500 * time.Millisecond
	DefaultPollInterval = time.Second
)

// Config configures a Watchdog.
type Config struct {
	Timeout      time.Duration
	PollInterval time.Duration
	Clock        clock.Clock

	// OnActivate runs once per inactive-to-active transition, on the
	// goroutine that delivered the heartbeat.
	OnActivate func()

	Events *events.Journal
	Logger *slog.Logger
}

// Watchdog holds the proximity state.
type Watchdog struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu            sync.Mutex
	active        bool
	lastHeartbeat time.Time
	activations   int

	activated chan struct{}
}

// New creates an inactive Watchdog.
func New(cfg Config) *Watchdog {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watchdog{
		cfg:       cfg,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With("component", "proximity"),
		activated: make(chan struct{}, 1),
	}
}

// OnHeartbeat records a sensor ping.
func (w *Watchdog) OnHeartbeat() {
	w.mu.Lock()
	w.lastHeartbeat = w.clock.Now()
	rising := !w.active
	if rising {
		w.active = true
		w.activations++
	}
	w.mu.Unlock()

	if !rising {
		return
	}
	w.logger.Info("visitor present")
	w.cfg.Events.Record(events.ProximityActive, "", "")

	select {
	case w.activated <- struct{}{}:
	default:
	}
	if w.cfg.OnActivate != nil {
		w.cfg.OnActivate()
	}
}

// Active reports whether a visitor is present.
func (w *Watchdog) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// LastHeartbeat returns the time of the most recent ping.
func (w *Watchdog) LastHeartbeat() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastHeartbeat
}

// Activations returns how many times presence has started.
func (w *Watchdog) Activations() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activations
}

// Activated signals each activation. Signals do not queue up: a consumer
// that is busy sees at most one pending activation.
func (w *Watchdog) Activated() <-chan struct{} {
	return w.activated
}

// tick expires presence once heartbeats have been silent for longer than
// the timeout.
func (w *Watchdog) tick() {
	w.mu.Lock()
	expired := w.active && w.clock.Now().Sub(w.lastHeartbeat) > w.cfg.Timeout
	if expired {
		w.active = false
	}
	w.mu.Unlock()

	if expired {
		w.logger.Info("visitor gone")
		w.cfg.Events.Record(events.ProximityInactive, "", "")
	}
}

// Run polls for expiry until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := w.clock.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick()
		}
	}
}
