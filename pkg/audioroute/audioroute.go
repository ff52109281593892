// Package audioroute keeps the SIP client's PulseAudio streams attached
// to the null sinks used by speech recognition and synthesis.
//
// The capture path plays the caller's voice into the capture sink, whose
// monitor feeds the recognizer. The playback path records the SIP
// microphone stream from the playback sink's monitor, into which the
// synthesizer plays.
package audioroute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-doorbell/internal/clock"
	"github.com/teslashibe/go-doorbell/internal/proc"
)

// ErrStreamNotFound is returned when no SIP stream could be bound.
var ErrStreamNotFound = errors.New("audioroute: sip stream not found")

// Direction selects a routing path.
type Direction int

const (
	// Capture moves the SIP sink-input into the capture sink.
	Capture Direction = iota
	// Playback moves the SIP source-output onto the playback monitor.
	Playback
)

// String returns the direction name.
func (d Direction) String() string {
	if d == Capture {
		return "capture"
	}
	return "playback"
}

// Config configures a Coordinator.
type Config struct {
	CaptureSink  string
	PlaybackSink string

	// StreamMatch identifies SIP streams by a property substring.
	StreamMatch string

	Attempts int
	Backoff  time.Duration

	Runner proc.Runner
	Clock  clock.Clock
	Logger *slog.Logger
}

// Route is one null sink owned or reused by the coordinator.
type Route struct {
	Name      string
	Module    int
	SinkID    int
	MonitorID int
	owned     bool
}

// seenSlots is the number of stream ids remembered per direction.
const seenSlots = 2

// seenTable remembers recently bound stream ids.
type seenTable struct {
	ids  [seenSlots]int
	next int
	n    int
}

func (t *seenTable) has(id int) bool {
	for i := 0; i < t.n; i++ {
		if t.ids[i] == id {
			return true
		}
	}
	return false
}

func (t *seenTable) add(id int) {
	if t.has(id) {
		return
	}
	t.ids[t.next] = id
	t.next = (t.next + 1) % seenSlots
	if t.n < seenSlots {
		t.n++
	}
}

// Coordinator discovers and moves SIP audio streams.
type Coordinator struct {
	cfg    Config
	runner proc.Runner
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	capture  *Route
	playback *Route
	seen     map[Direction]*seenTable
	bound    map[Direction]int
}

// New creates a Coordinator. Setup must run before routing.
func New(cfg Config) *Coordinator {
	if cfg.CaptureSink == "" {
		cfg.CaptureSink = "VoskSink"
	}
	if cfg.PlaybackSink == "" {
		cfg.PlaybackSink = "PiperSink"
	}
	if cfg.StreamMatch == "" {
		cfg.StreamMatch = "baresip"
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Runner == nil {
		cfg.Runner = proc.Exec{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{
		cfg:    cfg,
		runner: cfg.Runner,
		clock:  cfg.Clock,
		logger: cfg.Logger.With("component", "audioroute"),
		seen: map[Direction]*seenTable{
			Capture:  {},
			Playback: {},
		},
		bound: map[Direction]int{},
	}
}

func (c *Coordinator) pactl(ctx context.Context, args ...string) (string, error) {
	out, err := c.runner.Run(ctx, nil, "pactl", args...)
	return string(out), err
}

// Setup creates or reuses both null sinks and resolves their ids.
func (c *Coordinator) Setup(ctx context.Context) error {
	capture, err := c.ensureSink(ctx, c.cfg.CaptureSink)
	if err != nil {
		return err
	}
	playback, err := c.ensureSink(ctx, c.cfg.PlaybackSink)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.capture, c.playback = capture, playback
	c.mu.Unlock()

	c.logger.Info("audio sinks ready",
		"capture", capture.Name, "capture_sink", capture.SinkID,
		"playback", playback.Name, "playback_monitor", playback.MonitorID)
	return nil
}

func (c *Coordinator) ensureSink(ctx context.Context, name string) (*Route, error) {
	route := &Route{Name: name, Module: -1, SinkID: -1, MonitorID: -1}

	modules, err := c.pactl(ctx, "list", "modules", "short")
	if err != nil {
		return nil, fmt.Errorf("audioroute: list modules: %w", err)
	}
	for _, m := range parseShort(modules) {
		if m.Name == "module-null-sink" && len(m.Fields) > 0 && hasArg(m.Fields[0], "sink_name", name) {
			route.Module = m.ID
			break
		}
	}

	if route.Module < 0 {
		out, err := c.pactl(ctx, "load-module", "module-null-sink",
			"sink_name="+name, "sink_properties=device.description="+name)
		if err != nil {
			return nil, fmt.Errorf("audioroute: load null sink %s: %w", name, err)
		}
		id, err := strconv.Atoi(proc.LastLine(out))
		if err != nil {
			return nil, fmt.Errorf("audioroute: load null sink %s: unexpected output %q", name, out)
		}
		route.Module, route.owned = id, true
		c.logger.Info("null sink created", "name", name, "module", id)
	} else {
		c.logger.Info("null sink reused", "name", name, "module", route.Module)
	}

	sinks, err := c.pactl(ctx, "list", "sinks")
	if err != nil {
		return nil, fmt.Errorf("audioroute: list sinks: %w", err)
	}
	for _, b := range parseBlocks(sinks, "Sink ") {
		if b.intField("Owner Module") == route.Module {
			route.SinkID = b.ID
			break
		}
	}
	if route.SinkID < 0 {
		return nil, fmt.Errorf("audioroute: sink for module %d not found", route.Module)
	}

	sources, err := c.pactl(ctx, "list", "sources", "short")
	if err != nil {
		return nil, fmt.Errorf("audioroute: list sources: %w", err)
	}
	for _, s := range parseShort(sources) {
		if s.Name == name+".monitor" {
			route.MonitorID = s.ID
			break
		}
	}
	if route.MonitorID < 0 {
		return nil, fmt.Errorf("audioroute: monitor of %s not found", name)
	}
	return route, nil
}

// hasArg reports whether a module argument string sets key=value.
func hasArg(args, key, value string) bool {
	for _, f := range strings.Fields(args) {
		if f == key+"="+value {
			return true
		}
	}
	return false
}

// Routes returns the capture and playback routes, or nil before Setup.
func (c *Coordinator) Routes() (capture, playback *Route) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture, c.playback
}

// Teardown unloads the null sinks this process created.
func (c *Coordinator) Teardown(ctx context.Context) error {
	c.mu.Lock()
	routes := []*Route{c.capture, c.playback}
	c.capture, c.playback = nil, nil
	c.mu.Unlock()

	var errs []error
	for _, r := range routes {
		if r == nil || !r.owned {
			continue
		}
		if _, err := c.pactl(ctx, "unload-module", strconv.Itoa(r.Module)); err != nil {
			errs = append(errs, fmt.Errorf("unload %s: %w", r.Name, err))
			continue
		}
		c.logger.Info("null sink removed", "name", r.Name, "module", r.Module)
	}
	return errors.Join(errs...)
}

// RedirectCapture moves the SIP playback stream into target sink.
func (c *Coordinator) RedirectCapture(ctx context.Context, target int) bool {
	return c.redirect(ctx, Capture, c.cfg.StreamMatch, target)
}

// RedirectPlayback moves the SIP recording stream onto target source.
func (c *Coordinator) RedirectPlayback(ctx context.Context, target int) bool {
	return c.redirect(ctx, Playback, c.cfg.StreamMatch, target)
}

// Attach binds both paths of the call whose streams match stream.
func (c *Coordinator) Attach(ctx context.Context, stream string) error {
	if stream == "" {
		stream = c.cfg.StreamMatch
	}
	capture, playback := c.Routes()
	if capture == nil || playback == nil {
		return errors.New("audioroute: sinks not set up")
	}

	var failed []string
	if !c.redirect(ctx, Capture, stream, capture.SinkID) {
		failed = append(failed, Capture.String())
	}
	if !c.redirect(ctx, Playback, stream, playback.MonitorID) {
		failed = append(failed, Playback.String())
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrStreamNotFound, strings.Join(failed, ", "))
	}
	return nil
}

// Detach forgets the call's bindings. The streams disappear with the
// call; their ids stay in the seen table.
func (c *Coordinator) Detach(stream string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.bound)
}

// Bound returns the stream bound on a path, or -1.
func (c *Coordinator) Bound(d Direction) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.bound[d]
	if !ok {
		return -1
	}
	return id
}

func (c *Coordinator) redirect(ctx context.Context, dir Direction, match string, target int) bool {
	list, header, move := "sink-inputs", "Sink Input ", "move-sink-input"
	targetField := "Sink"
	if dir == Playback {
		list, header, move = "source-outputs", "Source Output ", "move-source-output"
		targetField = "Source"
	}
	logger := c.logger.With("direction", dir.String(), "target", target)

	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return false
			case <-c.clock.After(c.cfg.Backoff):
			}
		}

		out, err := c.pactl(ctx, "list", list)
		if err != nil {
			logger.Warn("stream list failed", "attempt", attempt, "error", err)
			continue
		}

		var candidates []block
		for _, b := range parseBlocks(out, header) {
			if b.matches(match) {
				candidates = append(candidates, b)
			}
		}
		chosen, ok := c.choose(dir, candidates)
		if !ok {
			logger.Debug("no stream yet", "attempt", attempt, "candidates", len(candidates))
			continue
		}

		if chosen.intField(targetField) != target {
			if _, err := c.pactl(ctx, move, strconv.Itoa(chosen.ID), strconv.Itoa(target)); err != nil {
				logger.Warn("move failed", "stream", chosen.ID, "attempt", attempt, "error", err)
				continue
			}
		}

		c.mu.Lock()
		c.seen[dir].add(chosen.ID)
		c.bound[dir] = chosen.ID
		c.mu.Unlock()

		logger.Info("stream routed", "stream", chosen.ID, "attempt", attempt)
		return true
	}

	logger.Warn("stream routing gave up", "attempts", c.cfg.Attempts)
	return false
}

// choose picks the first candidate not bound before. A stream left over
// from an earlier call is never chosen; the caller retries until the
// new one shows up.
func (c *Coordinator) choose(dir Direction, candidates []block) (block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := c.seen[dir]
	for _, b := range candidates {
		if !seen.has(b.ID) {
			return b, true
		}
	}
	return block{}, false
}
