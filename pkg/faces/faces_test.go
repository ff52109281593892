package faces

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-doorbell/internal/clock"
	"github.com/teslashibe/go-doorbell/pkg/archive"
	"github.com/teslashibe/go-doorbell/pkg/notify"
	"github.com/teslashibe/go-doorbell/pkg/relay"
)

type collector struct {
	mu   sync.Mutex
	accs []Acceptance
}

func (c *collector) handle(a Acceptance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accs = append(c.accs, a)
}

func (c *collector) all() []Acceptance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Acceptance(nil), c.accs...)
}

func newTestFilter(clk *clock.FakeClock, c *collector) *Filter {
	return NewFilter(Config{Clock: clk, Handler: c.handle})
}

var seq uint64

func frame(clk *clock.FakeClock) Frame {
	seq++
	return Frame{Seq: seq, Time: clk.Now(), JPEG: []byte{byte(seq)}}
}

func TestFilterAcceptsConsensus(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	c := &collector{}
	f := newTestFilter(clk, c)

	accepted := 0
	for i := 0; i < 5; i++ { // t = 0, 0.1 .. 0.4
		if f.Observe(frame(clk), "Alice") {
			accepted++
		}
		clk.Advance(100 * time.Millisecond)
	}
	f.Wait()

	if accepted != 1 || len(c.all()) != 1 {
		t.Fatalf("expected exactly one acceptance, got %d/%d", accepted, len(c.all()))
	}
	acc := c.all()[0]
	if acc.Name != "Alice" || len(acc.Frames) != 5 {
		t.Errorf("unexpected acceptance %s with %d frames", acc.Name, len(acc.Frames))
	}
}

func TestFilterNameChangeResets(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	c := &collector{}
	f := newTestFilter(clk, c)

	names := []string{"Alice", "Alice", "Alice", "Alice", "Bob", "Alice"}
	for _, name := range names {
		f.Observe(frame(clk), name)
		clk.Advance(80 * time.Millisecond)
	}
	f.Wait()

	if len(c.all()) != 0 {
		t.Errorf("expected no acceptance after interruption, got %v", c.all())
	}
}

func TestFilterGapResets(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	c := &collector{}
	f := newTestFilter(clk, c)

	for i := 0; i < 4; i++ {
		f.Observe(frame(clk), "Alice")
		clk.Advance(100 * time.Millisecond)
	}
	clk.Advance(600 * time.Millisecond)
	if f.Observe(frame(clk), "Alice") {
		t.Error("run should have restarted after a gap")
	}
}

func TestFilterWindowBound(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	c := &collector{}
	f := newTestFilter(clk, c)

	// Each step is within the gap, but five take 1.6s.
	for i := 0; i < 5; i++ {
		if f.Observe(frame(clk), "Alice") {
			t.Fatal("accepted a run slower than the window")
		}
		clk.Advance(400 * time.Millisecond)
	}
}

func TestFilterCooldown(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	c := &collector{}
	f := newTestFilter(clk, c)

	for i := 0; i < 5; i++ {
		f.Observe(frame(clk), "Alice")
		if i < 4 {
			clk.Advance(100 * time.Millisecond)
		}
	}
	if !f.Paused() {
		t.Fatal("expected cooldown after acceptance")
	}

	// Dense stream of another name from t=1 to t=9.
	clk.Advance(600 * time.Millisecond)
	for clk.Now().Before(time.Unix(10, 0)) {
		if f.Observe(frame(clk), "Bob") {
			t.Fatalf("accepted during cooldown at %v", clk.Now())
		}
		clk.Advance(100 * time.Millisecond)
	}

	clk.Advance(time.Second)
	for i := 0; i < 5; i++ {
		f.Observe(frame(clk), "Bob")
		clk.Advance(100 * time.Millisecond)
	}
	f.Wait()
	if len(c.all()) != 2 {
		t.Errorf("expected a second acceptance after cooldown, got %d", len(c.all()))
	}
}

func TestFilterBufferBounded(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	c := &collector{}
	f := NewFilter(Config{Clock: clk, Handler: c.handle, BufferFrames: 3})

	var last Frame
	for i := 0; i < 5; i++ {
		last = frame(clk)
		f.Observe(last, "Alice")
		clk.Advance(50 * time.Millisecond)
	}
	f.Wait()

	accs := c.all()
	if len(accs) != 1 {
		t.Fatalf("expected one acceptance, got %d", len(accs))
	}
	frames := accs[0].Frames
	if len(frames) != 3 || frames[2].Seq != last.Seq {
		t.Errorf("expected the newest 3 frames, got %v", frames)
	}
}

func TestFilterRecordBuffersFaceless(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	c := &collector{}
	f := newTestFilter(clk, c)

	empty := frame(clk)
	f.Record(empty)
	f.Record(empty)
	for i := 0; i < 5; i++ {
		fr := frame(clk)
		f.Record(fr)
		f.Observe(fr, "Alice")
		clk.Advance(50 * time.Millisecond)
	}
	f.Wait()

	accs := c.all()
	if len(accs) != 1 {
		t.Fatalf("expected one acceptance, got %d", len(accs))
	}
	if got := len(accs[0].Frames); got != 6 {
		t.Errorf("expected 6 buffered frames, got %d", got)
	}
	if accs[0].Frames[0].Seq != empty.Seq {
		t.Error("expected the faceless frame first")
	}
}

func TestRingDropsOldest(t *testing.T) {
	r := newRing(3)
	for i := uint64(1); i <= 5; i++ {
		r.push(Frame{Seq: i})
	}
	got := r.drain()
	if len(got) != 3 || got[0].Seq != 3 || got[2].Seq != 5 {
		t.Errorf("expected oldest frames dropped, got %v", got)
	}
	if len(r.drain()) != 0 {
		t.Error("expected drain to empty the ring")
	}
}

func TestFilterHandlerOffCriticalPath(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	release := make(chan struct{})
	f := NewFilter(Config{Clock: clk, Handler: func(Acceptance) { <-release }})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			f.Observe(frame(clk), "Alice")
		}
		f.Observe(frame(clk), "Alice")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Observe blocked on the handler")
	}
	close(release)
	f.Wait()
}

type fakeClips struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (w *fakeClips) WriteClip(path string, frames []Frame, fps int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.paths = append(w.paths, path)
	return os.WriteFile(path, []byte("avi"), 0o644)
}

func TestResponderKnownFace(t *testing.T) {
	dir := t.TempDir()
	relays := relay.NewMock()
	notifier := notify.NewMock()
	clips := &fakeClips{}
	archiveDir, _ := archive.NewDir(filepath.Join(dir, "archive"))

	r := &Responder{
		Relay:      relays,
		Clips:      clips,
		Archive:    archiveDir,
		Notifier:   notifier,
		StorageDir: filepath.Join(dir, "storage"),
		Clock:      clock.Fake(time.Date(2024, 6, 1, 18, 4, 5, 0, time.UTC)),
	}

	r.Handle(Acceptance{Name: "Alice", Frames: []Frame{{Seq: 1, JPEG: []byte{1}}, {Seq: 2, JPEG: []byte{2}}}})

	if relays.Count(relay.Door) != 1 {
		t.Errorf("expected door pulse, got %v", relays.Pulses())
	}
	want := filepath.Join(dir, "storage", "2024-06-01_180405_Alice.avi")
	if len(clips.paths) != 1 || clips.paths[0] != want {
		t.Errorf("expected clip %s, got %v", want, clips.paths)
	}
	if _, err := os.Stat(filepath.Join(dir, "archive", "2024-06-01_180405_Alice.avi")); err != nil {
		t.Errorf("expected archived clip: %v", err)
	}
	msgs := notifier.Messages()
	if len(msgs) != 1 || len(msgs[0].Image) != 1 || msgs[0].Image[0] != 2 {
		t.Errorf("expected notification with newest frame, got %+v", msgs)
	}
}

func TestResponderUnknownFace(t *testing.T) {
	relays := relay.NewMock()
	r := &Responder{Relay: relays, Clips: &fakeClips{err: errors.New("codec")}, StorageDir: t.TempDir()}

	r.Handle(Acceptance{Name: Unknown, Frames: []Frame{{Seq: 1}}})
	if len(relays.Pulses()) != 0 {
		t.Errorf("unknown face must not open the door, got %v", relays.Pulses())
	}
}

func TestResponderRelayFailureContinues(t *testing.T) {
	relays := relay.NewMock()
	relays.PulseFunc = func(ctx context.Context, r int) error { return errors.New("offline") }
	notifier := notify.NewMock()

	r := &Responder{Relay: relays, Notifier: notifier}
	r.Handle(Acceptance{Name: "Alice"})

	if len(notifier.Messages()) != 1 {
		t.Error("expected notification despite relay failure")
	}
}
