package proximity

import (
	"context"
	"testing"
	"time"

	"github.com/teslashibe/go-doorbell/internal/clock"
)

func TestWatchdogActivationAndDecay(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	fired := 0
	w := New(Config{Clock: clk, OnActivate: func() { fired++ }})

	w.OnHeartbeat() // t=0
	if !w.Active() || fired != 1 {
		t.Fatalf("expected active with one activation, got active=%v fired=%d", w.Active(), fired)
	}

	for i := 0; i < 2; i++ { // t=1, t=2
		clk.Advance(time.Second)
		w.OnHeartbeat()
		w.tick()
	}
	if fired != 1 {
		t.Errorf("repeated heartbeats re-fired activation: %d", fired)
	}

	for i := 0; i < 3; i++ { // t=3..5
		clk.Advance(time.Second)
		w.tick()
		if !w.Active() {
			t.Fatalf("expired early at t=%d", 3+i)
		}
	}

	clk.Advance(time.Second) // t=6
	w.tick()
	if w.Active() {
		t.Error("expected inactive after 4s of silence")
	}

	select {
	case <-w.Activated():
	default:
		t.Error("expected an activation signal")
	}
}

func TestWatchdogReactivates(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	w := New(Config{Clock: clk})

	w.OnHeartbeat()
	clk.Advance(4 * time.Second)
	w.tick()
	w.OnHeartbeat()

	if w.Activations() != 2 {
		t.Errorf("expected two activations, got %d", w.Activations())
	}
}

func TestWatchdogDecayIsPolled(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	w := New(Config{Clock: clk})

	w.OnHeartbeat()
	clk.Advance(10 * time.Second)
	if !w.Active() {
		t.Error("presence must only expire on a tick")
	}
}

func TestWatchdogRun(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	w := New(Config{Clock: clk})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	clk.WaitForTimers(1)

	w.OnHeartbeat()
	deadline := time.Now().Add(2 * time.Second)
	for w.Active() && time.Now().Before(deadline) {
		clk.Advance(time.Second)
		time.Sleep(2 * time.Millisecond)
	}
	if w.Active() {
		t.Error("expected Run to expire presence")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
