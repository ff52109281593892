package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	gorilla "github.com/gorilla/websocket"

	"github.com/teslashibe/go-doorbell/pkg/events"
)

func TestNewHub(t *testing.T) {
	h := New("events", nil)
	if h.ClientCount() != 0 {
		t.Error("ClientCount should be 0 initially")
	}
	if h.IsRunning() {
		t.Error("hub should not be running before Run")
	}
}

func TestBroadcastWithoutClients(t *testing.T) {
	h := New("events", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	// Should not block or panic
	h.Publish(events.Event{Kind: events.CallIncoming})
	if err := h.BroadcastJSON(map[string]string{"a": "b"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBroadcastChannelFull(t *testing.T) {
	h := New("events", nil)
	for i := 0; i < 300; i++ {
		h.Broadcast(NewJSONMessage([]byte("{}")))
	}
	if len(h.broadcast) != cap(h.broadcast) {
		t.Errorf("expected a full broadcast channel, got %d", len(h.broadcast))
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().String()
}

func TestWebSocketFeed(t *testing.T) {
	h := New("events", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	backlog, _ := EventMessage(events.Event{Kind: events.ProximityActive})

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		NewClient(h, c, backlog).Run()
	}))

	addr := freeAddr(t)
	go app.Listen(addr)
	defer app.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws, _, err := gorilla.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", addr), nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	var first events.Event
	if err := ws.ReadJSON(&first); err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if first.Kind != events.ProximityActive {
		t.Errorf("expected backlog event first, got %s", first.Kind)
	}

	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d, want 1", h.ClientCount())
	}

	h.Publish(events.Event{Kind: events.CallActive, CallID: "c1"})

	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	var ev events.Event
	json.Unmarshal(data, &ev)
	if ev.Kind != events.CallActive || ev.CallID != "c1" {
		t.Errorf("unexpected event %+v", ev)
	}

	ws.Close()
	deadline = time.Now().Add(time.Second)
	for h.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0 after disconnect", h.ClientCount())
	}
}
