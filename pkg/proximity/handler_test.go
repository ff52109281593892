package proximity

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-doorbell/internal/clock"
)

func TestHandler(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	w := New(Config{Clock: clk})

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.All("/proximity", w.Handler())

	for _, method := range []string{"GET", "POST"} {
		t.Run(method, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(method, "/proximity", nil))
			if err != nil {
				t.Fatalf("Request error: %v", err)
			}
			if resp.StatusCode != 200 {
				t.Errorf("Status = %d, want 200", resp.StatusCode)
			}
			body, _ := io.ReadAll(resp.Body)
			var got map[string]string
			json.Unmarshal(body, &got)
			if got["status"] != "Heartbeat received" {
				t.Errorf("unexpected body %s", body)
			}
		})
	}

	st := w.Status()
	if !st.Active {
		t.Error("expected active after heartbeat")
	}
	if st.Activations != 1 {
		t.Errorf("expected 1 activation, got %d", st.Activations)
	}
	if !st.LastHeartbeat.Equal(clk.Now()) {
		t.Errorf("expected last heartbeat %v, got %v", clk.Now(), st.LastHeartbeat)
	}
}
