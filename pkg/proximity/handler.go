package proximity

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Status is the JSON view of the watchdog.
type Status struct {
	Active        bool      `json:"active"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitzero"`
	Activations   int       `json:"activations"`
}

// Status returns a consistent view of the proximity state.
func (w *Watchdog) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		Active:        w.active,
		LastHeartbeat: w.lastHeartbeat,
		Activations:   w.activations,
	}
}

// Handler turns each request into one heartbeat. The sensor accepts any
// method, so mount it with app.All.
func (w *Watchdog) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		w.OnHeartbeat()
		return c.JSON(fiber.Map{"status": "Heartbeat received"})
	}
}
