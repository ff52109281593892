package web

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-doorbell/pkg/events"
	"github.com/teslashibe/go-doorbell/pkg/hub"
	"github.com/teslashibe/go-doorbell/pkg/proximity"
	"github.com/teslashibe/go-doorbell/pkg/session"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Proximity   *proximity.Status `json:"proximity,omitempty"`
	Call        *session.Snapshot `json:"call"`
	LampOn      bool              `json:"lamp_on"`
	FeedClients int               `json:"feed_clients"`
}

// handleStatus reports proximity, the live call and the lamp.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	var resp StatusResponse
	if s.cfg.Proximity != nil {
		st := s.cfg.Proximity.Status()
		resp.Proximity = &st
	}
	if s.cfg.Calls != nil {
		if sess, ok := s.cfg.Calls.Current(); ok {
			snap := sess.Snapshot()
			resp.Call = &snap
		}
		resp.LampOn = s.cfg.Calls.LampOn()
	}
	if s.cfg.Hub != nil {
		resp.FeedClients = s.cfg.Hub.ClientCount()
	}
	return c.JSON(resp)
}

// handleEvents returns the newest journal entries, oldest first.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	if limit < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must not be negative",
		})
	}
	recent := s.cfg.Journal.Recent(limit)
	if recent == nil {
		recent = []events.Event{}
	}
	return c.JSON(fiber.Map{"events": recent})
}

// handleEventsWS streams events, starting with a short backlog.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	var backlog []hub.Message
	for _, ev := range s.cfg.Journal.Recent(s.cfg.Backlog) {
		msg, err := hub.EventMessage(ev)
		if err != nil {
			continue
		}
		backlog = append(backlog, msg)
	}
	hub.NewClient(s.cfg.Hub, c, backlog...).Run()
}
