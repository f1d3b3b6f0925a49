package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-oakd/pkg/frame"
	"github.com/teslashibe/go-oakd/pkg/hub"
)

// handleStatus returns the pipeline status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.GetStatus())
}

// handleStreams lists the viewer streams
func (s *Server) handleStreams(c *fiber.Ctx) error {
	return c.JSON(s.StreamInfos())
}

// checkStream rejects unknown stream names before the upgrade.
func (s *Server) checkStream(c *fiber.Ctx) error {
	st, err := frame.ParseStream(c.Params("name"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	c.Locals("stream", st)
	return c.Next()
}

// handleStreamWS attaches a viewer to one stream
func (s *Server) handleStreamWS(c *websocket.Conn) {
	st, ok := c.Locals("stream").(frame.Stream)
	if !ok {
		return
	}
	hub.NewClient(s.streams[st].hub, c).Run()
}

// handleStatusWS sends the current status, then every update
func (s *Server) handleStatusWS(c *websocket.Conn) {
	client := hub.NewClient(s.statusHub, c)

	s.stateMu.RLock()
	state := s.state
	s.stateMu.RUnlock()
	s.statusHub.BroadcastJSON(state)

	client.Run()
}

// handleGetSettings returns the viewer settings
func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	return c.JSON(s.settings.Get())
}

// handleUpdateSettings applies a partial settings update
func (s *Server) handleUpdateSettings(c *fiber.Ctx) error {
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	if err := s.settings.Update(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.settings.Get())
}
