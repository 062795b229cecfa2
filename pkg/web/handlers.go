package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/elazer/go-sunny/internal/log"
	"github.com/elazer/go-sunny/pkg/hub"
	"github.com/elazer/go-sunny/pkg/protocol"
	"github.com/elazer/go-sunny/pkg/rig"
)

// handleStatus returns the head controller's current state.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.StatusFunc == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "status not available",
		})
	}
	return c.JSON(s.StatusFunc())
}

// handleGetSettings returns the full settings document.
func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	return c.JSON(s.store.All())
}

// handlePostSettings merges the posted keys into the settings file.
func (s *Server) handlePostSettings(c *fiber.Ctx) error {
	var updates map[string]any
	if err := c.BodyParser(&updates); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid JSON body",
		})
	}

	for key, value := range updates {
		if err := s.store.Set(key, value); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	return c.JSON(s.store.All())
}

// handlePositions returns the last angle written to each axis.
func (s *Server) handlePositions(c *fiber.Ctx) error {
	if s.PositionsFunc == nil {
		return c.JSON(fiber.Map{})
	}
	return c.JSON(s.PositionsFunc())
}

// handleRigs lists the known rig configurations.
func (s *Server) handleRigs(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"rigs":    rig.Names(),
		"default": rig.DefaultName,
	})
}

// handleEventsWS streams head events (visemes, eye positions, blinks) to
// dashboard clients. Broadcast-only.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.eventsHub, c)
	client.Run()
}

// handleCameraWS streams binary JPEG preview frames. Broadcast-only.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	client := hub.NewClient(s.cameraHub, c)
	client.Run()
}

// handleControlWS reads control messages from the client and queues them for
// the head controller. A full queue drops the command rather than blocking
// the socket read loop.
func (s *Server) handleControlWS(c *websocket.Conn) {
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			break
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			log.Warn("invalid control message", "error", err)
			continue
		}
		if msg.Type != protocol.TypeControl {
			continue
		}

		var ctrl protocol.Control
		if err := msg.ParseData(&ctrl); err != nil {
			log.Warn("invalid control payload", "error", err)
			continue
		}

		select {
		case s.commands <- ctrl:
		default:
			log.Warn("control queue full, dropping command", "action", ctrl.Action)
		}
	}
}
