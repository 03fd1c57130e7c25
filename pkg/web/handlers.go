package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-kiosk/pkg/hub"
)

// handleStatus returns the current kiosk state.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return c.JSON(s.state)
}

// ScreenRequest is the body for POST /api/screen.
type ScreenRequest struct {
	State string `json:"state"` // "on" or "off"
}

func (s *Server) handleScreen(c *fiber.Ctx) error {
	var req ScreenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid body",
		})
	}
	if req.State != "on" && req.State != "off" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "state must be \"on\" or \"off\"",
		})
	}
	if s.OnScreenCommand == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "screen control not configured",
		})
	}
	if err := s.OnScreenCommand(req.State == "on"); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"state": req.State})
}

// BrightnessRequest is the body for POST /api/brightness.
type BrightnessRequest struct {
	Level int `json:"level"` // 0-100
}

func (s *Server) handleBrightness(c *fiber.Ctx) error {
	var req BrightnessRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid body",
		})
	}
	if s.OnBrightness == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "brightness control not configured",
		})
	}
	if err := s.OnBrightness(req.Level); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"level": req.Level})
}

// AppRequest is the body for POST /api/app.
type AppRequest struct {
	App string `json:"app"`
}

func (s *Server) handleApp(c *fiber.Ctx) error {
	var req AppRequest
	if err := c.BodyParser(&req); err != nil || req.App == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "app name required",
		})
	}
	if s.OnSwitchApp == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "app switching not configured",
		})
	}
	if err := s.OnSwitchApp(req.App); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"app": req.App})
}

// handleStatusWS streams state snapshots. The current state is sent on
// connect so clients render immediately.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	s.stateMu.RLock()
	c.WriteJSON(s.state)
	s.stateMu.RUnlock()

	client := hub.NewClient(s.statusHub, c)
	client.Run() // blocks until disconnect
}

// handleCameraWS streams JPEG preview frames.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	client := hub.NewClient(s.cameraHub, c)
	client.Run()
}
