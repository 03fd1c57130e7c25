// Package web provides a local dashboard for the kiosk: live status
// over websocket, a camera preview stream, and manual screen controls.
package web

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-kiosk/internal/log"
	"github.com/teslashibe/go-kiosk/pkg/hub"
)

// KioskState is the dashboard's view of the controller.
type KioskState struct {
	PowerState       string `json:"power_state"` // on, dimmed, off
	Present          bool   `json:"present"`
	LastPresentAt    string `json:"last_present_at"`
	Brightness       int    `json:"brightness"`
	SavedBrightness  int    `json:"saved_brightness"`
	DetectionRunning bool   `json:"detection_running"`
	CurrentApp       string `json:"current_app"`
	Strategy         string `json:"off_strategy"` // last strategy used to blank
	WakeReason       string `json:"wake_reason"`
}

// Server is the dashboard HTTP/websocket server. Manual controls do
// not touch the power machine directly; they go through the callbacks,
// which post events onto the controller's queue.
type Server struct {
	app  *fiber.App
	port string

	state   KioskState
	stateMu sync.RWMutex

	statusHub *hub.Hub
	cameraHub *hub.Hub

	// OnScreenCommand handles POST /api/screen ("on" / "off").
	OnScreenCommand func(on bool) error
	// OnBrightness handles POST /api/brightness.
	OnBrightness func(level int) error
	// OnSwitchApp handles POST /api/app.
	OnSwitchApp func(app string) error
}

// NewServer creates the dashboard server listening on port.
func NewServer(port string) *Server {
	s := &Server{
		port:      port,
		statusHub: hub.New("status"),
		cameraHub: hub.New("camera"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Kiosk Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// Static files
	app.Static("/", "./web")

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/screen", s.handleScreen)
	api.Post("/brightness", s.handleBrightness)
	api.Post("/app", s.handleApp)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// Start runs the hubs and the HTTP listener. Blocks.
func (s *Server) Start() error {
	log.Info("dashboard listening", "addr", "http://localhost:"+s.port)

	go s.statusHub.Run()
	go s.cameraHub.Run()

	return s.app.Listen(":" + s.port)
}

// StartAsync runs the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("dashboard server stopped", "error", err)
		}
	}()
}

// UpdateState applies update under the lock and broadcasts the new
// snapshot to status subscribers.
func (s *Server) UpdateState(update func(*KioskState)) {
	s.stateMu.Lock()
	update(&s.state)
	state := s.state
	s.stateMu.Unlock()

	s.statusHub.BroadcastJSON(state)
}

// State returns a copy of the current dashboard state.
func (s *Server) State() KioskState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// SendCameraFrame broadcasts a JPEG preview frame to camera clients.
// Dropped when no client is connected or the queue is full.
func (s *Server) SendCameraFrame(jpegData []byte) {
	if s.cameraHub.ClientCount() == 0 {
		return
	}
	s.cameraHub.BroadcastBinary(jpegData)
}

// Shutdown stops the hubs and the HTTP listener.
func (s *Server) Shutdown() error {
	s.statusHub.Stop()
	s.cameraHub.Stop()
	return s.app.Shutdown()
}
