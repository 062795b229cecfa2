// Package web serves the control dashboard: REST endpoints for settings and
// servo positions plus websocket feeds for head events, camera preview, and
// inbound control commands.
package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/elazer/go-sunny/internal/log"
	"github.com/elazer/go-sunny/pkg/hub"
	"github.com/elazer/go-sunny/pkg/protocol"
	"github.com/elazer/go-sunny/pkg/servo"
	"github.com/elazer/go-sunny/pkg/settings"
)

// Status is the snapshot returned by GET /api/status.
type Status struct {
	SessionActive   bool    `json:"session_active"`
	TrackingActive  bool    `json:"tracking_active"`
	Speaking        bool    `json:"speaking"`
	Simulated       bool    `json:"simulated"`
	Rig             string  `json:"rig"`
	JawOpening      float64 `json:"jaw_opening"`
	EventClients    int     `json:"event_clients"`
	CameraClients   int     `json:"camera_clients"`
	LastUserText    string  `json:"last_user_text,omitempty"`
	LastSpokenText  string  `json:"last_spoken_text,omitempty"`
}

// Server is the dashboard server. State queries are delegated to callbacks
// so the server has no dependency on the head controller package.
type Server struct {
	app  *fiber.App
	port string

	store *settings.Store

	eventsHub *hub.Hub
	cameraHub *hub.Hub

	// commands receives parsed control messages from /ws/control clients.
	// The head controller drains it on its own schedule.
	commands chan protocol.Control

	// StatusFunc supplies the current head status. Required before Start.
	StatusFunc func() Status

	// PositionsFunc supplies the arbiter's last-written positions.
	PositionsFunc func() map[string]servo.Position
}

// NewServer creates the dashboard server.
func NewServer(port string, store *settings.Store) *Server {
	s := &Server{
		port:      port,
		store:     store,
		eventsHub: hub.New("events"),
		cameraHub: hub.New("camera"),
		commands:  make(chan protocol.Control, 64),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Sunny Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// Static files
	app.Static("/", "./web")

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/settings", s.handleGetSettings)
	api.Post("/settings", s.handlePostSettings)
	api.Get("/positions", s.handlePositions)
	api.Get("/rigs", s.handleRigs)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/control", websocket.New(s.handleControlWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// Start runs the hubs and listens. Blocks until the server shuts down.
func (s *Server) Start() error {
	log.Info("dashboard listening", "addr", "http://localhost:"+s.port)

	go s.eventsHub.Run()
	go s.cameraHub.Run()

	return s.app.Listen(":" + s.port)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("web server error", "error", err)
		}
	}()
}

// Commands returns the channel of inbound control messages.
func (s *Server) Commands() <-chan protocol.Control {
	return s.commands
}

// BroadcastEvent sends a protocol message to all event clients.
func (s *Server) BroadcastEvent(msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		log.Warn("failed to encode event", "type", msg.Type, "error", err)
		return
	}
	s.eventsHub.Broadcast(hub.NewJSONMessage(data))
}

// SendCameraFrame broadcasts a JPEG frame to camera preview clients.
func (s *Server) SendCameraFrame(jpegData []byte) {
	s.cameraHub.BroadcastBinary(jpegData)
}

// EventClientCount returns the number of connected event clients.
func (s *Server) EventClientCount() int {
	return s.eventsHub.ClientCount()
}

// CameraClientCount returns the number of connected camera clients.
func (s *Server) CameraClientCount() int {
	return s.cameraHub.ClientCount()
}

// Shutdown gracefully stops the web server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
