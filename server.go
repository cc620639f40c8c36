package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oszuidwest/drowsiguard/internal/camera"
	"github.com/oszuidwest/drowsiguard/internal/config"
	"github.com/oszuidwest/drowsiguard/internal/monitor"
	"github.com/oszuidwest/drowsiguard/internal/server"
	"github.com/oszuidwest/drowsiguard/internal/types"
)

// statusInterval is how often clients receive a status without a tick.
const statusInterval = 1 * time.Second

// Server is the HTTP server for the REST and WebSocket surfaces.
type Server struct {
	config          *config.Config
	monitor         *monitor.Monitor
	camera          *camera.Camera
	hub             *server.Hub
	commands        *server.CommandHandler
	version         *VersionChecker
	ffmpegPath      string
	ffmpegAvailable bool
}

// NewServer returns a new Server. The hub must be the one the monitor and
// sound cues publish to.
func NewServer(cfg *config.Config, mon *monitor.Monitor, cam *camera.Camera, hub *server.Hub, commands *server.CommandHandler, ffmpegPath string) *Server {
	return &Server{
		config:          cfg,
		monitor:         mon,
		camera:          cam,
		hub:             hub,
		commands:        commands,
		version:         NewVersionChecker(),
		ffmpegPath:      ffmpegPath,
		ffmpegAvailable: ffmpegPath != "",
	}
}

// handleWebSocket handles bidirectional WebSocket communication for real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Create buffered send channel for thread-safe writes.
	// Only the writer goroutine writes to the connection, preventing race conditions.
	send := make(chan any, 16)
	done := make(chan struct{})
	client := s.hub.Register()

	// Writer goroutine - sole writer to the connection
	go s.runWebSocketWriter(conn, send, done)

	// Reader goroutine - handles incoming commands
	go s.runWebSocketReader(conn, send, done)

	s.runWebSocketEventLoop(client, send, done)
}

// runWebSocketWriter writes messages from the send channel to the connection
// until the reader is done. send is never closed: async command handlers may
// still hold it after the client left.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any, done <-chan struct{}) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for {
		select {
		case msg := <-send:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, s.hub.RequestStatus)
	}
}

// runWebSocketEventLoop sends the status every second and whenever the hub
// asks for it, and forwards pushed events.
func (s *Server) runWebSocketEventLoop(client *server.Client, send chan<- any, done <-chan struct{}) {
	statusTicker := time.NewTicker(statusInterval)
	defer statusTicker.Stop()
	defer s.hub.Unregister(client)

	// forward attempts to send a message, returning false if done is closed
	forward := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Send initial status
	if !forward(s.buildWSStatus()) {
		return
	}

	for {
		var msg any
		select {
		case <-done:
			return
		case <-client.StatusRequests():
			msg = s.buildWSStatus()
		case <-statusTicker.C:
			msg = s.buildWSStatus()
		case ev := <-client.Events():
			msg = ev
		}
		if !forward(msg) {
			return
		}
	}
}

// handleFrames accepts binary JPEG frames pushed by the presentation layer.
func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("frame WebSocket upgrade failed", "error", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("frame WebSocket close error", "error", err)
		}
	}()
	conn.SetReadLimit(camera.MaxFrameBytes)

	slog.Info("frame push connected", "remote", r.RemoteAddr)
	accepted, rejected := server.ReadFrames(conn, s.camera.Push)
	slog.Info("frame push disconnected", "remote", r.RemoteAddr, "frames", accepted, "rejected", rejected)
}

// buildWSStatus returns the current WebSocket status response.
func (s *Server) buildWSStatus() types.WSStatusResponse {
	return types.WSStatusResponse{
		Type:            "status",
		FFmpegAvailable: s.ffmpegAvailable,
		Monitor:         s.monitor.Status(),
		Camera:          s.camera.Status(),
		Version:         s.version.Info(),
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := server.APIKeyAuth(s.config.APIKey)

	// Liveness stays public for supervisors.
	mux.HandleFunc("GET /api/health", s.handleHealth)

	// Settings
	mux.HandleFunc("GET /api/config", auth(s.handleAPIConfig))
	mux.HandleFunc("POST /api/settings", auth(s.handleAPISettings))
	mux.HandleFunc("POST /api/settings/api-key", auth(s.handleRotateAPIKey))

	// Monitoring
	mux.HandleFunc("POST /api/monitoring/start", auth(s.handleMonitoringStart))
	mux.HandleFunc("POST /api/monitoring/stop", auth(s.handleMonitoringStop))
	mux.HandleFunc("POST /api/monitoring/ack", auth(s.handleMonitoringAck))
	mux.HandleFunc("GET /api/monitoring/status", auth(s.handleMonitoringStatus))

	// Camera
	mux.HandleFunc("POST /api/camera/retry", auth(s.handleCameraRetry))
	mux.HandleFunc("GET /api/devices", auth(s.handleAPIDevices))
	mux.HandleFunc("POST /api/frames", auth(s.handlePushFrame))

	// Review
	mux.HandleFunc("GET /api/trips", auth(s.handleListTrips))
	mux.HandleFunc("GET /api/trips/{id}", auth(s.handleGetTrip))
	mux.HandleFunc("GET /api/events", auth(s.handleListEvents))

	// Notifications and storage
	mux.HandleFunc("POST /api/notifications/test/{channel}", auth(s.handleAPITestNotification))
	mux.HandleFunc("GET /api/notifications/log", auth(s.handleAPIViewLog))
	mux.HandleFunc("POST /api/clips/test-s3", auth(s.handleTestS3))

	// WebSocket
	mux.HandleFunc("GET /ws", auth(s.handleWebSocket))
	mux.HandleFunc("GET /ws/frames", auth(s.handleFrames))

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
