package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Liveness and status
	mux.HandleFunc("/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)

	// Mirrored node store (read-only)
	mux.HandleFunc("/api/nodes", s.app.NodeHandler.ListHandler) // GET ?pattern=
	mux.HandleFunc("/api/nodes/", s.app.NodeHandler.GetHandler) // GET /{path}

	// Station control points
	mux.HandleFunc("/api/controls", s.app.ControlHandler.WriteHandler) // POST {path, value}

	return mux
}
