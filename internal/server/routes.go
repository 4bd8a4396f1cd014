package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (realtime notifier)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - format jobs
	mux.HandleFunc("/api/consultations/", s.handleConsultationRoutes) // POST /{id}/format-jobs
	mux.HandleFunc("/api/format-jobs/", s.handleFormatJobRoutes)      // GET /{id}

	// API routes - system
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	return mux
}

// handleConsultationRoutes routes /api/consultations/{id}/format-jobs
func (s *Server) handleConsultationRoutes(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/format-jobs") {
		http.NotFound(w, r)
		return
	}
	RouteByMethod(w, r, MethodRouter{
		"POST": s.app.JobHandler.CreateJobHandler,
	})
}

// handleFormatJobRoutes routes /api/format-jobs/{id}
func (s *Server) handleFormatJobRoutes(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET": s.app.JobHandler.GetJobHandler,
	})
}
