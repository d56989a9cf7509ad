package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Chat execution
	r.Post("/chat", s.chat)
	r.Post("/chat/stream", s.chatStream)

	// Session inspection
	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Get("/active", s.activeSessions)
		r.Get("/stats", s.sessionStats)
		r.Get("/export", s.exportSessions)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Get("/health", s.sessionHealth)
			r.Get("/validate", s.validateSession)
		})
	})

	// Backup management
	r.Route("/backup", func(r chi.Router) {
		r.Get("/", s.listBackups)
		r.Post("/", s.runBackup)
		r.Post("/restore", s.restoreBackup)
	})

	// Event streaming (SSE)
	r.Get("/event", s.allEvents)

	// Liveness
	r.Get("/health", s.health)
}
