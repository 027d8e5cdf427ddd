package handlers

import "github.com/go-chi/chi/v5"

// Mount registers /health and the /api/v1 routes on r.
func Mount(r chi.Router) {
	r.Get("/health", HealthCheck)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/targets", ListTargets)
		r.Get("/targets/{id}", GetTarget)

		r.Post("/sessions", CreateSession)
		r.Get("/sessions", ListSessions)
		r.Get("/sessions/history", ListSessionHistory)
		r.Get("/sessions/{sessionId}", GetSession)
		r.Delete("/sessions/{sessionId}", CloseSession)
		r.Post("/sessions/{sessionId}/input", SendInput)
		r.Post("/sessions/{sessionId}/ping", PingSession)
		r.Get("/sessions/{sessionId}/stream", SessionStream)
		r.Get("/sessions/{sessionId}/recording", GetSessionRecording)

		r.Get("/server-logs", GetServerLogs)
		r.Delete("/server-logs", ClearServerLogs)
	})
}
