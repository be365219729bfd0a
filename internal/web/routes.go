package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-registry/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	recordsHandler := handlers.NewRecordsHandler(s.store, s.index)
	enrollHandler := handlers.NewEnrollHandler(s.pipeline, s.engine)
	matchHandler := handlers.NewMatchHandler(s.store, s.engine, s.pipeline)
	sweepHandler := handlers.NewSweepHandler(s.engine, s.jobManager)
	statsHandler := handlers.NewStatsHandler(s.store, s.index)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Enrollment
		r.Post("/enroll", enrollHandler.Enroll)
		r.Post("/records", enrollHandler.Register)

		// Records
		r.Get("/records", recordsHandler.List)
		r.Get("/records/{code}", recordsHandler.Get)
		r.Delete("/records/{code}", recordsHandler.Delete)
		r.Post("/records/{code}/archive", recordsHandler.Archive)
		r.Post("/records/{code}/resolve", recordsHandler.Resolve)
		r.Get("/records/{code}/matches", recordsHandler.Matches)
		r.Get("/records/{code}/matched-by", recordsHandler.MatchedBy)
		r.Post("/records/{code}/recompute", matchHandler.Recompute)
		r.Get("/identities", recordsHandler.FindByName)

		// Matching
		r.Post("/match", matchHandler.Probe)
		r.Post("/match/duplicate", matchHandler.CheckDuplicate)

		// Sweeps (long-running operations)
		r.Post("/sweep", sweepHandler.Start)
		r.Get("/sweep", sweepHandler.List)
		r.Get("/sweep/{jobId}", sweepHandler.Status)

		// Stats
		r.Get("/stats", statsHandler.Get)
	})
}
