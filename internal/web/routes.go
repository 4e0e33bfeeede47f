package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes(loc *time.Location) {
	attendanceHandler := handlers.NewAttendanceHandler(s.services.Attendance, loc)
	subjectsHandler := handlers.NewSubjectsHandler(s.services.Subjects)
	evidenceHandler := handlers.NewEvidenceHandler(s.services.Evidence)

	// Health check and metrics (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck(s.services.Ready))
	if s.services.Gatherer != nil {
		s.router.Handle("/api/v1/metrics", promhttp.HandlerFor(s.services.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		// Attendance
		r.Post("/attendance/check-in", attendanceHandler.CheckIn)
		r.Post("/attendance/identify", attendanceHandler.Identify)
		r.Get("/attendance/history/{subjectId}", attendanceHandler.History)
		r.Get("/attendance/events", attendanceHandler.Events)
		r.Get("/attendance/today", attendanceHandler.Today)

		// Subjects
		r.Get("/subjects", subjectsHandler.List)
		r.Get("/subjects/{id}", subjectsHandler.Get)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAPIToken(s.config.Web.APIToken))
			r.Post("/subjects", subjectsHandler.Enroll)
			r.Delete("/subjects/{id}", subjectsHandler.Deactivate)
		})

		// Evidence
		r.Get("/evidence/{ref}", evidenceHandler.Get)
	})
}
