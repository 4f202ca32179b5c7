package httpserver

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/iago/socialdesk-back/internal/http/handlers"
	"github.com/iago/socialdesk-back/internal/http/middleware"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         *log.Logger
	JWTSecret      string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter builds the HTTP surface. ctx bounds background work owned by
// the middleware stack.
func NewRouter(ctx context.Context, deps RouterDependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Trace(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: deps.CORSOrigins}))
	r.Use(middleware.RateLimit(ctx, deps.RateLimitRPS, deps.RateLimitBurst))

	r.NotFound(deps.API.NotFound)
	r.MethodNotAllowed(deps.API.MethodNotAllowed)

	r.Get("/healthz", deps.API.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(deps.JWTSecret))

		r.Route("/messages", func(r chi.Router) {
			r.Post("/bulk-process", deps.API.BulkProcess)
			r.Post("/ai/analyze", deps.API.Analyze)
			r.Post("/ai/auto-reply", deps.API.AutoReply)
		})

		r.Route("/analytics/reports", func(r chi.Router) {
			r.Post("/", deps.API.GenerateReport)
			r.Get("/download", deps.API.DownloadReport)
			r.Get("/scheduled", deps.API.ListSchedules)
			r.Post("/scheduled", deps.API.CreateSchedule)
			r.Put("/scheduled", deps.API.UpdateSchedule)
			r.Delete("/scheduled", deps.API.DeleteSchedule)
			r.Get("/runs", deps.API.ListRuns)
			r.Get("/runs/{runID}/artifact", deps.API.DownloadRunArtifact)
		})
	})

	return r
}
