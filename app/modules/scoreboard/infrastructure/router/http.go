package scoreboardrouter

import (
	"github.com/go-chi/chi/v5"

	scoreboardhandlers "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/handlers"
)

// RegisterRoutes mounts the scoreboard HTTP API on r. Batch and admin routes
// go through limiter; the read and stream routes are served from the cache
// and stay unlimited.
func RegisterRoutes(r chi.Router, h scoreboardhandlers.Handlers, limiter *scoreboardhandlers.IPRateLimiter) {
	r.Route("/api/events/{eventID}/scoreboard", func(r chi.Router) {
		r.Get("/", h.HandleGetScoreboard)
		r.Get("/stream", h.HandleStream)
		r.Get("/chart.png", h.HandleChart)
		r.Get("/export.xlsx", h.HandleExport)
	})

	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(scoreboardhandlers.RateLimitMiddleware(limiter))
		}
		r.Post("/api/scoreboards/batch", h.HandleBatch)
		r.Get("/api/admin/scoreboard/stats", h.HandleStats)
	})
}
