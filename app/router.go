package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	scoreboardhandlers "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/handlers"
	"github.com/Black-And-White-Club/quiscore/app/shared/observability/attr"
	"github.com/Black-And-White-Club/quiscore/config"
)

// CorrelationIDHeader carries a caller supplied correlation id.
const CorrelationIDHeader = "X-Correlation-ID"

// HTTPHandler builds the public HTTP surface.
func (app *App) HTTPHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlationID)
	r.Use(middleware.Recoverer)
	r.Use(scoreboardhandlers.CORSMiddleware(app.Config.HTTP.AllowedOrigins))

	r.Get("/healthz", app.handleHealth)
	r.Get("/version", handleVersion)
	if app.Config.Observability.MetricsAddress == "" {
		r.Handle("/metrics", app.Observability.MetricsHandler())
	}

	app.ScoreboardModule.RegisterRoutes(r)

	return otelhttp.NewHandler(r, "quiscore.http",
		otelhttp.WithTracerProvider(app.Observability.Provider.TracerProvider),
	)
}

// correlationID prefers the caller's correlation id over the request id.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationIDHeader)
		if id == "" {
			id = middleware.GetReqID(r.Context())
		}
		w.Header().Set(CorrelationIDHeader, id)
		next.ServeHTTP(w, r.WithContext(attr.WithCorrelationID(r.Context(), id)))
	})
}

func (app *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := app.DB.GetDB().PingContext(ctx); err != nil {
		status, code = "database unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func handleVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"version": config.Version})
}
