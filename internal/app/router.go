// Package app wires application components and startup helpers.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/ai-cv-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-cv-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-cv-evaluator/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{"*"}
	}
	if s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler for the Query API (component I)
// plus the Push Gateway's WebSocket upgrade endpoint and the Prometheus
// scrape endpoint.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Group(func(rr chi.Router) {
		// Timeout and rate limiting apply only to the bounded request/response
		// API endpoints, never to the long-lived WebSocket upgrade below.
		rr.Use(httpserver.TimeoutMiddleware(30 * time.Second))
		rr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		rr.Get("/api/health", srv.HealthHandler())
		rr.Get("/api/posts", srv.PostsHandler())
		rr.Get("/api/sentiment/aggregate", srv.AggregateHandler())
		rr.Get("/api/sentiment/distribution", srv.DistributionHandler())
	})

	r.Get("/ws/sentiment", srv.WebSocketHandler())

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return httpserver.SecurityHeaders(r)
}
