package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetvrp/internal/auth"
	"fleetvrp/internal/config"
	"fleetvrp/internal/events"
	"fleetvrp/internal/metrics"
	"fleetvrp/internal/planner"
	"fleetvrp/internal/store"
)

type Server struct {
	Store   store.Store
	Planner *planner.Planner
	Auth    *auth.Verifier
	Broker  events.EventBroker
	Config  config.Config

	limiter *tenantLimiter
}

// pinger is implemented by brokers that have a backing service to ping.
type pinger interface {
	Ping(ctx context.Context) error
}

func NewServer(cfg config.Config, st store.Store, br events.EventBroker, pl *planner.Planner) *Server {
	return &Server{
		Store:   st,
		Planner: pl,
		Auth:    auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret, cfg.Auth.JWKSURL),
		Broker:  br,
		Config:  cfg,
		limiter: newTenantLimiter(cfg.Server.RateRPS, cfg.Server.RateBurst),
	}
}

// Routes wires every handler behind the logging, metrics and rate limiting
// middleware.
func (s *Server) Routes() http.Handler {
	metrics.RegisterDefault()
	mux := http.NewServeMux()

	// Solves
	mux.HandleFunc("/v1/solves", s.SolvesHandler)
	mux.HandleFunc("/v1/solves/", s.SolveByIDHandler) // includes /report.svg, /report.txt, /callbacks, /stream, /events
	mux.HandleFunc("/v1/solver/config", s.SolverConfigHandler)

	// Health
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)

	// Docs and ops
	mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("/docs", s.DocsHandler)
	mux.HandleFunc("/swagger", s.SwaggerHandler)
	mux.HandleFunc("/debug/info", s.DebugJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return logMiddleware(metricsMiddleware(s.rateLimit(mux)))
}
