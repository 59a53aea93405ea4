// Package server implements the HTTP transport layer for the
// authentication protocol (component C5, spec.md 4.5): GET /auth,
// POST /auth, and the X-Auth filter on protected routes.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go.opentelemetry.io/otel/trace"

	warden "github.com/eugener/warden/internal"
	"github.com/eugener/warden/internal/authproto"
	"github.com/eugener/warden/internal/ratelimit"
	"github.com/eugener/warden/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Proto          *authproto.Protocol
	AuthPrefix     string              // mount point for GET/POST /auth; defaults to "/auth"
	LoginThrottle  *ratelimit.LoginThrottle // nil = no brute-force throttling on POST /auth
	Metrics        *telemetry.Metrics  // nil = no Prometheus metrics
	MetricsHandler http.Handler        // nil = no /metrics endpoint
	Tracer         trace.Tracer        // nil = no distributed tracing
	ReadyCheck     ReadyChecker        // nil = always ready (for tests)
	// Anonymous, if set, is handed to protected routes when a request
	// carries no X-Auth header, instead of rejecting with MissingAuth.
	Anonymous *warden.Subject
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	if deps.AuthPrefix == "" {
		deps.AuthPrefix = "/auth"
	}
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.securityHeaders)
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}
	if deps.Tracer != nil {
		r.Use(tracingMiddleware(deps.Tracer))
	}

	// System endpoints (no auth)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// Authentication protocol endpoints (spec.md 4.5.1-4.5.2)
	r.Get(deps.AuthPrefix, s.handleServerInfo)
	r.Post(deps.AuthPrefix, s.handleLogin)

	// Example protected route group (spec.md 4.5.3's X-Auth filter,
	// applied to a demonstration endpoint rather than a fixed API).
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/whoami", s.handleWhoami)
		r.With(s.requirePerm(warden.PermManageUsers)).Get("/admin/ping", s.handleAdminPing)
	})

	return r
}

type server struct {
	deps Deps
}

func (s *server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	subject := warden.SubjectFromContext(r.Context())
	if subject == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}
	writeJSON(w, http.StatusOK, whoamiResponse{
		UserID: subject.User.UserID,
		Name:   subject.User.Name,
	})
}

type whoamiResponse struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

func (s *server) handleAdminPing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
