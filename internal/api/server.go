package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/isp-cabinet/internal/api/swagger"
	"github.com/user/isp-cabinet/internal/auth"
	"github.com/user/isp-cabinet/internal/scheduler"
	"github.com/user/isp-cabinet/internal/store"
)

// Server is the optional HTTP surface over the polling engine. The
// engine itself opens no sockets; a Server is constructed and listened
// on only by the serve command.
type Server struct {
	store store.Store
	sup   *scheduler.Supervisor
	auth  *auth.Service
	log   *slog.Logger
}

func NewServer(st store.Store, sup *scheduler.Supervisor, authSvc *auth.Service, log *slog.Logger) *Server {
	return &Server{store: st, sup: sup, auth: authSvc, log: log}
}

// Mux constructs the HTTP mux, wiring in the account endpoints,
// metrics, swagger and health endpoints.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	// Metrics endpoint.
	mux.Handle("/metrics", promhttp.Handler())

	// Health / readiness / liveness.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})

	// Accounts and providers API.
	mux.Handle("/api/accounts", s.auth.Middleware(http.HandlerFunc(s.handleAccounts)))
	mux.Handle("/api/accounts/", s.auth.Middleware(http.HandlerFunc(s.handleAccount)))
	mux.Handle("/api/providers", s.auth.Middleware(
		s.auth.RequirePermission("providers", "read", http.HandlerFunc(s.handleProviders))))

	// API documentation.
	mux.Handle("/swagger/", http.StripPrefix("/swagger", swagger.Handler()))

	return mux
}

// handleReady reports readiness; with a persistent store it requires a
// successful ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(interface{ Ping(ctx context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.log.Warn("readyz: store ping failed", "error", err)
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// allow enforces obj/act for the authenticated caller, writing the
// error response itself. Always true with auth disabled.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, obj, act string) bool {
	if !s.auth.Enabled() {
		return true
	}
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	allowed, err := s.auth.Enforce(id.Role, obj, act)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return false
	}
	if !allowed {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}
