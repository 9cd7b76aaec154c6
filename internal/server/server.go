// Package server exposes the safety pipeline over HTTP: analysis, policy
// evaluation, constitutional revision, streaming, and policy listing.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/openvault-ai/openvault/internal/analyzer"
	"github.com/openvault-ai/openvault/internal/audit"
	"github.com/openvault-ai/openvault/internal/auth"
	"github.com/openvault-ai/openvault/internal/config"
	"github.com/openvault-ai/openvault/internal/constitutional"
	"github.com/openvault-ai/openvault/internal/policy"
	"github.com/openvault-ai/openvault/internal/redact"
	"github.com/openvault-ai/openvault/internal/telemetry"
)

// Server wires the HTTP surface over the assembled pipeline components.
type Server struct {
	router *mux.Router
	cfg    *config.Config
	auth   *auth.Auth

	analyzer *analyzer.SafetyAnalyzer
	engine   *policy.Engine
	policies *policy.Store
	reviser  *constitutional.Reviser
	audit    *audit.Emitter
	tel      *telemetry.Provider

	backendMode string // "native" or "fallback"
}

// Options collects the components a Server needs. All fields except Auth and
// Audit are required.
type Options struct {
	Config      *config.Config
	Auth        *auth.Auth
	Analyzer    *analyzer.SafetyAnalyzer
	Policies    *policy.Store
	Reviser     *constitutional.Reviser
	Audit       *audit.Emitter
	Telemetry   *telemetry.Provider
	BackendMode string
}

// New creates a server with all routes registered.
func New(opts Options) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		cfg:         opts.Config,
		auth:        opts.Auth,
		analyzer:    opts.Analyzer,
		engine:      policy.NewEngine(opts.Analyzer),
		policies:    opts.Policies,
		reviser:     opts.Reviser,
		audit:       opts.Audit,
		tel:         opts.Telemetry,
		backendMode: opts.BackendMode,
	}
	if s.policies == nil {
		s.policies = policy.Empty()
	}
	if s.reviser == nil {
		s.reviser = constitutional.NewReviser()
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware, s.limitMiddleware)
	api.HandleFunc("/safety/analyze", s.handleAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/safety/analyze/batch", s.handleAnalyzeBatch).Methods(http.MethodPost)
	api.HandleFunc("/safety/stream", s.handleStream).Methods(http.MethodPost)
	api.HandleFunc("/interpretability", s.handleInterpretability).Methods(http.MethodPost)
	api.HandleFunc("/safety/constitutional", s.handleConstitutional).Methods(http.MethodPost)
	api.HandleFunc("/policies", s.handlePolicies).Methods(http.MethodGet)
	api.HandleFunc("/audit/metrics", s.handleAuditMetrics).Methods(http.MethodGet)

	return s
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-OpenVault-Key"},
	})
	return c.Handler(s.router)
}

// Start runs the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	redact.Logf("OpenVault listening on %s", addr)
	return srv.ListenAndServe()
}

// authMiddleware resolves the calling project when security is enabled.
// Credentials come from X-OpenVault-Key or Authorization: Bearer.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg == nil || !s.cfg.Security.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		key := strings.TrimSpace(r.Header.Get("X-OpenVault-Key"))
		if key == "" {
			key, _ = parseBearerToken(r.Header.Get("Authorization"))
		}
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing API key", "authentication_error")
			return
		}

		project, ok := s.auth.Lookup(key)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid API key", "authentication_error")
			return
		}

		next.ServeHTTP(w, r.WithContext(withProject(r.Context(), project.ID)))
	})
}

// limitMiddleware bounds request bodies so oversized texts fail fast.
func (s *Server) limitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		maxBytes := int64(1 << 20)
		if s.cfg != nil && s.cfg.Limits.MaxTextBytes > 0 {
			maxBytes = int64(s.cfg.Limits.MaxTextBytes)
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auditLevel() string {
	if s.cfg == nil {
		return "metadata"
	}
	return s.cfg.Logging.AuditLevel
}

// parseBearerToken extracts the token from an Authorization: Bearer header.
func parseBearerToken(h string) (string, bool) {
	parts := strings.Fields(h)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
