package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gestio-app/gestio/internal/auth"
	"github.com/gestio-app/gestio/internal/console"
	"github.com/gestio-app/gestio/internal/model"
	"github.com/gestio-app/gestio/internal/ratelimit"
	"github.com/gestio-app/gestio/internal/storage"
)

// Server is the Gestio admin console HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	DB      *storage.DB
	JWTMgr  *auth.JWTManager
	Console *console.Service
	Logger  *slog.Logger

	// AuthLimiter throttles credential exchange by client IP.
	// Nil disables auth rate limiting.
	AuthLimiter ratelimit.Limiter

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		Console:             cfg.Console,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	authRL := ratelimit.Middleware(cfg.AuthLimiter, cfg.Logger, ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Credential exchange (no auth required, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Admin console (MASTER only). Execution rate limiting is enforced
	// per principal inside the console service, not here.
	masterOnly := requireRole(model.RoleMaster)
	mux.Handle("POST /admin/exec", masterOnly(http.HandlerFunc(h.HandleExec)))
	mux.Handle("GET /admin/snippets", masterOnly(http.HandlerFunc(h.HandleListSnippets)))
	mux.Handle("POST /admin/snippets", masterOnly(http.HandlerFunc(h.HandleCreateSnippet)))
	mux.Handle("GET /admin/snippets/{id}", masterOnly(http.HandlerFunc(h.HandleGetSnippet)))
	mux.Handle("PUT /admin/snippets/{id}", masterOnly(http.HandlerFunc(h.HandleUpdateSnippet)))
	mux.Handle("DELETE /admin/snippets/{id}", masterOnly(http.HandlerFunc(h.HandleDeleteSnippet)))
	mux.Handle("GET /admin/audit-logs", masterOnly(http.HandlerFunc(h.HandleListAuditLogs)))

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
