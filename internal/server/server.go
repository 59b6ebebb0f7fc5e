// Package server is the reference implementation of the skill API. Clients
// treat it as the authority on progress: every submission is re-checked
// against the tree before it is stored.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/config"
	"github.com/xkilldash9x/skilltree/internal/skillgraph"
)

// Server hosts the API over HTTP.
type Server struct {
	cfg      config.ServerConfig
	logger   *zap.Logger
	handlers *Handlers
	auth     *Authenticator
	router   chi.Router
	tls      *tls.Config
}

// New wires the router. graph must already be validated.
func New(graph *skillgraph.Graph, repo schemas.PlayerProgressRepository, cfg config.ServerConfig, authCfg config.AuthConfig, logger *zap.Logger) (*Server, error) {
	if graph == nil {
		return nil, errors.New("server: a loaded skill graph is required")
	}
	if repo == nil {
		return nil, errors.New("server: a progress repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("server")

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: NewHandlers(logger, graph, repo, cfg),
		auth:     NewAuthenticator(authCfg),
	}
	s.router = s.routes()
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Authenticator returns the token verifier in use.
func (s *Server) Authenticator() *Authenticator { return s.auth }

// UseTLS makes Serve terminate TLS with the given certificate.
func (s *Server) UseTLS(cert tls.Certificate) {
	s.tls = &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}
	r.Use(corsMiddleware)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handlers.HandleHealthCheck)
	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware(s.handlers.respondWithError))
		s.handlers.RegisterRoutes(r)
	})
	return r
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	if s.tls != nil {
		l = tls.NewListener(l, s.tls)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Skill API listening.", zap.String("address", l.Addr().String()), zap.Bool("tls", s.tls != nil))
		errCh <- httpServer.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down skill API.")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	<-errCh
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, l)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request served.",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

// corsMiddleware lets the browser client call the API from another origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Player-ID, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
