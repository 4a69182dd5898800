// Package api provides the boundary HTTP server the shell talks to:
// session catalog, import jobs, analytics, the SQL lab, and schema
// introspection.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/chatlab/chatlab/internal/catalog"
	"github.com/chatlab/chatlab/internal/config"
	"github.com/chatlab/chatlab/internal/importer"
	"github.com/chatlab/chatlab/internal/store"
	"github.com/chatlab/chatlab/internal/worker"
)

// Server is the boundary HTTP server.
type Server struct {
	cfg    *config.Config
	st     *store.Store
	cat    *catalog.Catalog
	pool   *worker.Pool
	coord  *importer.Coordinator
	loc    *time.Location
	logger *slog.Logger
	router chi.Router
	server *http.Server

	nextJobID func() string
}

// NewServer wires the boundary over the core components. loc is the
// timezone used for analytics day bucketization and import wall-clock
// interpretation.
func NewServer(cfg *config.Config, st *store.Store, pool *worker.Pool, loc *time.Location, logger *slog.Logger) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		cfg:       cfg,
		st:        st,
		cat:       catalog.New(st),
		pool:      pool,
		coord:     importer.New(st, logger),
		loc:       loc,
		logger:    logger,
		nextJobID: jobIDSequence(),
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(120 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/stats", s.handleStats)
		r.Get("/migrations/pending", s.handlePendingMigrations)

		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions/{corpusID}/select", s.handleSelectSession)
		r.Delete("/sessions/{corpusID}", s.handleDeleteSession)
		r.Put("/sessions/{corpusID}/owner", s.handleSetOwner)

		r.Post("/import", s.handleImportStart)
		r.Get("/jobs/{jobID}", s.handleJobStatus)
		r.Post("/jobs/{jobID}/cancel", s.handleJobCancel)

		r.Get("/schema/{corpusID}", s.handleSchema)
		r.Post("/sql/{corpusID}", s.handleSQL)

		r.Route("/analytics/{corpusID}", func(r chi.Router) {
			r.Get("/activity", s.handleActivity)
			r.Get("/name-history/{memberID}", s.handleNameHistory)
			r.Get("/dragon-king", s.handleDragonKing)
			r.Get("/streaks", s.handleStreaks)
			r.Get("/repeat-chains", s.handleRepeatChains)
			r.Get("/catchphrases", s.handleCatchphrases)
			r.Get("/sessions", s.handleSessionBursts)
		})
	})

	return r
}

// Start begins listening for HTTP requests on the loopback interface.
func (s *Server) Start() error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(s.cfg.Server.APIPort))

	if s.cfg.Server.APIKey == "" {
		s.logger.Warn("API server running without authentication — set [server] api_key in config.toml")
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// loggerMiddleware logs HTTP requests.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware validates the API key when one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			authHeader = r.Header.Get("X-API-Key")
		}
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			authHeader = authHeader[7:]
		}

		if subtle.ConstantTimeCompare([]byte(authHeader), []byte(s.cfg.Server.APIKey)) != 1 {
			s.logger.Warn("unauthorized API request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
