package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/convoshare/convoshare/internal/api"
	"github.com/convoshare/convoshare/internal/auth"
	"github.com/convoshare/convoshare/internal/config"
	"github.com/convoshare/convoshare/internal/metrics"
	"github.com/convoshare/convoshare/internal/middleware"
	"github.com/convoshare/convoshare/internal/mirror"
	"github.com/convoshare/convoshare/internal/replay"
	"github.com/convoshare/convoshare/internal/resource"
	"github.com/convoshare/convoshare/internal/share"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Server wires the share service: stores, managers, and the HTTP API.
type Server struct {
	config     *config.Config
	httpServer *http.Server
	db         *sql.DB
	resources  resource.Store
	shares     share.Store
	startTime  time.Time
}

// New creates a new server from the given configuration.
func New(cfg *config.Config) (*Server, error) {
	resources, err := resource.NewBadgerStore(resource.BadgerOptions{
		DataDir: cfg.DataDir,
		Logger:  logrus.StandardLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resource store: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(cfg.DataDir, "convoshare.db"))
	if err != nil {
		resources.Close()
		return nil, fmt.Errorf("failed to open share database: %w", err)
	}

	shares, err := share.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		resources.Close()
		return nil, fmt.Errorf("failed to create share store: %w", err)
	}

	issuer := share.NewIssuer(shares, resources, cfg.PublicURL)
	resolver := share.NewResolver(shares, resources)
	mirrorMgr := mirror.NewManager(shares, resources)
	replayMgr := replay.NewManager(mirrorMgr, resources)

	authManager := auth.NewManager(cfg.Auth.JWTSecret)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	server := &Server{
		config: cfg,
		httpServer: &http.Server{
			Addr:         cfg.Listen,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		db:        db,
		resources: resources,
		shares:    shares,
		startTime: time.Now(),
	}

	server.setupRoutes(issuer, resolver, mirrorMgr, replayMgr, m, authManager, registry)

	return server, nil
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"address":  s.config.Listen,
		"data_dir": s.config.DataDir,
	}).Info("Starting share service")

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.EnableTLS {
			err = s.httpServer.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.closeStores()
		return err
	case <-ctx.Done():
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	logrus.Info("Shutting down share service")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Failed to shutdown HTTP server")
	}

	s.closeStores()
	return nil
}

func (s *Server) closeStores() {
	if err := s.db.Close(); err != nil {
		logrus.WithError(err).Error("Failed to close share database")
	}
	if err := s.resources.Close(); err != nil {
		logrus.WithError(err).Error("Failed to close resource store")
	}
}

func (s *Server) setupRoutes(issuer *share.Issuer, resolver *share.Resolver, mirrorMgr *mirror.Manager, replayMgr *replay.Manager, m *metrics.Metrics, authManager *auth.Manager, registry *prometheus.Registry) {
	router := mux.NewRouter()
	router.Use(middleware.CORS())
	router.Use(middleware.Logging())

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/ready", s.handleReady).Methods("GET")

	if s.config.Metrics.Enable {
		router.Handle(s.config.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")
	}

	// All share API routes require an authenticated principal
	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(middleware.Principal(authManager))
	api.NewHandler(issuer, resolver, mirrorMgr, replayMgr, m).RegisterRoutes(apiRouter)

	s.httpServer.Handler = handlers.RecoveryHandler()(router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
