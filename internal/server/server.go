// Package server exposes the retrieval pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mkoblar/machdoc/internal/metastore"
	"github.com/mkoblar/machdoc/internal/query"
	"github.com/mkoblar/machdoc/internal/vectorindex"
)

// Config holds server configuration.
type Config struct {
	Port     int
	ImageDir string // base directory for extracted image files
	AllowAll bool   // allow all CORS origins (dev mode)
}

// Server serves queries and content lookups over HTTP.
type Server struct {
	cfg          Config
	store        *metastore.Store
	index        *vectorindex.Index
	orchestrator *query.Orchestrator
	router       chi.Router
	httpServer   *http.Server
}

// New creates a server wiring the retrieval components into routes.
func New(cfg Config, store *metastore.Store, index *vectorindex.Index, orchestrator *query.Orchestrator) *Server {
	s := &Server{
		cfg:          cfg,
		store:        store,
		index:        index,
		orchestrator: orchestrator,
	}
	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", s.handleHealth)
	r.Post("/query", s.handleQuery)
	r.Get("/content_unit/{unitID}", s.handleContentUnit)
	r.Get("/pdf_section/{unitID}", s.handlePDFSection)
	r.Get("/image/{imageID}", s.handleImage)
	r.Get("/documents", s.handleDocuments)

	return r
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("machdoc server listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
