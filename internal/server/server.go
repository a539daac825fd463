// Package server provides the HTTP API for kizuna.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kizuna/internal/config"
	"github.com/hyperjump/kizuna/internal/fulltext"
	"github.com/hyperjump/kizuna/internal/influence"
	"github.com/hyperjump/kizuna/internal/jobs"
	"github.com/hyperjump/kizuna/internal/search"
	"github.com/hyperjump/kizuna/internal/storage"
	"github.com/hyperjump/kizuna/internal/vector"
)

// Server is the HTTP server for the kizuna API.
type Server struct {
	store        storage.Store
	engine       *search.Engine
	queue        *jobs.Queue
	orchestrator *jobs.Orchestrator
	graph        *influence.Graph
	index        *vector.Index
	text         *fulltext.NoteIndex
	config       *config.ServerConfig
	logger       *zap.Logger
	server       *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	store storage.Store,
	engine *search.Engine,
	queue *jobs.Queue,
	orchestrator *jobs.Orchestrator,
	graph *influence.Graph,
	index *vector.Index,
	text *fulltext.NoteIndex,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:        store,
		engine:       engine,
		queue:        queue,
		orchestrator: orchestrator,
		graph:        graph,
		index:        index,
		text:         text,
		config:       cfg,
		logger:       logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/search/phrase", s.handlePhraseSearch)

	r.Post("/api/v1/notes", s.handleCreateNote)
	r.Get("/api/v1/notes/{id}", s.handleGetNote)
	r.Put("/api/v1/notes/{id}", s.handleUpdateNote)
	r.Delete("/api/v1/notes/{id}", s.handleDeleteNote)
	r.Get("/api/v1/notes/{id}/relations", s.handleNoteRelations)
	r.Get("/api/v1/notes/{id}/history", s.handleNoteHistory)

	r.Get("/api/v1/jobs/{id}", s.handleGetJob)
	r.Get("/api/v1/workflows/{id}", s.handleGetWorkflow)
	r.Post("/api/v1/reconstruct", s.handleReconstruct)

	r.Get("/api/v1/influence/stats", s.handleInfluenceStats)
	r.Get("/api/v1/influence/{id}", s.handleInfluence)
	r.Get("/api/v1/influence", s.handleAllEdges)

	r.Get("/api/v1/index/stats", s.handleIndexStats)
	r.Post("/api/v1/index/rebuild", s.handleIndexRebuild)

	r.Get("/api/v1/clusters", s.handleListClusters)
	r.Post("/api/v1/clusters/rebuild", s.handleClusterRebuild)

	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
