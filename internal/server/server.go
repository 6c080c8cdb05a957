// Package server provides the HTTP API for Mitsukeru.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hyperjump/mitsukeru/internal/config"
	"github.com/hyperjump/mitsukeru/internal/indexer"
	"github.com/hyperjump/mitsukeru/internal/search"
	"github.com/hyperjump/mitsukeru/internal/storage"
	"github.com/hyperjump/mitsukeru/internal/vector"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// WatchService manages watched directories. Implemented by *watcher.Watcher.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the Mitsukeru API.
type Server struct {
	engine  *search.Engine
	indexer *indexer.Indexer
	storage storage.Storage
	files   *storage.FileStore
	store   *vector.Store
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server

	watch         WatchService   // nil when watching is disabled
	configPath    string         // where watch directory changes are persisted; empty disables
	fullConfig    *config.Config // optional; status details and watch persistence
	watchConfigMu sync.Mutex
}

// NewServer creates a server with the given dependencies. watch and fullCfg may be nil.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	storage storage.Storage,
	files *storage.FileStore,
	store *vector.Store,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	watch WatchService,
	configPath string,
	fullCfg *config.Config,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:     engine,
		indexer:    idx,
		storage:    storage,
		files:      files,
		store:      store,
		config:     cfg,
		logger:     logger,
		watch:      watch,
		configPath: configPath,
		fullConfig: fullCfg,
	}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Uploads and processing can take far longer than a query.
		r.Post("/upload", s.handleUpload)
		r.Get("/process/{video_id}", s.handleProcess)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(middleware.Compress(5))
			r.Get("/search", s.handleSearch)
			r.Get("/videos", s.handleListVideos)
			r.Get("/videos/{id}", s.handleGetVideo)
			r.Get("/videos/{id}/transcript", s.handleGetTranscript)
			r.Get("/status", s.handleStatus)
			r.Post("/index/save", s.handleSaveIndex)
			r.Get("/watch/directories", s.handleWatchDirectoriesList)
			r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
			r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
		})

		if s.files != nil {
			fs := http.StripPrefix("/api/v1/data/uploads/", http.FileServer(noListingFS{http.Dir(s.files.Dir())}))
			r.Handle("/data/uploads/*", fs)
		}
	})
	return r
}

// noListingFS serves files only; opening a directory reports it as missing.
type noListingFS struct {
	fs http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}

func (s *Server) corsOrigins() []string {
	if s.config == nil || len(s.config.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return s.config.CORSOrigins
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
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
