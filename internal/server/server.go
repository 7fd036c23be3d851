// Package server exposes the submission pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"clip-drop/internal/metrics"
	"clip-drop/internal/pipeline"
	"clip-drop/internal/storage"
)

// Pipeline runs submissions. *pipeline.Coordinator implements it.
type Pipeline interface {
	Submit(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
	CompleteLink(ctx context.Context, req pipeline.LinkRequest) (pipeline.Result, error)
	AcceptsDeclaredFiles() bool
}

type Config struct {
	Addr           string // e.g. ":8080"
	Version        string
	RequestTimeout time.Duration
	TempDir        string
	MaxUploadBytes int64
	AllowedOrigins []string // defaults to any origin
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Pipeline Pipeline
	Storage  storage.Uploader
	Pending  PendingCounter // nil unless the deferred backend is active
	Metrics  *metrics.Metrics
}

type Server struct {
	cfg        Config
	coord      Pipeline
	storage    storage.Uploader
	pending    PendingCounter
	metrics    *metrics.Metrics
	httpServer *http.Server
}

func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Pipeline == nil {
		return nil, errors.New("server: pipeline is required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = storage.DefaultMaxBytes("")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Minute
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		cfg:     cfg,
		coord:   deps.Pipeline,
		storage: deps.Storage,
		pending: deps.Pending,
		metrics: deps.Metrics,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware(s.metrics))
	r.Use(recoverMiddleware)
	r.Use(securityHeadersMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         600,
	}))

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(s.cfg.RequestTimeout))

		r.Post("/upload", s.handleUpload)
		r.Options("/upload", handleOptions)
		r.Post("/submit-link", s.handleSubmitLink)
		r.Options("/submit-link", handleOptions)
		r.Get("/test", s.handleTest)
		r.Options("/test", handleOptions)
	})

	return r
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
