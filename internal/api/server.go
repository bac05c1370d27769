// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the ingestion and delivery pipeline over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/skyfy/skyfy/internal/api/middleware"
	"github.com/skyfy/skyfy/internal/auth"
	"github.com/skyfy/skyfy/internal/config"
	"github.com/skyfy/skyfy/internal/log"
	"github.com/skyfy/skyfy/internal/metadata"
	"github.com/skyfy/skyfy/internal/pipeline"
)

// Writer is the write side of the pipeline.
type Writer interface {
	UploadAll(ctx context.Context, req pipeline.UploadRequest) (pipeline.UploadResult, error)
	Create(ctx context.Context, ownerID int64, name string) (metadata.ContentItem, error)
	UploadAudio(ctx context.Context, callerID, id int64, audio io.Reader, filename string) (pipeline.UploadResult, error)
	UploadCover(ctx context.Context, callerID, id int64, r io.Reader, filename string) error
	Delete(ctx context.Context, callerID, id int64) error
}

// Reader is the read side of the pipeline.
type Reader interface {
	Playlist(ctx context.Context, req pipeline.PlaylistRequest) (string, error)
	Segment(ctx context.Context, id int64, name string) (io.ReadCloser, int64, error)
	Cover(ctx context.Context, id int64) ([]byte, error)
	List(ctx context.Context) ([]metadata.ContentItem, error)
	Search(ctx context.Context, query string) ([]metadata.ContentItem, error)
	TopByContext(ctx context.Context, code, limit int) ([]metadata.RankedItem, error)
}

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// Config holds the HTTP-facing settings.
type Config struct {
	// PublicBaseURL prefixes segment and cover URLs; when empty it is derived
	// from the request as scheme://host/content.
	PublicBaseURL   string
	MaxUploadBytes  int64
	UploadRateLimit int
	// TracingService names the otelhttp server spans; empty disables them.
	TracingService string
}

// FromAppConfig extracts the API settings.
func FromAppConfig(cfg config.AppConfig) Config {
	c := Config{
		PublicBaseURL:   cfg.Server.PublicBaseURL,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		UploadRateLimit: cfg.Server.UploadRateLimit,
	}
	if cfg.Telemetry.Enabled {
		c.TracingService = cfg.LogService
	}
	return c
}

// Deps are the collaborators behind the handlers.
type Deps struct {
	Writer   Writer
	Reader   Reader
	Resolver *auth.Resolver
	Health   HealthChecker
}

// Server routes HTTP requests to the pipeline.
type Server struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
	router chi.Router
}

// New builds the server and its routes.
func New(cfg Config, deps Deps) *Server {
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = config.DefaultMaxUploadBytes
	}
	if deps.Resolver == nil {
		deps.Resolver = auth.NewResolver(nil)
	}
	s := &Server{cfg: cfg, deps: deps, logger: log.WithComponent("api")}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		EnableLogging:         true,
		TracingService:        s.cfg.TracingService,
	})
	uploadLimit := middleware.UploadRateLimit(s.cfg.UploadRateLimit)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/content", func(r chi.Router) {
		r.Get("/all", s.handleList)
		r.Get("/search/{name}", s.handleSearch)
		r.Get("/weather/{code}/{limit}", s.handleTopByContext)
		r.With(s.requireAuth).Post("/", s.handleCreate)
		r.With(s.requireAuth, uploadLimit).Post("/upload/all", s.handleUploadAll)

		r.Route("/{id}", func(r chi.Router) {
			r.With(s.requireAuth, uploadLimit).Put("/upload", s.handleUploadAudio)
			r.With(s.requireAuth, uploadLimit).Put("/upload/cover", s.handleUploadCover)
			r.With(s.requireAuth).Delete("/", s.handleDelete)
			r.With(s.optionalAuth).Get("/playlist.m3u8", s.handlePlaylist)
			r.Get("/hls/{segment}", s.handleSegment)
			r.Get("/Cover", s.handleCover)
		})
	})
	return r
}

// baseURL is the prefix used for segment and cover links.
func (s *Server) baseURL(r *http.Request) string {
	if s.cfg.PublicBaseURL != "" {
		return s.cfg.PublicBaseURL
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/content"
}
