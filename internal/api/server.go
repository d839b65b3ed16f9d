// SPDX-License-Identifier: MIT

// Package api provides the HTTP surface of the cloud session core: device
// hardware events, media upload and gallery, token exchange, health, and
// the websocket endpoints.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/openglass/cloudcore/internal/api/middleware"
	"github.com/openglass/cloudcore/internal/auth"
	"github.com/openglass/cloudcore/internal/config"
	"github.com/openglass/cloudcore/internal/log"
	"github.com/openglass/cloudcore/internal/ratelimit"
	"github.com/openglass/cloudcore/internal/session"
	"github.com/openglass/cloudcore/internal/storage"
	"github.com/openglass/cloudcore/internal/store"
	"github.com/openglass/cloudcore/internal/transport"
)

// Server is the HTTP API server.
type Server struct {
	cfg      config.AppConfig
	registry *session.Registry
	store    store.Store
	gallery  store.Gallery
	objects  storage.ObjectStore
	verifier auth.Verifier
	uploads  *ratelimit.Keyed
	logger   zerolog.Logger

	glassesWS http.Handler
	tpaWS     http.Handler

	startTime time.Time
}

// Deps carries the server's collaborators.
type Deps struct {
	Registry *session.Registry
	Store    store.Store
	Gallery  store.Gallery
	Objects  storage.ObjectStore
	Verifier auth.Verifier
}

// New constructs the API server and its websocket endpoints.
func New(cfg config.AppConfig, deps Deps) *Server {
	s := &Server{
		cfg:       cfg,
		registry:  deps.Registry,
		store:     deps.Store,
		gallery:   deps.Gallery,
		objects:   deps.Objects,
		verifier:  deps.Verifier,
		uploads:   ratelimit.NewKeyed("upload", cfg.UploadRateRPS, cfg.UploadRateBurst),
		logger:    log.WithComponent("api"),
		startTime: time.Now(),
	}
	wsOpts := transport.Options{
		HighWater:    cfg.OutboundHighWater,
		PingInterval: cfg.PingInterval,
		IdleTimeout:  cfg.GlassesGrace,
	}
	s.glassesWS = &transport.GlassesEndpoint{
		Verifier: deps.Verifier,
		Attacher: deps.Registry,
		Options:  wsOpts,
	}
	s.tpaWS = &transport.TpaEndpoint{
		Verifier: deps.Verifier,
		Attacher: deps.Registry,
		Options:  wsOpts,
	}
	return s
}

// Routes builds the full router with the canonical middleware stack.
func (s *Server) Routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            true,
		AllowedOrigins:        s.cfg.AllowedOrigins,
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.tracingService(),
		EnableLogging:         true,
		EnableRateLimit:       s.cfg.RateLimitRPS > 0,
		RateLimitRPS:          s.cfg.RateLimitRPS,
		RateLimitBurst:        s.cfg.RateLimitBurst,
	})

	// Websocket endpoints handle their own handshake auth.
	r.Get("/glasses-ws", s.glassesWS.ServeHTTP)
	r.Get("/tpa-ws", s.tpaWS.ServeHTTP)

	r.Get("/health", s.handleHealth)
	r.Post("/api/auth/exchange-user-token", s.handleTokenExchange)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)
		r.Post("/api/hardware/button-press", s.handleButtonPress)
		r.Post("/api/upload-pov-photo", s.handlePhotoUpload)
		r.Get("/api/gallery", s.handleGallery)
	})

	return r
}

func (s *Server) tracingService() string {
	if !s.cfg.TracingEnabled {
		return ""
	}
	if s.cfg.TracingService != "" {
		return s.cfg.TracingService
	}
	return "cloudcore"
}
