// SPDX-License-Identifier: MIT

// Package middleware provides the canonical HTTP ingress middleware stack.
package middleware

import (
	"github.com/go-chi/chi/v5"
)

// StackConfig configures the canonical middleware stack. The API server and
// the metrics server share it to prevent drift in cross-cutting concerns.
type StackConfig struct {
	// CORS
	EnableCORS     bool
	AllowedOrigins []string

	// Security headers
	EnableSecurityHeaders bool

	// Observability
	EnableMetrics  bool
	TracingService string // empty disables tracing
	EnableLogging  bool

	// Rate limiting
	EnableRateLimit bool
	RateLimitRPS    int
	RateLimitBurst  int
}

// NewRouter constructs a chi router with the canonical stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r, outermost first.
func ApplyStack(r chi.Router, cfg StackConfig) {
	// Recoverer is the outermost safety net.
	r.Use(Recoverer)
	// RequestID before anything that logs.
	r.Use(RequestID)
	if cfg.EnableCORS {
		r.Use(CORS(cfg.AllowedOrigins))
	}
	if cfg.EnableSecurityHeaders {
		r.Use(SecurityHeaders)
	}
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	if cfg.TracingService != "" {
		r.Use(Tracing(cfg.TracingService))
	}
	if cfg.EnableLogging {
		r.Use(AccessLog)
	}
	if cfg.EnableRateLimit {
		r.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
}
