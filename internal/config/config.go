// SPDX-License-Identifier: MIT

// Package config loads and validates the daemon configuration with
// precedence ENV > YAML file > defaults.
package config

import (
	"fmt"
	"time"
)

// AppConfig is the full daemon configuration.
type AppConfig struct {
	// Server
	ListenAddr  string `yaml:"listen_addr"`  // HTTP API + websocket endpoints
	MetricsAddr string `yaml:"metrics_addr"` // Prometheus scrape endpoint; empty disables
	LogLevel    string `yaml:"log_level"`
	LogService  string `yaml:"log_service"`
	Version     string `yaml:"-"`

	// Display arbitration
	DisplayThrottle time.Duration `yaml:"display_throttle"`  // min interval between MAIN emissions per TPA
	BootDuration    time.Duration `yaml:"boot_duration"`     // per-TPA boot window
	BootQueueCap    int           `yaml:"boot_queue_cap"`    // queued requests per booting app, drop-oldest
	DashboardTick   time.Duration `yaml:"dashboard_tick"`    // dashboard recomposition period

	// Session lifecycle
	GlassesGrace   time.Duration `yaml:"glasses_grace"`    // retain session after glasses disconnect
	TpaIdleTimeout time.Duration `yaml:"tpa_idle_timeout"` // heartbeat-less TPA link close
	PingInterval   time.Duration `yaml:"ping_interval"`    // server keepalive ping period

	// Audio buffering
	AudioLiveCap time.Duration `yaml:"audio_live_cap"` // live queue depth
	AudioSlide   time.Duration `yaml:"audio_slide"`    // sliding reconnect buffer depth
	FrameMs      time.Duration `yaml:"frame_ms"`       // nominal frame duration

	// Media flow
	PhotoExpire     time.Duration `yaml:"photo_expire"`      // PhotoRequest TTL
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`  // multipart upload cap
	MediaDir        string        `yaml:"media_dir"`         // filesystem object store root
	MediaBaseURL    string        `yaml:"media_base_url"`    // public URL prefix for stored media
	UploadRateRPS   float64       `yaml:"upload_rate_rps"`   // per-device upload limiter
	UploadRateBurst int           `yaml:"upload_rate_burst"`

	// Transport backpressure
	OutboundHighWater int `yaml:"outbound_high_water"` // frames queued per link before audio drop

	// Stores
	StoreBackend string `yaml:"store_backend"` // "badger" or "memory"
	StorePath    string `yaml:"store_path"`
	GalleryPath  string `yaml:"gallery_path"` // sqlite file; empty means in-memory

	// Install-state cache
	RedisAddr     string `yaml:"redis_addr"` // empty disables redis, in-memory fallback
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Dashboard
	SystemDashboardPackage string `yaml:"system_dashboard_package"`

	// HTTP hardening
	RateLimitRPS    int      `yaml:"rate_limit_rps"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	TrustedProxies  []string `yaml:"trusted_proxies"`
	TracingEnabled  bool     `yaml:"tracing_enabled"`
	TracingService  string   `yaml:"tracing_service"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		ListenAddr:  ":8080",
		MetricsAddr: ":9090",
		LogLevel:    "info",
		LogService:  "cloudcore",

		DisplayThrottle: 300 * time.Millisecond,
		BootDuration:    1500 * time.Millisecond,
		BootQueueCap:    4,
		DashboardTick:   500 * time.Millisecond,

		GlassesGrace:   60 * time.Second,
		TpaIdleTimeout: 45 * time.Second,
		PingInterval:   15 * time.Second,

		AudioLiveCap: time.Second,
		AudioSlide:   3 * time.Second,
		FrameMs:      10 * time.Millisecond,

		PhotoExpire:     120 * time.Second,
		MaxUploadBytes:  16 << 20,
		MediaDir:        "/var/lib/cloudcore/media",
		MediaBaseURL:    "http://localhost:8080/media",
		UploadRateRPS:   2,
		UploadRateBurst: 5,

		OutboundHighWater: 256,

		StoreBackend: "badger",
		StorePath:    "/var/lib/cloudcore/store",

		SystemDashboardPackage: "org.openglass.dashboard",

		RateLimitRPS:   50,
		RateLimitBurst: 100,
		TracingService: "cloudcore-api",
	}
}

// Validate rejects configurations that cannot run.
func (c *AppConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.DisplayThrottle <= 0 {
		return fmt.Errorf("display_throttle must be positive")
	}
	if c.BootDuration <= 0 {
		return fmt.Errorf("boot_duration must be positive")
	}
	if c.BootQueueCap < 1 {
		return fmt.Errorf("boot_queue_cap must be at least 1")
	}
	if c.DashboardTick <= 0 {
		return fmt.Errorf("dashboard_tick must be positive")
	}
	if c.GlassesGrace < 0 {
		return fmt.Errorf("glasses_grace must not be negative")
	}
	if c.AudioSlide < c.AudioLiveCap {
		return fmt.Errorf("audio_slide must be at least audio_live_cap")
	}
	if c.FrameMs <= 0 {
		return fmt.Errorf("frame_ms must be positive")
	}
	if c.PhotoExpire <= 0 {
		return fmt.Errorf("photo_expire must be positive")
	}
	if c.OutboundHighWater < 8 {
		return fmt.Errorf("outbound_high_water must be at least 8")
	}
	switch c.StoreBackend {
	case "badger", "memory":
	default:
		return fmt.Errorf("unknown store backend: %s", c.StoreBackend)
	}
	if c.SystemDashboardPackage == "" {
		return fmt.Errorf("system_dashboard_package must not be empty")
	}
	return nil
}

// LiveFrameCap returns the live audio queue depth in frames.
func (c *AppConfig) LiveFrameCap() int {
	return int(c.AudioLiveCap / c.FrameMs)
}

// SlideFrameCap returns the sliding audio buffer depth in frames.
func (c *AppConfig) SlideFrameCap() int {
	return int(c.AudioSlide / c.FrameMs)
}
