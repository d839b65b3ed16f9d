// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a configuration loader. configPath may be empty, in
// which case only defaults and environment variables apply.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load loads configuration in strict order: defaults, file (strict YAML),
// environment overrides, then validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		if err := l.applyFile(&cfg); err != nil {
			return AppConfig{}, err
		}
	}
	l.applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (l *Loader) applyFile(cfg *AppConfig) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s not found", l.configPath)
		}
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", l.configPath, err)
	}
	return nil
}

func (l *Loader) applyEnv(cfg *AppConfig) {
	cfg.ListenAddr = ParseString("CLOUDCORE_LISTEN", cfg.ListenAddr)
	cfg.MetricsAddr = ParseString("CLOUDCORE_METRICS_LISTEN", cfg.MetricsAddr)
	cfg.LogLevel = ParseString("CLOUDCORE_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = ParseString("CLOUDCORE_LOG_SERVICE", cfg.LogService)

	cfg.DisplayThrottle = ParseDuration("CLOUDCORE_DISPLAY_THROTTLE", cfg.DisplayThrottle)
	cfg.BootDuration = ParseDuration("CLOUDCORE_BOOT_DURATION", cfg.BootDuration)
	cfg.BootQueueCap = ParseInt("CLOUDCORE_BOOT_QUEUE_CAP", cfg.BootQueueCap)
	cfg.DashboardTick = ParseDuration("CLOUDCORE_DASHBOARD_TICK", cfg.DashboardTick)

	cfg.GlassesGrace = ParseDuration("CLOUDCORE_GLASSES_GRACE", cfg.GlassesGrace)
	cfg.TpaIdleTimeout = ParseDuration("CLOUDCORE_TPA_IDLE_TIMEOUT", cfg.TpaIdleTimeout)
	cfg.PingInterval = ParseDuration("CLOUDCORE_PING_INTERVAL", cfg.PingInterval)

	cfg.AudioLiveCap = ParseDuration("CLOUDCORE_AUDIO_LIVE_CAP", cfg.AudioLiveCap)
	cfg.AudioSlide = ParseDuration("CLOUDCORE_AUDIO_SLIDE", cfg.AudioSlide)

	cfg.PhotoExpire = ParseDuration("CLOUDCORE_PHOTO_EXPIRE", cfg.PhotoExpire)
	cfg.MediaDir = ParseString("CLOUDCORE_MEDIA_DIR", cfg.MediaDir)
	cfg.MediaBaseURL = ParseString("CLOUDCORE_MEDIA_BASE_URL", cfg.MediaBaseURL)

	cfg.OutboundHighWater = ParseInt("CLOUDCORE_OUTBOUND_HIGH_WATER", cfg.OutboundHighWater)

	cfg.StoreBackend = ParseString("CLOUDCORE_STORE_BACKEND", cfg.StoreBackend)
	cfg.StorePath = ParseString("CLOUDCORE_STORE_PATH", cfg.StorePath)
	cfg.GalleryPath = ParseString("CLOUDCORE_GALLERY_PATH", cfg.GalleryPath)

	cfg.RedisAddr = ParseString("CLOUDCORE_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = ParseString("CLOUDCORE_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = ParseInt("CLOUDCORE_REDIS_DB", cfg.RedisDB)

	cfg.SystemDashboardPackage = ParseString("CLOUDCORE_SYSTEM_DASHBOARD_PACKAGE", cfg.SystemDashboardPackage)

	cfg.RateLimitRPS = ParseInt("CLOUDCORE_RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = ParseInt("CLOUDCORE_RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.TracingEnabled = ParseBool("CLOUDCORE_TRACING_ENABLED", cfg.TracingEnabled)
}

// reloadDebounce bounds how often the watcher re-reads the file.
const reloadDebounce = 250 * time.Millisecond
