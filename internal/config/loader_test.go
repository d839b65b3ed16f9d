// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 100, cfg.LiveFrameCap())
	assert.Equal(t, 300, cfg.SlideFrameCap())
}

func TestLoadNoFileUsesDefaults(t *testing.T) {
	got, err := NewLoader("", "v-test").Load()
	require.NoError(t, err)

	want := Defaults()
	want.Version = "v-test"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9191"
display_throttle: 450ms
boot_queue_cap: 8
store_backend: memory
allowed_origins:
  - https://console.example.com
`), 0o600))

	cfg, err := NewLoader(path, "v1").Load()
	require.NoError(t, err)
	assert.Equal(t, ":9191", cfg.ListenAddr)
	assert.Equal(t, 450*time.Millisecond, cfg.DisplayThrottle)
	assert.Equal(t, 8, cfg.BootQueueCap)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, []string{"https://console.example.com"}, cfg.AllowedOrigins)
	// Untouched keys keep their defaults.
	assert.Equal(t, Defaults().GlassesGrace, cfg.GlassesGrace)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("listne_addr: \":9\"\n"), 0o600))

	_, err := NewLoader(path, "v1").Load()
	assert.Error(t, err)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := NewLoader("/nonexistent/config.yml", "v1").Load()
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":9191\"\n"), 0o600))

	t.Setenv("CLOUDCORE_LISTEN", ":7777")
	t.Setenv("CLOUDCORE_GLASSES_GRACE", "90s")
	t.Setenv("CLOUDCORE_BOOT_QUEUE_CAP", "16")
	t.Setenv("CLOUDCORE_TRACING_ENABLED", "true")

	cfg, err := NewLoader(path, "v1").Load()
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.ListenAddr)
	assert.Equal(t, 90*time.Second, cfg.GlassesGrace)
	assert.Equal(t, 16, cfg.BootQueueCap)
	assert.True(t, cfg.TracingEnabled)
}

func TestEnvParseFallbacks(t *testing.T) {
	t.Setenv("CLOUDCORE_BOOT_QUEUE_CAP", "not-a-number")
	t.Setenv("CLOUDCORE_DISPLAY_THROTTLE", "soon")
	t.Setenv("CLOUDCORE_TRACING_ENABLED", "kinda")
	t.Setenv("CLOUDCORE_LISTEN", "")

	cfg, err := NewLoader("", "v1").Load()
	require.NoError(t, err)
	def := Defaults()
	assert.Equal(t, def.BootQueueCap, cfg.BootQueueCap)
	assert.Equal(t, def.DisplayThrottle, cfg.DisplayThrottle)
	assert.Equal(t, def.TracingEnabled, cfg.TracingEnabled)
	assert.Equal(t, def.ListenAddr, cfg.ListenAddr)
}

func TestValidateRejections(t *testing.T) {
	cases := map[string]func(*AppConfig){
		"empty listen addr":    func(c *AppConfig) { c.ListenAddr = "" },
		"zero throttle":        func(c *AppConfig) { c.DisplayThrottle = 0 },
		"zero boot duration":   func(c *AppConfig) { c.BootDuration = 0 },
		"boot queue too small": func(c *AppConfig) { c.BootQueueCap = 0 },
		"negative grace":       func(c *AppConfig) { c.GlassesGrace = -time.Second },
		"slide below live":     func(c *AppConfig) { c.AudioSlide = c.AudioLiveCap / 2 },
		"unknown backend":      func(c *AppConfig) { c.StoreBackend = "etcd" },
		"low high water":       func(c *AppConfig) { c.OutboundHighWater = 4 },
		"no dashboard package": func(c *AppConfig) { c.SystemDashboardPackage = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Defaults()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
