package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"shuttle/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "shuttle", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "Downloads", "shuttle") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.API.Bind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.Scheduler.MaxConcurrent != 5 {
		t.Fatalf("expected max_concurrent 5, got %d", cfg.Scheduler.MaxConcurrent)
	}
	if cfg.Download.Concurrency != 10 || cfg.Download.MaxRetries != 3 || cfg.Download.MaxSegmentRetries != 5 {
		t.Fatalf("unexpected download defaults: %+v", cfg.Download)
	}
	if cfg.Download.RetryDelayMS != 100 || cfg.Download.MaxJitterMS != 1000 {
		t.Fatalf("unexpected backoff defaults: %+v", cfg.Download)
	}
	if cfg.Download.RequestTimeoutDuration().Seconds() != 30 {
		t.Fatalf("unexpected request timeout: %s", cfg.Download.RequestTimeoutDuration())
	}
	if cfg.Assembly.Mode != "auto" {
		t.Fatalf("unexpected assembly mode: %q", cfg.Assembly.Mode)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "custom.toml")
	content := `
[paths]
staging_dir = "~/staging"
output_dir = "/srv/media"

[scheduler]
max_concurrent = 2
default_format = ".MKV"

[download]
concurrency = 4
skip_failed_segments = true

[assembly]
mode = "CONCAT"

[presets.Small]
video_codec = " libx264 "
video_bitrate = "1M"

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.StagingDir != filepath.Join(tempHome, "staging") {
		t.Fatalf("unexpected staging dir: %q", cfg.Paths.StagingDir)
	}
	if cfg.Paths.OutputDir != "/srv/media" {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Scheduler.MaxConcurrent != 2 {
		t.Fatalf("unexpected max concurrent: %d", cfg.Scheduler.MaxConcurrent)
	}
	if cfg.Scheduler.DefaultFormat != "mkv" {
		t.Fatalf("expected normalized format mkv, got %q", cfg.Scheduler.DefaultFormat)
	}
	if cfg.Download.Concurrency != 4 || !cfg.Download.SkipFailedSegments {
		t.Fatalf("unexpected download section: %+v", cfg.Download)
	}
	if cfg.Download.MaxRetries != 3 {
		t.Fatalf("expected untouched default max_retries, got %d", cfg.Download.MaxRetries)
	}
	if cfg.Assembly.Mode != "concat" {
		t.Fatalf("expected lowercased mode, got %q", cfg.Assembly.Mode)
	}
	preset, ok := cfg.Preset("small")
	if !ok {
		t.Fatal("expected preset small to be registered")
	}
	if preset.VideoCodec != "libx264" || preset.VideoBitrate != "1M" {
		t.Fatalf("unexpected preset: %+v", preset)
	}
	if _, ok := cfg.Preset("missing"); ok {
		t.Fatal("expected missing preset lookup to fail")
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
}

func TestEnvTokenFallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SHUTTLE_API_TOKEN", " secret ")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.Token != "secret" {
		t.Fatalf("expected token from env, got %q", cfg.API.Token)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "max_concurrent") {
		t.Fatalf("sample config missing scheduler section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.StagingDir, "shuttle") {
		t.Fatalf("expected staging dir to contain shuttle, got %q", cfg.Paths.StagingDir)
	}
	if _, ok := cfg.Presets["h264"]; !ok {
		t.Fatal("expected sample h264 preset")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"max concurrent", func(c *config.Config) { c.Scheduler.MaxConcurrent = 0 }},
		{"concurrency", func(c *config.Config) { c.Download.Concurrency = 0 }},
		{"segment retries", func(c *config.Config) { c.Download.MaxSegmentRetries = -1 }},
		{"assembly mode", func(c *config.Config) { c.Assembly.Mode = "magic" }},
		{"webhook", func(c *config.Config) { c.Notifications.WebhookURL = "not a url" }},
		{"log level", func(c *config.Config) { c.Logging.Level = "chatty" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
