package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
}

// API contains the daemon HTTP API bind address and optional bearer token.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Scheduler contains mission admission settings.
type Scheduler struct {
	MaxConcurrent    int    `toml:"max_concurrent"`
	DefaultFormat    string `toml:"default_format"`
	EnableTimeSuffix bool   `toml:"enable_time_suffix"`
}

// Download contains segment engine defaults. Every value may be overridden per mission.
type Download struct {
	Concurrency        int    `toml:"concurrency"`
	MaxRetries         int    `toml:"max_retries"`
	RetryDelayMS       int    `toml:"retry_delay_ms"`
	MaxJitterMS        int    `toml:"max_jitter_ms"`
	MaxSegmentRetries  int    `toml:"max_segment_retries"`
	SkipFailedSegments bool   `toml:"skip_failed_segments"`
	RequestTimeout     int    `toml:"request_timeout"`
	InsecureTLS        bool   `toml:"insecure_tls"`
	SpeedIntervalMS    int    `toml:"speed_interval_ms"`
	SpeedWindow        int    `toml:"speed_window"`
	CheckpointEvery    int    `toml:"checkpoint_every"`
	UserAgent          string `toml:"user_agent"`
}

// Assembly contains settings for combining downloaded segments.
type Assembly struct {
	Mode           string `toml:"mode"`
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	KeepTemp       bool   `toml:"keep_temp"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Preset is a named set of re-encode parameters. Selecting a preset disables stream copy.
type Preset struct {
	VideoCodec   string   `toml:"video_codec"`
	AudioCodec   string   `toml:"audio_codec"`
	VideoBitrate string   `toml:"video_bitrate"`
	AudioBitrate string   `toml:"audio_bitrate"`
	Resolution   string   `toml:"resolution"`
	FrameRate    string   `toml:"frame_rate"`
	ExtraArgs    []string `toml:"extra_args"`
}

// Notifications contains configuration for ntfy and webhook delivery.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	WebhookURL     string `toml:"webhook_url"`
	RequestTimeout int    `toml:"request_timeout"`
	Created        bool   `toml:"created"`
	Completed      bool   `toml:"completed"`
	Failed         bool   `toml:"failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for shuttle.
//
// Configuration sections by subsystem:
//   - Paths: staging, output, and log directories
//   - API: daemon HTTP bind address and token
//   - Scheduler: concurrency cap and naming defaults
//   - Download: segment engine defaults
//   - Assembly: muxing mode and ffmpeg location
//   - Presets: named re-encode parameter sets
//   - Notifications: ntfy and webhook settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths             `toml:"paths"`
	API           API               `toml:"api"`
	Scheduler     Scheduler         `toml:"scheduler"`
	Download      Download          `toml:"download"`
	Assembly      Assembly          `toml:"assembly"`
	Presets       map[string]Preset `toml:"presets"`
	Notifications Notifications     `toml:"notifications"`
	Logging       Logging           `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/shuttle/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("shuttle.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the mission database location.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.LogDir, "missions.db")
}

// LockPath returns the single-instance daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "shuttle.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "shuttle.pid")
}

// LogFilePath returns the daemon log file location.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "shuttle.log")
}

// FFmpegBinary returns the ffmpeg executable used for assembly.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Assembly.FFmpegBinary); bin != "" {
		return bin
	}
	return defaultFFmpegBinary
}

// Preset returns the named preset. The empty name yields the zero preset.
func (c *Config) Preset(name string) (Preset, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Preset{}, true
	}
	p, ok := c.Presets[name]
	return p, ok
}

// RequestTimeoutDuration returns the per-segment fetch timeout.
func (d Download) RequestTimeoutDuration() time.Duration {
	return time.Duration(d.RequestTimeout) * time.Second
}

// Timeout returns the limit for one ffmpeg assembly run.
func (a Assembly) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// NotifyTimeout returns the timeout applied to notification deliveries.
func (n Notifications) NotifyTimeout() time.Duration {
	return time.Duration(n.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
