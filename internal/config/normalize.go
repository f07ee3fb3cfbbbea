package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeScheduler()
	c.normalizeDownload()
	c.normalizeAssembly()
	c.normalizePresets()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("SHUTTLE_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeScheduler() {
	c.Scheduler.DefaultFormat = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.Scheduler.DefaultFormat)), ".")
	if c.Scheduler.DefaultFormat == "" {
		c.Scheduler.DefaultFormat = defaultOutputFormat
	}
}

func (c *Config) normalizeDownload() {
	c.Download.UserAgent = strings.TrimSpace(c.Download.UserAgent)
	if c.Download.UserAgent == "" {
		c.Download.UserAgent = defaultUserAgent
	}
	if c.Download.MaxJitterMS < 0 {
		c.Download.MaxJitterMS = 0
	}
}

func (c *Config) normalizeAssembly() {
	c.Assembly.Mode = strings.ToLower(strings.TrimSpace(c.Assembly.Mode))
	if c.Assembly.Mode == "" {
		c.Assembly.Mode = defaultAssemblyMode
	}
	c.Assembly.FFmpegBinary = strings.TrimSpace(c.Assembly.FFmpegBinary)
	if c.Assembly.FFmpegBinary == "" {
		c.Assembly.FFmpegBinary = defaultFFmpegBinary
	}
}

func (c *Config) normalizePresets() {
	if len(c.Presets) == 0 {
		c.Presets = map[string]Preset{}
		return
	}
	normalized := make(map[string]Preset, len(c.Presets))
	for name, preset := range c.Presets {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		preset.VideoCodec = strings.TrimSpace(preset.VideoCodec)
		preset.AudioCodec = strings.TrimSpace(preset.AudioCodec)
		normalized[key] = preset
	}
	c.Presets = normalized
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Notifications.WebhookURL = strings.TrimSpace(c.Notifications.WebhookURL)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "json", "console":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
