package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateAssembly(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.MaxConcurrent <= 0 {
		return errors.New("scheduler.max_concurrent must be positive")
	}
	return nil
}

func (c *Config) validateDownload() error {
	if err := ensurePositive([]namedInt{
		{"download.concurrency", c.Download.Concurrency},
		{"download.max_retries", c.Download.MaxRetries},
		{"download.retry_delay_ms", c.Download.RetryDelayMS},
		{"download.max_segment_retries", c.Download.MaxSegmentRetries},
		{"download.request_timeout", c.Download.RequestTimeout},
		{"download.speed_interval_ms", c.Download.SpeedIntervalMS},
		{"download.speed_window", c.Download.SpeedWindow},
		{"download.checkpoint_every", c.Download.CheckpointEvery},
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAssembly() error {
	switch c.Assembly.Mode {
	case "auto", "ffmpeg", "concat":
	default:
		return fmt.Errorf("assembly.mode must be one of auto, ffmpeg, concat (got %q)", c.Assembly.Mode)
	}
	if c.Assembly.TimeoutSeconds <= 0 {
		return errors.New("assembly.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.WebhookURL != "" {
		parsed, err := url.Parse(c.Notifications.WebhookURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("notifications.webhook_url must be an absolute URL (got %q)", c.Notifications.WebhookURL)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
}

type namedInt struct {
	key   string
	value int
}

func ensurePositive(values []namedInt) error {
	for _, v := range values {
		if v.value <= 0 {
			return fmt.Errorf("%s must be positive", v.key)
		}
	}
	return nil
}
