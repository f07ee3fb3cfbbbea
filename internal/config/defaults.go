package config

const (
	defaultStagingDir        = "~/.local/share/shuttle/staging"
	defaultOutputDir         = "~/Downloads/shuttle"
	defaultLogDir            = "~/.local/share/shuttle/logs"
	defaultAPIBind           = "127.0.0.1:7490"
	defaultMaxConcurrent     = 5
	defaultOutputFormat      = "mp4"
	defaultConcurrency       = 10
	defaultMaxRetries        = 3
	defaultRetryDelayMS      = 100
	defaultMaxJitterMS       = 1000
	defaultMaxSegmentRetries = 5
	defaultRequestTimeout    = 30
	defaultSpeedIntervalMS   = 1000
	defaultSpeedWindow       = 10
	defaultCheckpointEvery   = 10
	defaultUserAgent         = "shuttle/dev"
	defaultAssemblyMode      = "auto"
	defaultFFmpegBinary      = "ffmpeg"
	defaultAssemblyTimeout   = 3600
	defaultNotifyTimeout     = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Scheduler: Scheduler{
			MaxConcurrent: defaultMaxConcurrent,
			DefaultFormat: defaultOutputFormat,
		},
		Download: Download{
			Concurrency:       defaultConcurrency,
			MaxRetries:        defaultMaxRetries,
			RetryDelayMS:      defaultRetryDelayMS,
			MaxJitterMS:       defaultMaxJitterMS,
			MaxSegmentRetries: defaultMaxSegmentRetries,
			RequestTimeout:    defaultRequestTimeout,
			SpeedIntervalMS:   defaultSpeedIntervalMS,
			SpeedWindow:       defaultSpeedWindow,
			CheckpointEvery:   defaultCheckpointEvery,
			UserAgent:         defaultUserAgent,
		},
		Assembly: Assembly{
			Mode:           defaultAssemblyMode,
			FFmpegBinary:   defaultFFmpegBinary,
			TimeoutSeconds: defaultAssemblyTimeout,
		},
		Presets: map[string]Preset{},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Created:        true,
			Completed:      true,
			Failed:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
