package download

import (
	"time"

	"shuttle/internal/config"
	"shuttle/internal/queue"
)

// Options tunes one engine. Zero values are replaced by defaults.
type Options struct {
	Concurrency        int
	MaxRetries         int
	RetryDelay         time.Duration
	MaxJitter          time.Duration
	MaxSegmentRetries  int
	SkipFailedSegments bool
	RequestTimeout     time.Duration
	InsecureTLS        bool
	SpeedInterval      time.Duration
	SpeedWindow        int
	CheckpointEvery    int
	KeepTemp           bool
	UserAgent          string
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	cfg := config.Default()
	return fromSections(cfg.Download, cfg.Assembly)
}

// OptionsFromConfig converts the download and assembly sections into engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return DefaultOptions()
	}
	opts := fromSections(cfg.Download, cfg.Assembly)
	return opts.normalized()
}

func fromSections(d config.Download, a config.Assembly) Options {
	return Options{
		Concurrency:        d.Concurrency,
		MaxRetries:         d.MaxRetries,
		RetryDelay:         time.Duration(d.RetryDelayMS) * time.Millisecond,
		MaxJitter:          time.Duration(d.MaxJitterMS) * time.Millisecond,
		MaxSegmentRetries:  d.MaxSegmentRetries,
		SkipFailedSegments: d.SkipFailedSegments,
		RequestTimeout:     d.RequestTimeoutDuration(),
		InsecureTLS:        d.InsecureTLS,
		SpeedInterval:      time.Duration(d.SpeedIntervalMS) * time.Millisecond,
		SpeedWindow:        d.SpeedWindow,
		CheckpointEvery:    d.CheckpointEvery,
		KeepTemp:           a.KeepTemp,
		UserAgent:          d.UserAgent,
	}
}

// WithOverrides applies per-mission settings on top of o.
func (o Options) WithOverrides(m queue.Options) Options {
	if m.Concurrency > 0 {
		o.Concurrency = m.Concurrency
	}
	if m.MaxRetries > 0 {
		o.MaxRetries = m.MaxRetries
	}
	if m.RetryDelayMS > 0 {
		o.RetryDelay = time.Duration(m.RetryDelayMS) * time.Millisecond
	}
	if m.MaxSegmentRetries > 0 {
		o.MaxSegmentRetries = m.MaxSegmentRetries
	}
	if m.SkipFailedSegments != nil {
		o.SkipFailedSegments = *m.SkipFailedSegments
	}
	if m.InsecureTLS != nil {
		o.InsecureTLS = *m.InsecureTLS
	}
	if m.KeepTemp != nil {
		o.KeepTemp = *m.KeepTemp
	}
	return o.normalized()
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.Concurrency <= 0 {
		o.Concurrency = def.Concurrency
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.MaxJitter < 0 {
		o.MaxJitter = 0
	}
	if o.MaxSegmentRetries <= 0 {
		o.MaxSegmentRetries = def.MaxSegmentRetries
	}
	if o.SpeedInterval <= 0 {
		o.SpeedInterval = def.SpeedInterval
	}
	if o.SpeedWindow <= 0 {
		o.SpeedWindow = def.SpeedWindow
	}
	if o.CheckpointEvery <= 0 {
		o.CheckpointEvery = def.CheckpointEvery
	}
	return o
}
