package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"

	"shuttle/internal/api"
	"shuttle/internal/config"
	"shuttle/internal/deps"
	"shuttle/internal/logging"
	"shuttle/internal/queue"
	"shuttle/internal/scheduler"
	"shuttle/internal/staging"
)

// Daemon serves the mission API and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *queue.Store
	scheduler *scheduler.Scheduler
	assembler string

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	mu      sync.Mutex
	stopped bool
	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Addr         string
	QueueDBPath  string
	LockFilePath string
	Assembler    string
	StagingBytes int64
	Missions     scheduler.Stats
	Dependencies []deps.Status
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithAssemblerName records the assembler selected at startup for status output.
func WithAssemblerName(name string) Option {
	return func(d *Daemon) { d.assembler = name }
}

// New constructs a daemon around an opened store and scheduler.
func New(cfg *config.Config, store *queue.Store, sched *scheduler.Scheduler, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || sched == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, scheduler, and logger")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		scheduler: sched,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg.API.Bind, cfg.API.Token, sched, d.apiStatus, logger)
	return d, nil
}

// Start acquires the daemon lock, re-admits interrupted missions, and
// starts serving the API. A stopped daemon cannot be started again.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if d.stopped {
		return errors.New("daemon already stopped")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another shuttle daemon instance is already running")
	}

	if err := d.scheduler.InitMissionsOnStartup(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover missions: %w", err)
	}
	if err := d.api.start(); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("shuttle daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.addr()),
		logging.Int("max_concurrent", d.scheduler.MaxConcurrent()),
	)
	return nil
}

// Stop stops serving, halts transfers, and releases the daemon lock.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return nil
	}

	d.api.stop(ctx)
	err := d.scheduler.Shutdown(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "scheduler shutdown incomplete", "scheduler_shutdown_timeout",
			logging.Error(err),
			logging.String(logging.FieldImpact, "some transfers may not have saved a checkpoint"),
		)
	}
	if unlockErr := d.lock.Unlock(); unlockErr != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(unlockErr))
	}
	d.running.Store(false)
	d.stopped = true
	d.logger.Info("shuttle daemon stopped")
	return err
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close(ctx context.Context) error {
	stopErr := d.Stop(ctx)
	if err := d.store.Close(); err != nil {
		return err
	}
	return stopErr
}

// Addr returns the address the API listens on, empty when not serving.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	stats, err := d.scheduler.Stats(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Addr:         d.api.addr(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Assembler:    d.assembler,
		StagingBytes: staging.Usage(d.cfg.Paths.StagingDir),
		Missions:     stats,
		Dependencies: deps.Check(d.cfg),
	}, nil
}

func (d *Daemon) apiStatus(ctx context.Context) (api.DaemonStatus, error) {
	status, err := d.Status(ctx)
	if err != nil {
		return api.DaemonStatus{}, err
	}
	return toAPIStatus(status), nil
}

func toAPIStatus(status Status) api.DaemonStatus {
	dependencies := make([]api.DependencyStatus, len(status.Dependencies))
	for i, dep := range status.Dependencies {
		dependencies[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		Bind:          status.Addr,
		QueueDBPath:   status.QueueDBPath,
		LockFilePath:  status.LockFilePath,
		Assembler:     status.Assembler,
		StagingBytes:  status.StagingBytes,
		StagingUsage:  humanize.Bytes(uint64(max(status.StagingBytes, 0))),
		MaxConcurrent: status.Missions.MaxConcurrent,
		Active:        status.Missions.Active,
		Counts:        api.MergeStats(status.Missions.Counts),
		Dependencies:  dependencies,
	}
}
