package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"shuttle/internal/assemble"
	"shuttle/internal/config"
	"shuttle/internal/daemon"
	"shuttle/internal/deps"
	"shuttle/internal/download"
	"shuttle/internal/logging"
	"shuttle/internal/preflight"
	"shuttle/internal/queue"
	"shuttle/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the shuttle daemon and blocks until the context ends or the
// process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := newLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	results := preflight.RunAll(signalCtx, cfg)
	logPreflight(logger, results)
	if missing := deps.MissingRequired(deps.Check(cfg)); len(missing) > 0 {
		return fmt.Errorf("required dependency %s unavailable: %s", missing[0].Name, missing[0].Detail)
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open mission store", logging.Error(err))
		return err
	}

	assembler, err := assemble.New(cfg.Assembly.Mode, cfg.FFmpegBinary(), cfg.Assembly.Timeout(), logger)
	if err != nil {
		_ = store.Close()
		return err
	}
	factory := download.NewFactory(cfg, assembler, logger)
	sched := scheduler.New(cfg, store, scheduler.DownloadFactory(factory), logger,
		scheduler.WithEncodeSupport(assemble.CanEncode(assembler)),
	)

	d, err := daemon.New(cfg, store, sched, logger, daemon.WithAssemblerName(assemble.Name(assembler)))
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.Close(ctx); err != nil {
			logger.Warn("daemon close", logging.Error(err))
		}
	}()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running daemon and the api bind address"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("shuttle daemon shutting down")
	return nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.LogFilePath()},
		Development: opts.Development,
	})
}

func logPreflight(logger *slog.Logger, results []preflight.Result) {
	for _, r := range results {
		if r.Passed {
			logger.Debug("preflight check passed", logging.String("check", r.Name), logging.String("detail", r.Detail))
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "missions may fail until this is fixed"),
		)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
