package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shuttle/internal/fileutil"
	"shuttle/internal/logging"
	"shuttle/internal/services"
)

// ManifestName is the concat demuxer list written into the work dir.
const ManifestName = "concat.txt"

// FFmpegAssembler remuxes or re-encodes parts through the ffmpeg concat demuxer.
type FFmpegAssembler struct {
	binary  string
	timeout time.Duration
	run     CommandRunner
	logger  *slog.Logger
}

// FFmpegOption customizes an FFmpegAssembler.
type FFmpegOption func(*FFmpegAssembler)

// WithTimeout bounds each ffmpeg invocation. Zero disables the bound.
func WithTimeout(d time.Duration) FFmpegOption {
	return func(a *FFmpegAssembler) { a.timeout = d }
}

// WithRunner replaces the subprocess runner.
func WithRunner(run CommandRunner) FFmpegOption {
	return func(a *FFmpegAssembler) {
		if run != nil {
			a.run = run
		}
	}
}

// WithLogger sets the assembler logger.
func WithLogger(logger *slog.Logger) FFmpegOption {
	return func(a *FFmpegAssembler) { a.logger = logging.NewComponentLogger(logger, "assemble") }
}

// NewFFmpegAssembler returns an assembler that shells out to binary.
func NewFFmpegAssembler(binary string, opts ...FFmpegOption) *FFmpegAssembler {
	a := &FFmpegAssembler{
		binary: binary,
		run:    defaultCommandRunner,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble writes a manifest of the usable parts and runs ffmpeg on it.
func (a *FFmpegAssembler) Assemble(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	parts, skipped, err := orderedParts(req.Parts)
	if err != nil {
		return Result{}, err
	}
	if err := prepareOutput(req.OutputPath); err != nil {
		return Result{}, err
	}

	manifestDir := req.WorkDir
	if manifestDir == "" {
		manifestDir = filepath.Dir(parts[0].Path)
	}
	manifest := filepath.Join(manifestDir, ManifestName)
	if err := fileutil.WriteAtomic(manifest, []byte(buildManifest(parts)), 0o644); err != nil {
		return Result{}, services.Wrap(services.ErrAssembly, "assemble", "write manifest", manifest, err)
	}

	partial := partialPath(req.OutputPath)
	args := BuildArgs(manifest, partial, req.Encode)

	runCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	a.logger.Debug("running ffmpeg",
		logging.String("binary", a.binary),
		logging.Int("parts", len(parts)),
		logging.Bool("stream_copy", req.Encode.IsZero()),
	)
	if err := a.run(runCtx, a.binary, args...); err != nil {
		_ = os.Remove(partial)
		if runCtx.Err() == context.DeadlineExceeded {
			return Result{}, services.Wrap(services.ErrAssembly, "assemble", "ffmpeg", fmt.Sprintf("timed out after %s", a.timeout), err)
		}
		return Result{}, services.Wrap(services.ErrAssembly, "assemble", "ffmpeg", "mux failed", err)
	}

	cleanupReq := req
	cleanupReq.Cleanup = append(append([]string(nil), req.Cleanup...), manifest)
	return commit(cleanupReq, partial, skipped, started, ModeFFmpeg, a.logger)
}

// BuildArgs returns the ffmpeg argument list for a concat manifest. Without
// encode options the streams are copied.
func BuildArgs(manifest, output string, enc EncodeOptions) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", manifest,
	}
	if enc.IsZero() {
		args = append(args, "-c", "copy")
		return append(args, output)
	}

	args = append(args, "-c:v", orCopy(enc.VideoCodec))
	if v := strings.TrimSpace(enc.VideoBitrate); v != "" {
		args = append(args, "-b:v", v)
	}
	if v := strings.TrimSpace(enc.Resolution); v != "" {
		args = append(args, "-s", v)
	}
	if v := strings.TrimSpace(enc.FrameRate); v != "" {
		args = append(args, "-r", v)
	}
	args = append(args, "-c:a", orCopy(enc.AudioCodec))
	if v := strings.TrimSpace(enc.AudioBitrate); v != "" {
		args = append(args, "-b:a", v)
	}
	args = append(args, enc.ExtraArgs...)
	return append(args, output)
}

func orCopy(codec string) string {
	if c := strings.TrimSpace(codec); c != "" {
		return c
	}
	return "copy"
}

func buildManifest(parts []Part) string {
	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, part := range parts {
		path := part.Path
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(path, "'", `'\''`))
	}
	return b.String()
}
