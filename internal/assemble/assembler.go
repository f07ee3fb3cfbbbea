package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"shuttle/internal/fileutil"
	"shuttle/internal/logging"
	"shuttle/internal/services"
)

// Modes accepted by New.
const (
	ModeAuto   = "auto"
	ModeFFmpeg = "ffmpeg"
	ModeConcat = "concat"
)

// Part is one downloaded segment file. Skipped parts are placeholders and are
// left out of the output.
type Part struct {
	Index   int
	Path    string
	Skipped bool
}

// EncodeOptions requests a re-encode instead of a stream copy.
type EncodeOptions struct {
	VideoCodec   string
	AudioCodec   string
	VideoBitrate string
	AudioBitrate string
	Resolution   string
	FrameRate    string
	ExtraArgs    []string
}

// IsZero reports whether no encode parameter is set.
func (o EncodeOptions) IsZero() bool {
	return strings.TrimSpace(o.VideoCodec) == "" &&
		strings.TrimSpace(o.AudioCodec) == "" &&
		strings.TrimSpace(o.VideoBitrate) == "" &&
		strings.TrimSpace(o.AudioBitrate) == "" &&
		strings.TrimSpace(o.Resolution) == "" &&
		strings.TrimSpace(o.FrameRate) == "" &&
		len(o.ExtraArgs) == 0
}

// Request describes one assembly.
type Request struct {
	Parts      []Part
	OutputPath string
	Format     string
	Encode     EncodeOptions
	WorkDir    string
	KeepTemp   bool
	// Cleanup lists extra files removed with the parts on success.
	Cleanup []string
}

// Result reports the produced file.
type Result struct {
	OutputPath string
	SizeBytes  int64
	Elapsed    time.Duration
	Skipped    []int
	Tool       string
}

// Assembler combines ordered parts into one output file.
type Assembler interface {
	Assemble(ctx context.Context, req Request) (Result, error)
}

// New picks an assembler for mode. Auto uses ffmpeg when the binary resolves
// on PATH and falls back to byte concatenation otherwise.
func New(mode, ffmpegBinary string, timeout time.Duration, logger *slog.Logger) (Assembler, error) {
	logger = logging.NewComponentLogger(logger, "assemble")
	binary := strings.TrimSpace(ffmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}

	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeAuto:
		if resolved, err := exec.LookPath(binary); err == nil {
			logger.Debug("using ffmpeg assembler", logging.String("binary", resolved))
			return NewFFmpegAssembler(resolved, WithTimeout(timeout), WithLogger(logger)), nil
		}
		logger.Info("ffmpeg not found, using byte concatenation",
			logging.String("binary", binary),
			logging.String(logging.FieldImpact, "re-encode presets unavailable"),
		)
		return NewConcatAssembler(logger), nil
	case ModeFFmpeg:
		return NewFFmpegAssembler(binary, WithTimeout(timeout), WithLogger(logger)), nil
	case ModeConcat:
		return NewConcatAssembler(logger), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "assemble", "select mode", fmt.Sprintf("unknown assembly mode %q", mode), nil)
	}
}

// Name reports the mode an assembler implements.
func Name(a Assembler) string {
	switch a.(type) {
	case *FFmpegAssembler:
		return ModeFFmpeg
	case *ConcatAssembler:
		return ModeConcat
	default:
		return "custom"
	}
}

// CanEncode reports whether a honours EncodeOptions. Byte concatenation
// cannot re-encode.
func CanEncode(a Assembler) bool {
	_, concat := a.(*ConcatAssembler)
	return !concat
}

// orderedParts sorts parts by index, checks that every non-skipped part has
// content, and returns the usable parts plus the skipped indexes.
func orderedParts(parts []Part) ([]Part, []int, error) {
	sorted := append([]Part(nil), parts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	usable := make([]Part, 0, len(sorted))
	var skipped []int
	for _, part := range sorted {
		if part.Skipped {
			skipped = append(skipped, part.Index)
			continue
		}
		if _, ok := fileutil.NonEmptySize(part.Path); !ok {
			return nil, nil, services.Wrap(services.ErrAssembly, "assemble", "check parts", fmt.Sprintf("segment %d missing or empty at %s", part.Index, part.Path), nil)
		}
		usable = append(usable, part)
	}
	if len(usable) == 0 {
		return nil, nil, services.Wrap(services.ErrAssembly, "assemble", "check parts", "no downloaded segments to assemble", nil)
	}
	return usable, skipped, nil
}

// partialPath keeps the output extension so ffmpeg can infer the container.
func partialPath(output string) string {
	dir := filepath.Dir(output)
	base := filepath.Base(output)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, "."+stem+".partial"+ext)
}

func prepareOutput(output string) error {
	if strings.TrimSpace(output) == "" {
		return services.Wrap(services.ErrAssembly, "assemble", "prepare output", "output path is empty", nil)
	}
	if err := refuseExisting(output, "prepare output"); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return services.Wrap(services.ErrAssembly, "assemble", "prepare output", filepath.Dir(output), err)
	}
	return nil
}

// refuseExisting fails when output is already on disk. Finished files are
// never replaced.
func refuseExisting(output, op string) error {
	if _, err := os.Lstat(output); err == nil {
		return services.Wrap(services.ErrAssembly, "assemble", op, fmt.Sprintf("output %s already exists", output), nil)
	}
	return nil
}

// commit moves the partial file into place and, unless KeepTemp, removes the
// parts and the work dir.
func commit(req Request, partial string, skipped []int, started time.Time, tool string, logger *slog.Logger) (Result, error) {
	size, ok := fileutil.NonEmptySize(partial)
	if !ok {
		_ = os.Remove(partial)
		return Result{}, services.Wrap(services.ErrAssembly, "assemble", "commit", tool+" produced no output", nil)
	}
	if err := refuseExisting(req.OutputPath, "commit"); err != nil {
		_ = os.Remove(partial)
		return Result{}, err
	}
	if err := os.Rename(partial, req.OutputPath); err != nil {
		return Result{}, services.Wrap(services.ErrAssembly, "assemble", "commit", req.OutputPath, err)
	}

	if !req.KeepTemp {
		paths := make([]string, 0, len(req.Parts)+len(req.Cleanup))
		for _, part := range req.Parts {
			paths = append(paths, part.Path)
		}
		paths = append(paths, req.Cleanup...)
		if err := fileutil.RemoveAll(paths...); err != nil {
			logger.Warn("temp cleanup failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "assemble_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "remove the mission work directory manually"),
			)
		}
		if req.WorkDir != "" {
			if err := fileutil.RemoveIfEmpty(req.WorkDir); err != nil {
				logger.Warn("work dir cleanup failed",
					logging.String("work_dir", req.WorkDir),
					logging.Error(err),
					logging.String(logging.FieldEventType, "assemble_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "remove the mission work directory manually"),
				)
			}
		}
	}

	return Result{
		OutputPath: req.OutputPath,
		SizeBytes:  size,
		Elapsed:    time.Since(started),
		Skipped:    skipped,
		Tool:       tool,
	}, nil
}
