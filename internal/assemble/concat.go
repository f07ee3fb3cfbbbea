package assemble

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"time"

	"shuttle/internal/fileutil"
	"shuttle/internal/logging"
	"shuttle/internal/services"
)

// ConcatAssembler joins parts byte for byte. MPEG-TS segments survive this
// unchanged; re-encoding is not possible.
type ConcatAssembler struct {
	logger *slog.Logger
}

// NewConcatAssembler returns a byte concatenation assembler.
func NewConcatAssembler(logger *slog.Logger) *ConcatAssembler {
	return &ConcatAssembler{logger: logging.NewComponentLogger(logger, "assemble")}
}

// Assemble writes the usable parts in index order to req.OutputPath.
func (a *ConcatAssembler) Assemble(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	if !req.Encode.IsZero() {
		return Result{}, services.Wrap(services.ErrAssembly, "assemble", "concat", "encode options require the ffmpeg assembler", nil)
	}
	parts, skipped, err := orderedParts(req.Parts)
	if err != nil {
		return Result{}, err
	}
	if err := prepareOutput(req.OutputPath); err != nil {
		return Result{}, err
	}

	partial := partialPath(req.OutputPath)
	out, err := os.Create(partial)
	if err != nil {
		return Result{}, services.Wrap(services.ErrAssembly, "assemble", "concat", partial, err)
	}
	writer := bufio.NewWriterSize(out, 1<<20)
	fail := func(err error) (Result, error) {
		_ = out.Close()
		_ = os.Remove(partial)
		return Result{}, err
	}

	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if _, err := fileutil.AppendFile(writer, part.Path); err != nil {
			return fail(services.Wrap(services.ErrAssembly, "assemble", "concat", part.Path, err))
		}
	}
	if err := writer.Flush(); err != nil {
		return fail(services.Wrap(services.ErrAssembly, "assemble", "concat", "flush output", err))
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(partial)
		return Result{}, services.Wrap(services.ErrAssembly, "assemble", "concat", "close output", err)
	}

	a.logger.Debug("concatenated segments",
		logging.Int("parts", len(parts)),
		logging.Int("skipped", len(skipped)),
	)
	return commit(req, partial, skipped, started, ModeConcat, a.logger)
}
