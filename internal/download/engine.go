package download

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"shuttle/internal/assemble"
	"shuttle/internal/fileutil"
	"shuttle/internal/logging"
	"shuttle/internal/playlist"
	"shuttle/internal/services"
)

// Resolver turns a source URL into segments.
type Resolver interface {
	Resolve(ctx context.Context, req playlist.Request) (*playlist.Source, error)
}

// Request identifies what an engine fetches and where the result goes.
type Request struct {
	UID        string
	URL        string
	WorkDir    string
	OutputPath string
	Format     string
	Encode     assemble.EncodeOptions
	UserAgent  string
	Headers    map[string]string
}

// Deps are the collaborators an engine needs. Nil fields get defaults,
// except Assembler which is required.
type Deps struct {
	Client    *http.Client
	Resolver  Resolver
	Assembler assemble.Assembler
	Logger    *slog.Logger
	Now       func() time.Time
}

type workItem struct {
	seg        playlist.Segment
	path       string
	retryCount int
}

// Engine downloads one mission's segments with a bounded worker pool and
// hands them to an assembler. All progress leaves through the observer.
type Engine struct {
	req       Request
	opts      Options
	client    *http.Client
	resolver  Resolver
	assembler assemble.Assembler
	retry     RetryPolicy
	speed     *SpeedTracker
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
	done      chan struct{}
	events    *emitter

	mu              sync.Mutex
	started         bool
	stopRequested   bool
	paused          bool
	finished        bool
	cancel          context.CancelFunc
	resumeCh        chan struct{}
	source          *playlist.Source
	queue           []*workItem
	downloaded      int
	failed          int
	retries         int
	skipped         []int
	skippedSet      map[int]struct{}
	doneDuration    float64
	sinceCheckpoint int
	streamLength    int64
	lastStreamTick  time.Time
}

// New validates req and builds an idle engine.
func New(req Request, opts Options, deps Deps, observer Observer) (*Engine, error) {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return nil, services.Wrap(services.ErrValidation, "download", "new engine", "url is required", nil)
	}
	if strings.TrimSpace(req.WorkDir) == "" {
		return nil, services.Wrap(services.ErrValidation, "download", "new engine", "work dir is required", nil)
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return nil, services.Wrap(services.ErrValidation, "download", "new engine", "output path is required", nil)
	}
	if deps.Assembler == nil {
		return nil, services.Wrap(services.ErrConfiguration, "download", "new engine", "assembler is required", nil)
	}

	opts = opts.normalized()
	if strings.TrimSpace(req.UserAgent) == "" {
		req.UserAgent = opts.UserAgent
	}
	client := deps.Client
	if client == nil {
		client = NewHTTPClient(opts.InsecureTLS)
	}
	logger := logging.NewComponentLogger(deps.Logger, "download")
	if req.UID != "" {
		logger = logger.With(logging.MissionUID(req.UID))
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = playlist.NewResolver(client, logger)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		req:        req,
		opts:       opts,
		client:     client,
		resolver:   resolver,
		assembler:  deps.Assembler,
		retry:      NewRetryPolicy(opts),
		speed:      NewSpeedTracker(opts.SpeedInterval, opts.SpeedWindow, now),
		observer:   observer,
		logger:     logger,
		now:        now,
		done:       make(chan struct{}),
		resumeCh:   make(chan struct{}, 1),
		skippedSet: make(map[int]struct{}),
	}, nil
}

// Start launches the download in the background. ctx bounds the whole run;
// Stop cancels it early. Start never emits events itself.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return services.Wrap(services.ErrInvalidState, "download", "start", "engine already started", nil)
	}
	e.started = true
	e.mu.Unlock()

	if err := os.MkdirAll(e.req.WorkDir, 0o755); err != nil {
		e.mu.Lock()
		e.finished = true
		e.mu.Unlock()
		close(e.done)
		return services.Wrap(services.ErrValidation, "download", "start", fmt.Sprintf("create work dir %s", e.req.WorkDir), err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	if e.stopRequested {
		cancel()
	}
	e.mu.Unlock()

	e.events = newEmitter(e.observer, e.done)
	go func() {
		defer cancel()
		defer e.events.close()
		e.run(runCtx)
	}()
	return nil
}

// Pause asks workers to finish their current fetch and stop taking work.
// PausedEvent follows once they have drained.
func (e *Engine) Pause() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.finished || e.stopRequested || e.paused {
		return false
	}
	e.paused = true
	return true
}

// Resume restarts a paused engine from its remaining queue.
func (e *Engine) Resume() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.paused || e.finished || e.stopRequested {
		return false
	}
	e.paused = false
	select {
	case e.resumeCh <- struct{}{}:
	default:
	}
	return true
}

// resolve bounds playlist resolution by RequestTimeout so a source that never
// answers fails the mission instead of holding its slot.
func (e *Engine) resolve(ctx context.Context) (*playlist.Source, error) {
	if e.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RequestTimeout)
		defer cancel()
	}
	return e.resolver.Resolve(ctx, playlist.Request{
		URL:       e.req.URL,
		UserAgent: e.req.UserAgent,
		Headers:   e.req.Headers,
	})
}

// Stop cancels the run. StoppedEvent follows unless the engine already finished.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopRequested = true
	if e.cancel != nil {
		e.cancel()
	}
}

// Done closes once the run has ended and every event has been delivered.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) run(ctx context.Context) {
	src, err := e.resolve(ctx)
	if err != nil {
		if ctx.Err() != nil {
			e.finishStopped()
			return
		}
		e.finishFailed(err)
		return
	}
	e.prepare(src)

	for {
		err := e.runPool(ctx)
		if ctx.Err() != nil {
			e.finishStopped()
			return
		}
		if err != nil {
			e.finishFailed(err)
			return
		}
		if e.queued() == 0 {
			break
		}
		if !e.isPaused() {
			continue
		}

		e.saveCheckpoint()
		e.mu.Lock()
		e.events.emit(PausedEvent{Progress: e.progressLocked()})
		e.mu.Unlock()
		e.logger.Info("download paused", logging.Int("remaining", e.queued()))

		if !e.waitResume(ctx) {
			e.finishStopped()
			return
		}
		e.events.emit(ResumedEvent{})
		e.logger.Info("download resumed", logging.Int("remaining", e.queued()))
	}

	e.assemble(ctx)
}

// prepare builds the work queue from segments without a non-empty file and
// restores counters from a matching checkpoint.
func (e *Engine) prepare(src *playlist.Source) {
	cp, err := LoadCheckpoint(e.req.WorkDir, e.req.URL)
	if err != nil {
		logging.WarnWithContext(e.logger, "ignoring unreadable checkpoint", "checkpoint_invalid",
			logging.Error(err),
			logging.String(logging.FieldImpact, "resume counters restart from zero"),
		)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.source = src
	var existing int64
	for _, seg := range src.Segments {
		path := SegmentPath(e.req.WorkDir, seg.Index)
		if size, ok := fileutil.NonEmptySize(path); ok {
			e.downloaded++
			e.doneDuration += seg.Duration
			existing += size
			continue
		}
		e.queue = append(e.queue, &workItem{seg: seg, path: path})
	}

	var started time.Time
	if cp != nil {
		e.failed = cp.FailedCount
		e.retries = cp.RetryCount
		started = cp.StartedAt()
	}
	e.speed.Restore(existing, started)

	e.logger.Info("download prepared",
		logging.Int("segments", len(src.Segments)),
		logging.Int("already_downloaded", e.downloaded),
		logging.Bool("single_stream", src.Single),
		logging.Bool("resumed", cp != nil),
	)
	e.events.emit(ProgressEvent{Progress: e.progressLocked()})
}

func (e *Engine) runPool(ctx context.Context) error {
	workers := min(e.opts.Concurrency, e.queued())
	if workers == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for range workers {
		g.Go(func() error { return e.worker(gctx) })
	}
	return g.Wait()
}

func (e *Engine) worker(ctx context.Context) error {
	for {
		item, ok := e.next()
		if !ok {
			return nil
		}

		err := e.retry.Do(ctx, func(ctx context.Context, attempt int) error {
			if attempt > 0 {
				e.noteRetry()
			}
			return e.fetch(ctx, item)
		})
		if err == nil {
			e.completed(item)
			continue
		}
		if ctx.Err() != nil {
			e.requeue(item, true)
			return ctx.Err()
		}
		if !e.failedBurst(item, err) {
			continue
		}
		if !e.opts.SkipFailedSegments {
			return &SegmentExhaustedError{
				Index:    item.seg.Index,
				URI:      item.seg.URI,
				Attempts: item.retryCount,
				Err:      err,
			}
		}
		if err := e.skip(item, err); err != nil {
			return err
		}
	}
}

// next pops the head of the queue unless the engine is paused.
func (e *Engine) next() (*workItem, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused || len(e.queue) == 0 {
		return nil, false
	}
	item := e.queue[0]
	e.queue = e.queue[1:]
	return item, true
}

func (e *Engine) requeue(item *workItem, front bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if front {
		e.queue = append([]*workItem{item}, e.queue...)
		return
	}
	e.queue = append(e.queue, item)
}

func (e *Engine) queued() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *Engine) isPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *Engine) waitResume(ctx context.Context) bool {
	for e.isPaused() {
		select {
		case <-ctx.Done():
			return false
		case <-e.resumeCh:
		}
	}
	return ctx.Err() == nil
}

func (e *Engine) noteRetry() {
	e.mu.Lock()
	e.retries++
	e.mu.Unlock()
}

// failedBurst counts a failed burst and re-queues the item. It reports true
// when the item has used all of its bursts and was not re-queued.
func (e *Engine) failedBurst(item *workItem, err error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	item.retryCount++
	e.failed++
	exhausted := item.retryCount >= e.opts.MaxSegmentRetries
	e.logger.Debug("segment burst failed",
		logging.Int("index", item.seg.Index),
		logging.Int("bursts", item.retryCount),
		logging.Bool("exhausted", exhausted),
		logging.Error(err),
	)
	if !exhausted {
		e.queue = append(e.queue, item)
	}
	return exhausted
}

func (e *Engine) completed(item *workItem) {
	e.mu.Lock()
	e.downloaded++
	e.doneDuration += item.seg.Duration
	e.sinceCheckpoint++
	save := e.sinceCheckpoint >= e.opts.CheckpointEvery
	if save {
		e.sinceCheckpoint = 0
	}
	e.events.emit(ProgressEvent{Progress: e.progressLocked()})
	e.mu.Unlock()

	if save {
		e.saveCheckpoint()
	}
}

// skip writes an empty placeholder so the index stays addressable. A later
// run treats the placeholder as missing and retries it.
func (e *Engine) skip(item *workItem, cause error) error {
	if err := os.WriteFile(item.path, nil, 0o644); err != nil {
		return services.Wrap(services.ErrSegmentFetch, "download", "skip segment", item.path, err)
	}
	logging.WarnWithContext(e.logger, "segment skipped", "segment_skipped",
		logging.Int("index", item.seg.Index),
		logging.String("uri", item.seg.URI),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "check the source; resume retries skipped segments"),
		logging.String(logging.FieldImpact, "output will be missing this segment"),
	)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, seen := e.skippedSet[item.seg.Index]; seen {
		return nil
	}
	e.skippedSet[item.seg.Index] = struct{}{}
	e.skipped = append(e.skipped, item.seg.Index)
	e.doneDuration += item.seg.Duration
	e.events.emit(SkipEvent{Index: item.seg.Index, URI: item.seg.URI, Err: cause})
	e.events.emit(ProgressEvent{Progress: e.progressLocked()})
	return nil
}

func (e *Engine) assemble(ctx context.Context) {
	e.mu.Lock()
	parts := make([]assemble.Part, 0, len(e.source.Segments))
	for _, seg := range e.source.Segments {
		_, skipped := e.skippedSet[seg.Index]
		parts = append(parts, assemble.Part{
			Index:   seg.Index,
			Path:    SegmentPath(e.req.WorkDir, seg.Index),
			Skipped: skipped,
		})
	}
	e.mu.Unlock()

	checkpoint := CheckpointPath(e.req.WorkDir)
	result, err := e.assembler.Assemble(ctx, assemble.Request{
		Parts:      parts,
		OutputPath: e.req.OutputPath,
		Format:     e.req.Format,
		Encode:     e.req.Encode,
		WorkDir:    e.req.WorkDir,
		KeepTemp:   e.opts.KeepTemp,
		Cleanup:    []string{checkpoint},
	})
	if err != nil {
		if ctx.Err() != nil {
			e.finishStopped()
			return
		}
		e.finishFailed(err)
		return
	}
	if err := os.Remove(checkpoint); err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.logger.Debug("checkpoint removal failed", logging.Error(err))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = true
	progress := e.progressLocked()
	progress.Percent = 100
	e.logger.Info("download complete",
		logging.String("output", result.OutputPath),
		logging.Int64("size_bytes", result.SizeBytes),
		logging.Int("skipped", len(result.Skipped)),
		logging.Duration("assembly", result.Elapsed),
	)
	e.events.emit(CompleteEvent{
		Progress:   progress,
		OutputPath: result.OutputPath,
		SizeBytes:  result.SizeBytes,
		Skipped:    append([]int(nil), e.skipped...),
		Elapsed:    e.now().Sub(e.speed.Snapshot().Start),
	})
}

func (e *Engine) finishStopped() {
	e.saveCheckpoint()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = true
	e.logger.Info("download stopped", logging.Int("remaining", len(e.queue)))
	e.events.emit(StoppedEvent{Progress: e.progressLocked()})
}

func (e *Engine) finishFailed(err error) {
	e.saveCheckpoint()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = true
	logging.ErrorWithContext(e.logger, "download failed", "download_failed",
		logging.Error(err),
		logging.String("error_kind", services.Kind(err)),
		logging.String(logging.FieldErrorHint, failureHint(err)),
	)
	e.events.emit(ErrorEvent{Progress: e.progressLocked(), Err: err})
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrResolution):
		return "check that the url is reachable and is a playlist or media stream"
	case errors.Is(err, services.ErrSegmentExhausted):
		return "retry later or enable skip_failed_segments"
	case errors.Is(err, services.ErrAssembly):
		return "segments are kept in the work dir; check ffmpeg output"
	default:
		return "check logs for details"
	}
}

func (e *Engine) saveCheckpoint() {
	e.mu.Lock()
	if e.source == nil {
		e.mu.Unlock()
		return
	}
	snap := e.speed.Snapshot()
	cp := Checkpoint{
		URL:             e.req.URL,
		TotalSegments:   len(e.source.Segments),
		DownloadedCount: e.downloaded,
		FailedCount:     e.failed,
		RetryCount:      e.retries,
		DownloadedBytes: snap.Bytes,
		StartTime:       snap.Start.UnixMilli(),
		LastSpeedUpdate: snap.LastSample.UnixMilli(),
		LastBytes:       snap.LastBytes,
		CurrentSpeed:    snap.Current,
		AverageSpeed:    snap.Average,
	}
	e.mu.Unlock()

	if err := SaveCheckpoint(e.req.WorkDir, cp); err != nil {
		logging.WarnWithContext(e.logger, "checkpoint write failed", "checkpoint_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "resume counters may be stale"),
		)
	}
}

// progressLocked builds the current telemetry. Callers hold e.mu.
func (e *Engine) progressLocked() Progress {
	snap := e.speed.Snapshot()
	total := 0
	single := false
	if e.source != nil {
		total = len(e.source.Segments)
		single = e.source.Single
	}
	processed := e.downloaded + len(e.skipped)

	percent := 0
	switch {
	case total > 0 && processed >= total:
		percent = 100
	case single && e.streamLength > 0:
		percent = min(int(snap.Bytes*100/e.streamLength), 99)
	case total > 0:
		percent = processed * 100 / total
	}

	return Progress{
		Percent:    percent,
		Speed:      FormatSpeed(snap.Average),
		Rate:       snap.Average,
		Bytes:      snap.Bytes,
		Timemark:   FormatTimemark(e.doneDuration),
		Total:      total,
		Downloaded: e.downloaded,
		Skipped:    len(e.skipped),
		Failed:     e.failed,
		Retries:    e.retries,
	}
}

// SegmentPath is the file a segment downloads to.
func SegmentPath(workDir string, index int) string {
	return filepath.Join(workDir, fmt.Sprintf("%06d.ts", index))
}
