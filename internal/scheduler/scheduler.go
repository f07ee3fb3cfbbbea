package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"shuttle/internal/config"
	"shuttle/internal/download"
	"shuttle/internal/logging"
	"shuttle/internal/notifications"
	"shuttle/internal/queue"
	"shuttle/internal/services"
	"shuttle/internal/textutil"
)

const (
	storeTimeout     = 10 * time.Second
	progressLogEvery = 5
	nameTimeLayout   = "20060102-150405"
	suffixTimeLayout = "20060102150405"
)

// Request describes a new mission.
type Request struct {
	URL        string
	Name       string
	OutputDir  string
	Format     string
	Preset     string
	UserAgent  string
	Headers    map[string]string
	Options    queue.Options
	TimeSuffix *bool
}

// Created reports the identity and initial status of a new mission.
type Created struct {
	UID    string
	Name   string
	Status queue.Status
}

// Stats summarizes missions per status.
type Stats struct {
	Counts        map[queue.Status]int
	Active        int
	MaxConcurrent int
}

type handle struct {
	gen        uint64
	transfer   Transfer
	sampler    *logging.ProgressSampler
	lastStatus queue.Status
}

// Scheduler admits missions into a bounded number of download slots and is
// the only writer of mission state.
type Scheduler struct {
	cfg           *config.Config
	store         *queue.Store
	factory       Factory
	notifier      notifications.Service
	logger        *slog.Logger
	maxConcurrent int
	now           func() time.Time
	canEncode     bool

	baseCtx    context.Context
	cancelBase context.CancelFunc

	// admitMu is always taken before a uid lock.
	admitMu sync.Mutex
	locks   *keyedMutex

	mu      sync.Mutex
	handles map[string]*handle
	nextGen uint64
	closing bool

	notifyWG sync.WaitGroup
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now for name derivation.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEncodeSupport declares whether the assembler can re-encode. Without it,
// presets that carry encode parameters are rejected at creation.
func WithEncodeSupport(ok bool) Option {
	return func(s *Scheduler) { s.canEncode = ok }
}

// WithNotifier replaces the notification service.
func WithNotifier(n notifications.Service) Option {
	return func(s *Scheduler) {
		if n != nil {
			s.notifier = n
		}
	}
}

// New builds a scheduler. Transfers run under a context owned by the
// scheduler and ended by Shutdown.
func New(cfg *config.Config, store *queue.Store, factory Factory, logger *slog.Logger, opts ...Option) *Scheduler {
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:           cfg,
		store:         store,
		factory:       factory,
		notifier:      notifications.NewService(cfg),
		logger:        logging.NewComponentLogger(logger, "scheduler"),
		maxConcurrent: cfg.Scheduler.MaxConcurrent,
		now:           time.Now,
		baseCtx:       baseCtx,
		cancelBase:    cancel,
		locks:         newKeyedMutex(),
		handles:       make(map[string]*handle),
		canEncode:     true,
	}
	if s.maxConcurrent <= 0 {
		s.maxConcurrent = 1
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxConcurrent returns the admission cap.
func (s *Scheduler) MaxConcurrent() int { return s.maxConcurrent }

// Create validates req, persists the mission as downloading when a slot is
// free and waiting otherwise, then starts it if admitted.
func (s *Scheduler) Create(ctx context.Context, req Request) (Created, error) {
	m, err := s.buildMission(req)
	if err != nil {
		return Created{}, err
	}

	s.admitMu.Lock()
	if s.isClosing() {
		s.admitMu.Unlock()
		return Created{}, services.Wrap(services.ErrInvalidState, "scheduler", "create", "scheduler is shutting down", nil)
	}
	if err := s.claimOutput(ctx, m); err != nil {
		s.admitMu.Unlock()
		return Created{}, err
	}
	active, err := s.store.CountByStatus(ctx, queue.StatusDownloading)
	if err != nil {
		s.admitMu.Unlock()
		return Created{}, err
	}
	admit := active < s.maxConcurrent
	m.Status = queue.StatusWaiting
	if admit {
		m.Status = queue.StatusDownloading
	}
	if err := s.store.Create(ctx, m); err != nil {
		s.admitMu.Unlock()
		return Created{}, err
	}

	status := m.Status
	if admit {
		unlock := s.locks.Lock(m.UID)
		if err := s.activateLocked(m); err != nil {
			s.failLocked(m, err)
			status = queue.StatusFailed
		}
		unlock()
	}
	s.admitMu.Unlock()
	if status == queue.StatusFailed {
		s.insertNextWaiting(ctx)
	}

	s.logger.Info("mission created",
		logging.MissionUID(m.UID),
		logging.String("name", m.Name),
		logging.String("status", string(status)),
		logging.Int("active", active),
	)
	s.notify(notifications.EventMissionCreated, notifications.Payload{
		"uid":    m.UID,
		"name":   m.Name,
		"url":    m.URL,
		"status": string(status),
	})
	return Created{UID: m.UID, Name: m.Name, Status: status}, nil
}

func (s *Scheduler) buildMission(req Request) (*queue.Mission, error) {
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return nil, services.Wrap(services.ErrValidation, "scheduler", "create", "url is required", nil)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, services.Wrap(services.ErrValidation, "scheduler", "create", fmt.Sprintf("url %q must be an absolute http(s) url", rawURL), nil)
	}
	preset, ok := s.cfg.Preset(req.Preset)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "scheduler", "create", fmt.Sprintf("unknown preset %q", req.Preset), nil)
	}
	if !s.canEncode && !download.EncodeOptionsFromPreset(preset).IsZero() {
		return nil, services.Wrap(services.ErrValidation, "scheduler", "create", fmt.Sprintf("preset %q re-encodes but ffmpeg is unavailable", req.Preset), nil)
	}

	now := s.now()
	name := textutil.SanitizeFileName(req.Name)
	if name == "" {
		name = "shuttle-" + now.Format(nameTimeLayout)
	}
	suffix := s.cfg.Scheduler.EnableTimeSuffix
	if req.TimeSuffix != nil {
		suffix = *req.TimeSuffix
	}
	if suffix {
		name += "-" + now.Format(suffixTimeLayout)
	}

	format := s.cfg.Scheduler.DefaultFormat
	if strings.TrimSpace(req.Format) != "" {
		format = textutil.SanitizeToken(req.Format)
	}
	outputDir := s.cfg.Paths.OutputDir
	if dir := strings.TrimSpace(req.OutputDir); dir != "" {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "scheduler", "create", "output dir", err)
		}
		outputDir = expanded
	}

	uid := uuid.NewString()
	return &queue.Mission{
		UID:          uid,
		Name:         name,
		URL:          rawURL,
		OutputPath:   filepath.Join(outputDir, name+"."+format),
		OutputFormat: format,
		Preset:       strings.ToLower(strings.TrimSpace(req.Preset)),
		UserAgent:    strings.TrimSpace(req.UserAgent),
		Headers:      req.Headers,
		Options:      req.Options,
		WorkDir:      filepath.Join(s.cfg.Paths.StagingDir, uid),
	}, nil
}

// claimOutput keeps m.OutputPath distinct from every stored mission and every
// file already on disk by appending a uid-derived suffix on collision. Callers
// hold admitMu.
func (s *Scheduler) claimOutput(ctx context.Context, m *queue.Mission) error {
	dir := filepath.Dir(m.OutputPath)
	for _, suffix := range []string{"", m.UID[:8], m.UID} {
		name := m.Name
		if suffix != "" {
			name += "-" + suffix
		}
		path := filepath.Join(dir, name+"."+m.OutputFormat)
		taken, err := s.store.OutputPathTaken(ctx, path)
		if err != nil {
			return err
		}
		if taken {
			continue
		}
		if _, err := os.Lstat(path); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		m.Name = name
		m.OutputPath = path
		return nil
	}
	return services.Wrap(services.ErrValidation, "scheduler", "create", fmt.Sprintf("output path %s is already in use", m.OutputPath), nil)
}

// Shutdown halts every transfer without recording them as stopped, so their
// rows stay downloading and are re-admitted on the next start.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.admitMu.Lock()
	s.mu.Lock()
	s.closing = true
	handles := make([]*handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()
	s.admitMu.Unlock()

	for _, h := range handles {
		h.transfer.Stop()
	}
	defer s.cancelBase()

	for _, h := range handles {
		select {
		case <-h.transfer.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	waited := make(chan struct{})
	go func() {
		s.notifyWG.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Info("scheduler stopped", logging.Int("transfers", len(handles)))
	return nil
}

func (s *Scheduler) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Scheduler) handle(uid string) *handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[uid]
}

func (s *Scheduler) takeHandle(uid string) *handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handles[uid]
	delete(s.handles, uid)
	return h
}

// dropHandle removes the handle only when gen still owns it.
func (s *Scheduler) dropHandle(uid string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[uid]; ok && h.gen == gen {
		delete(s.handles, uid)
	}
}

func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

func ptr[T any](v T) *T { return &v }
