package scheduler

import (
	"context"
	"errors"

	"shuttle/internal/download"
	"shuttle/internal/logging"
	"shuttle/internal/notifications"
	"shuttle/internal/queue"
	"shuttle/internal/services"
)

// UpdateMission applies ev to the mission as reported by its current
// transfer. It never fails; problems are logged.
func (s *Scheduler) UpdateMission(uid string, ev download.Event) {
	h := s.handle(uid)
	if h == nil {
		s.applyEvent(uid, 0, false, ev)
		return
	}
	s.applyEvent(uid, h.gen, true, ev)
}

// updateMission is the observer path. Events from a transfer that no longer
// owns the mission are dropped.
func (s *Scheduler) updateMission(uid string, gen uint64, ev download.Event) {
	s.applyEvent(uid, gen, true, ev)
}

func (s *Scheduler) applyEvent(uid string, gen uint64, checkGen bool, ev download.Event) {
	unlock := s.locks.Lock(uid)
	promote := s.applyLocked(uid, gen, checkGen, ev)
	unlock()

	if promote {
		ctx, cancel := storeContext()
		defer cancel()
		s.insertNextWaiting(ctx)
	}
}

// applyLocked reports whether a slot was freed.
func (s *Scheduler) applyLocked(uid string, gen uint64, checkGen bool, ev download.Event) bool {
	h := s.handle(uid)
	if checkGen && (h == nil || h.gen != gen) {
		if _, tick := ev.(download.ProgressEvent); !tick {
			s.logger.Debug("stale transfer event ignored", logging.MissionUID(uid), logging.String("event", eventName(ev)))
		}
		return false
	}

	ctx, cancel := storeContext()
	defer cancel()

	m, ok := s.current(ctx, uid, h)
	if !ok {
		if h != nil {
			s.dropHandle(uid, h.gen)
		}
		return false
	}
	status := m.Status
	if status.IsTerminal() {
		return false
	}

	switch e := ev.(type) {
	case download.ProgressEvent:
		if status != queue.StatusDownloading {
			return false
		}
		s.applyProgress(ctx, m, h, e.Progress)
		return false

	case download.SkipEvent:
		s.applySkip(ctx, m, e)
		return false

	case download.ResumedEvent:
		return false

	case download.PausedEvent:
		if status != queue.StatusDownloading {
			return false
		}
		s.update(ctx, uid, queue.StatusStopped, queue.Patch{Status: ptr(queue.StatusStopped), Speed: ptr("")})
		if h != nil {
			h.lastStatus = queue.StatusStopped
		}
		s.logger.Info("mission paused", logging.MissionUID(uid), logging.Int("percent", e.Percent))
		return true

	case download.StoppedEvent:
		if s.isClosing() {
			return false
		}
		if h != nil {
			s.dropHandle(uid, h.gen)
		}
		if status != queue.StatusDownloading {
			return false
		}
		s.update(ctx, uid, queue.StatusStopped, queue.Patch{Status: ptr(queue.StatusStopped), Speed: ptr("")})
		s.logger.Info("mission stopped", logging.MissionUID(uid), logging.Int("percent", e.Percent))
		return true

	case download.CompleteEvent:
		if h != nil {
			s.dropHandle(uid, h.gen)
		}
		patch := queue.Patch{
			Status:     ptr(queue.StatusCompleted),
			Percent:    ptr(100),
			Speed:      ptr(""),
			SizeBytes:  ptr(e.SizeBytes),
			Timemark:   ptr(e.Timemark),
			OutputPath: ptr(e.OutputPath),
			Skipped:    ptr(append([]int{}, e.Skipped...)),
		}
		s.update(ctx, uid, queue.StatusCompleted, patch)
		s.logger.Info("mission completed",
			logging.MissionUID(uid),
			logging.String("output", e.OutputPath),
			logging.Int64("size_bytes", e.SizeBytes),
			logging.Int("skipped", len(e.Skipped)),
			logging.Int("retries", e.Retries),
			logging.Duration("elapsed", e.Elapsed),
		)
		payload := notifications.Payload{
			"uid":       uid,
			"output":    e.OutputPath,
			"sizeBytes": e.SizeBytes,
			"skipped":   e.Skipped,
		}
		withName(m, payload)
		s.notify(notifications.EventMissionCompleted, payload)
		return true

	case download.ErrorEvent:
		if h != nil {
			s.dropHandle(uid, h.gen)
		}
		msg := "download failed"
		if e.Err != nil {
			msg = e.Err.Error()
		}
		s.update(ctx, uid, queue.StatusFailed, queue.Patch{Status: ptr(queue.StatusFailed), Speed: ptr(""), Message: &msg})
		logging.ErrorWithContext(s.logger, "mission failed", "mission_failed",
			logging.MissionUID(uid),
			logging.Error(e.Err),
			logging.String("kind", services.Kind(e.Err)),
			logging.Int("percent", e.Percent),
			logging.Int("failed_segments", e.Failed),
			logging.String(logging.FieldErrorHint, failureHint(e.Err)),
		)
		payload := notifications.Payload{"uid": uid, "error": msg}
		withName(m, payload)
		s.notify(notifications.EventMissionFailed, payload)
		return true
	}
	return false
}

// current loads the mission, falling back to the status cached on the
// handle when the store is unavailable. ok is false when the mission no
// longer exists.
func (s *Scheduler) current(ctx context.Context, uid string, h *handle) (*queue.Mission, bool) {
	m, err := s.store.Get(ctx, uid)
	if err != nil {
		s.logStoreError("load mission for event", uid, err)
		if h != nil {
			return &queue.Mission{UID: uid, Status: h.lastStatus}, true
		}
		return nil, false
	}
	return m, m != nil
}

func (s *Scheduler) applyProgress(ctx context.Context, m *queue.Mission, h *handle, p download.Progress) {
	percent := max(m.Percent, p.Percent)
	patch := queue.Patch{
		Percent:   &percent,
		Speed:     ptr(p.Speed),
		SizeBytes: ptr(p.Bytes),
		Timemark:  ptr(p.Timemark),
	}
	s.update(ctx, m.UID, queue.StatusDownloading, patch)
	if h != nil && h.sampler.ShouldLog(percent, string(queue.StatusDownloading)) {
		s.logger.Info("mission progress",
			logging.MissionUID(m.UID),
			logging.Int("percent", percent),
			logging.String("speed", p.Speed),
			logging.Int("downloaded", p.Downloaded),
			logging.Int("total", p.Total),
			logging.Int("failed", p.Failed),
		)
	}
}

func (s *Scheduler) applySkip(ctx context.Context, m *queue.Mission, e download.SkipEvent) {
	for _, idx := range m.Skipped {
		if idx == e.Index {
			return
		}
	}
	skipped := append(append([]int(nil), m.Skipped...), e.Index)
	s.update(ctx, m.UID, m.Status, queue.Patch{Skipped: &skipped})
	logging.WarnWithContext(s.logger, "segment skipped", "segment_skipped",
		logging.MissionUID(m.UID),
		logging.Int("segment", e.Index),
		logging.String("uri", e.URI),
		logging.Error(e.Err),
		logging.String(logging.FieldImpact, "output will have a gap"),
	)
}

func (s *Scheduler) update(ctx context.Context, uid string, status queue.Status, patch queue.Patch) {
	if err := s.store.Update(ctx, uid, patch); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return
		}
		s.logStoreError("apply transfer event", uid, err)
		return
	}
	if h := s.handle(uid); h != nil {
		h.lastStatus = status
	}
}

func withName(m *queue.Mission, payload notifications.Payload) {
	if m.Name != "" {
		payload["name"] = m.Name
	}
	if m.URL != "" {
		payload["url"] = m.URL
	}
}

func failurePayload(m *queue.Mission, msg string) notifications.Payload {
	return notifications.Payload{"uid": m.UID, "name": m.Name, "url": m.URL, "error": msg}
}

// notify publishes in the background. Delivery failures are logged only.
func (s *Scheduler) notify(event notifications.Event, payload notifications.Payload) {
	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := s.notifier.Publish(ctx, event, payload); err != nil {
			logging.WarnWithContext(s.logger, "notification failed", "notification_failed",
				logging.String("event", string(event)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "mission state is unaffected"),
			)
		}
	}()
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrResolution):
		return "check the playlist url and request headers"
	case errors.Is(err, services.ErrSegmentExhausted):
		return "enable skip_failed_segments or raise max_segment_retries"
	case errors.Is(err, services.ErrAssembly), errors.Is(err, services.ErrExternalTool):
		return "check ffmpeg availability and the output directory"
	default:
		return "check logs for details"
	}
}

func eventName(ev download.Event) string {
	switch ev.(type) {
	case download.ProgressEvent:
		return "progress"
	case download.SkipEvent:
		return "skip"
	case download.PausedEvent:
		return "paused"
	case download.ResumedEvent:
		return "resumed"
	case download.StoppedEvent:
		return "stopped"
	case download.CompleteEvent:
		return "complete"
	case download.ErrorEvent:
		return "error"
	default:
		return "unknown"
	}
}
