package scheduler

import (
	"context"
	"fmt"

	"shuttle/internal/download"
	"shuttle/internal/fileutil"
	"shuttle/internal/logging"
	"shuttle/internal/notifications"
	"shuttle/internal/queue"
	"shuttle/internal/services"
	"shuttle/internal/staging"
)

// Pause asks an active transfer to drain. The mission turns stopped once the
// transfer confirms; a waiting mission is stopped immediately.
func (s *Scheduler) Pause(ctx context.Context, uid string) error {
	unlock := s.locks.Lock(uid)
	m, err := s.mustGet(ctx, uid, "pause")
	if err != nil {
		unlock()
		return err
	}

	promote := false
	switch m.Status {
	case queue.StatusDownloading:
		if h := s.handle(uid); h != nil {
			if !h.transfer.Pause() {
				h.transfer.Stop()
			}
			s.logger.Info("pause requested", logging.MissionUID(uid))
			break
		}
		err = s.setStatus(ctx, uid, queue.StatusStopped)
		promote = err == nil
	case queue.StatusWaiting:
		err = s.setStatus(ctx, uid, queue.StatusStopped)
	default:
		err = invalidState("pause", m)
	}
	unlock()

	if promote {
		s.insertNextWaiting(ctx)
	}
	return err
}

// Resume re-admits a stopped mission, or queues it when every slot is busy.
func (s *Scheduler) Resume(ctx context.Context, uid string) error {
	s.admitMu.Lock()
	defer s.admitMu.Unlock()
	if s.isClosing() {
		return services.Wrap(services.ErrInvalidState, "scheduler", "resume", "scheduler is shutting down", nil)
	}

	unlock := s.locks.Lock(uid)
	defer unlock()
	m, err := s.mustGet(ctx, uid, "resume")
	if err != nil {
		return err
	}
	if m.Status != queue.StatusStopped {
		return invalidState("resume", m)
	}

	active, err := s.store.CountByStatus(ctx, queue.StatusDownloading)
	if err != nil {
		return err
	}
	if active >= s.maxConcurrent {
		if h := s.takeHandle(uid); h != nil {
			h.transfer.Stop()
		}
		s.logger.Info("resume queued", logging.MissionUID(uid), logging.Int("active", active))
		return s.setStatus(ctx, uid, queue.StatusWaiting)
	}
	if err := s.setStatus(ctx, uid, queue.StatusDownloading); err != nil {
		return err
	}
	m.Status = queue.StatusDownloading
	if err := s.activateLocked(m); err != nil {
		s.failLocked(m, err)
		return err
	}
	s.logger.Info("mission resumed", logging.MissionUID(uid))
	return nil
}

// Stop requests termination. An active mission turns stopped when its
// transfer reports back; a waiting mission is stopped immediately.
func (s *Scheduler) Stop(ctx context.Context, uid string) error {
	unlock := s.locks.Lock(uid)
	m, err := s.mustGet(ctx, uid, "stop")
	if err != nil {
		unlock()
		return err
	}

	promote := false
	switch m.Status {
	case queue.StatusDownloading:
		if h := s.handle(uid); h != nil {
			h.transfer.Stop()
			s.logger.Info("stop requested", logging.MissionUID(uid))
			break
		}
		err = s.setStatus(ctx, uid, queue.StatusStopped)
		promote = err == nil
	case queue.StatusWaiting:
		err = s.setStatus(ctx, uid, queue.StatusStopped)
	case queue.StatusStopped:
		if h := s.takeHandle(uid); h != nil {
			h.transfer.Stop()
		}
	default:
		err = invalidState("stop", m)
	}
	unlock()

	if promote {
		s.insertNextWaiting(ctx)
	}
	return err
}

// Delete stops any transfer, removes the record and its staging directory,
// and waits for the transfer to exit or ctx to end.
func (s *Scheduler) Delete(ctx context.Context, uid string) error {
	unlock := s.locks.Lock(uid)
	m, err := s.mustGet(ctx, uid, "delete")
	if err != nil {
		unlock()
		return err
	}
	h := s.takeHandle(uid)
	if _, err := s.store.Delete(ctx, uid); err != nil {
		unlock()
		return err
	}
	unlock()

	if h != nil {
		h.transfer.Stop()
		select {
		case <-h.transfer.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := fileutil.RemoveTree(m.WorkDir); err != nil {
		logging.WarnWithContext(s.logger, "staging cleanup failed", "staging_cleanup_failed",
			logging.MissionUID(uid),
			logging.String("work_dir", m.WorkDir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "segment files remain on disk"),
		)
	}
	s.logger.Info("mission deleted", logging.MissionUID(uid), logging.String("status", string(m.Status)))

	if m.Status == queue.StatusDownloading {
		s.insertNextWaiting(ctx)
	}
	return nil
}

// InitMissionsOnStartup returns interrupted missions to the queue and admits
// the oldest of them.
func (s *Scheduler) InitMissionsOnStartup(ctx context.Context) error {
	reset, err := s.store.ResetInterrupted(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		s.logger.Info("interrupted missions requeued", logging.Int64("count", reset))
	}
	s.pruneStaging(ctx)
	s.insertNextWaiting(ctx)
	return nil
}

// pruneStaging removes work directories that no stored mission owns.
func (s *Scheduler) pruneStaging(ctx context.Context) {
	uids, err := s.store.UIDs(ctx)
	if err != nil {
		s.logStoreError("list mission uids", "", err)
		return
	}
	known := make(map[string]struct{}, len(uids))
	for _, uid := range uids {
		known[uid] = struct{}{}
	}
	if result := staging.PruneOrphans(s.cfg.Paths.StagingDir, known, s.logger); len(result.Removed) > 0 {
		s.logger.Info("orphaned staging directories removed", logging.Int("count", len(result.Removed)))
	}
}

// insertNextWaiting fills free slots with the oldest waiting missions.
func (s *Scheduler) insertNextWaiting(ctx context.Context) {
	s.admitMu.Lock()
	defer s.admitMu.Unlock()
	if s.isClosing() {
		return
	}

	active, err := s.store.CountByStatus(ctx, queue.StatusDownloading)
	if err != nil {
		s.logStoreError("count active missions", "", err)
		return
	}
	free := s.maxConcurrent - active
	if free <= 0 {
		return
	}
	waiting, err := s.store.ByStatusGroup(ctx, queue.GroupWaiting)
	if err != nil {
		s.logStoreError("list waiting missions", "", err)
		return
	}

	for _, candidate := range waiting {
		if free == 0 {
			return
		}
		if s.admitWaiting(ctx, candidate.UID) {
			free--
		}
	}
}

// admitWaiting starts uid when it is still waiting. It reports whether a
// slot was consumed.
func (s *Scheduler) admitWaiting(ctx context.Context, uid string) bool {
	unlock := s.locks.Lock(uid)
	defer unlock()

	m, err := s.store.Get(ctx, uid)
	if err != nil {
		s.logStoreError("load waiting mission", uid, err)
		return false
	}
	if m == nil || m.Status != queue.StatusWaiting {
		return false
	}
	if err := s.setStatus(ctx, uid, queue.StatusDownloading); err != nil {
		s.logStoreError("admit mission", uid, err)
		return false
	}
	m.Status = queue.StatusDownloading
	if err := s.activateLocked(m); err != nil {
		s.failLocked(m, err)
		return false
	}
	s.logger.Info("mission admitted", logging.MissionUID(uid), logging.String("name", m.Name))
	return true
}

// activateLocked attaches a running transfer to m. The caller holds the uid
// lock. A resident paused transfer is resumed when it accepts; otherwise a
// fresh one is built and resumes from the on-disk checkpoint.
func (s *Scheduler) activateLocked(m *queue.Mission) error {
	if h := s.takeHandle(m.UID); h != nil {
		if h.transfer.Resume() {
			h.lastStatus = queue.StatusDownloading
			s.mu.Lock()
			s.handles[m.UID] = h
			s.mu.Unlock()
			return nil
		}
		h.transfer.Stop()
	}

	s.mu.Lock()
	s.nextGen++
	gen := s.nextGen
	s.mu.Unlock()

	uid := m.UID
	observer := download.ObserverFunc(func(ev download.Event) {
		s.updateMission(uid, gen, ev)
	})
	transfer, err := s.factory(m, observer)
	if err != nil {
		return err
	}
	h := &handle{
		gen:        gen,
		transfer:   transfer,
		sampler:    logging.NewProgressSampler(progressLogEvery),
		lastStatus: queue.StatusDownloading,
	}
	s.mu.Lock()
	s.handles[uid] = h
	s.mu.Unlock()

	if err := transfer.Start(s.baseCtx); err != nil {
		s.dropHandle(uid, gen)
		return err
	}
	return nil
}

// failLocked records a start failure. The caller holds the uid lock.
func (s *Scheduler) failLocked(m *queue.Mission, cause error) {
	uid := m.UID
	logging.ErrorWithContext(s.logger, "mission start failed", "mission_start_failed",
		logging.MissionUID(uid),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "check the mission url and preset"),
	)
	ctx, cancel := storeContext()
	defer cancel()
	msg := cause.Error()
	if err := s.store.Update(ctx, uid, queue.Patch{
		Status:  ptr(queue.StatusFailed),
		Message: &msg,
	}); err != nil {
		s.logStoreError("mark mission failed", uid, err)
	}
	s.notify(notifications.EventMissionFailed, failurePayload(m, msg))
}

func (s *Scheduler) mustGet(ctx context.Context, uid, op string) (*queue.Mission, error) {
	m, err := s.store.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, services.Wrap(services.ErrNotFound, "scheduler", op, fmt.Sprintf("mission %s not found", uid), nil)
	}
	return m, nil
}

func (s *Scheduler) setStatus(ctx context.Context, uid string, status queue.Status) error {
	patch := queue.Patch{Status: &status}
	if status == queue.StatusWaiting || status == queue.StatusDownloading {
		empty := ""
		patch.Speed = &empty
	}
	return s.store.Update(ctx, uid, patch)
}

func (s *Scheduler) logStoreError(msg, uid string, err error) {
	attrs := []logging.Attr{
		logging.Error(err),
		logging.String(logging.FieldImpact, "mission state may lag behind the transfer"),
	}
	if uid != "" {
		attrs = append(attrs, logging.MissionUID(uid))
	}
	logging.WarnWithContext(s.logger, msg, "store_update_failed", attrs...)
}

func invalidState(op string, m *queue.Mission) error {
	return services.Wrap(services.ErrInvalidState, "scheduler", op,
		fmt.Sprintf("mission %s is %s", m.UID, m.Status), nil)
}
