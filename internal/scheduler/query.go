package scheduler

import (
	"context"

	"shuttle/internal/queue"
)

// Get returns one mission or an ErrNotFound-marked error.
func (s *Scheduler) Get(ctx context.Context, uid string) (*queue.Mission, error) {
	return s.mustGet(ctx, uid, "get")
}

// List returns one page of missions.
func (s *Scheduler) List(ctx context.Context, q queue.PageQuery) (queue.Page, error) {
	return s.store.ListPage(ctx, q)
}

// Stats reports per-status counts and slot usage.
func (s *Scheduler) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	for _, status := range queue.AllStatuses() {
		if _, ok := counts[status]; !ok {
			counts[status] = 0
		}
	}
	return Stats{
		Counts:        counts,
		Active:        counts[queue.StatusDownloading],
		MaxConcurrent: s.maxConcurrent,
	}, nil
}
