package scheduler

import (
	"context"

	"shuttle/internal/download"
	"shuttle/internal/queue"
)

// Transfer is a running download the scheduler controls. Implementations
// must report through the observer they were built with and never call it
// synchronously from these methods.
type Transfer interface {
	Start(ctx context.Context) error
	Pause() bool
	Resume() bool
	Stop()
	Done() <-chan struct{}
}

// Factory builds a transfer for m that reports to observer.
type Factory func(m *queue.Mission, observer download.Observer) (Transfer, error)

// DownloadFactory adapts the download engine factory.
func DownloadFactory(f *download.Factory) Factory {
	return func(m *queue.Mission, observer download.Observer) (Transfer, error) {
		engine, err := f.New(m, observer)
		if err != nil {
			return nil, err
		}
		return engine, nil
	}
}
