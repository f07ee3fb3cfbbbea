package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"shuttle/internal/config"
	"shuttle/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewMission inserts a mission with the given status. createdAt orders FIFO queries.
func NewMission(t testing.TB, store *queue.Store, name string, status queue.Status, createdAt time.Time) *queue.Mission {
	t.Helper()

	m := &queue.Mission{
		UID:        uuid.NewString(),
		Name:       name,
		URL:        "https://example.invalid/" + name + ".m3u8",
		OutputPath: "/tmp/" + name + ".mp4",
		Status:     status,
		CreatedAt:  createdAt,
	}
	if err := store.Create(context.Background(), m); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return m
}
