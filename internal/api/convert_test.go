package api_test

import (
	"testing"
	"time"

	"shuttle/internal/api"
	"shuttle/internal/queue"
)

func TestFromMission(t *testing.T) {
	skip := true
	created := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.FixedZone("x", 3600))
	m := &queue.Mission{
		UID:          "uid-1",
		Name:         "episode",
		URL:          "https://example.invalid/a.m3u8",
		Status:       queue.StatusCompleted,
		Percent:      100,
		SizeBytes:    1_500_000,
		OutputPath:   "/out/episode.mp4",
		OutputFormat: "mp4",
		Options:      queue.Options{Concurrency: 4, SkipFailedSegments: &skip},
		Skipped:      []int{2},
		CreatedAt:    created,
	}

	dto := api.FromMission(m)
	if dto.Status != "completed" || dto.Format != "mp4" || dto.Percent != 100 {
		t.Fatalf("unexpected dto %+v", dto)
	}
	if dto.Size != "1.5 MB" {
		t.Fatalf("size = %q, want 1.5 MB", dto.Size)
	}
	if dto.CreatedAt != "2026-03-04T04:06:07.008Z" {
		t.Fatalf("createdAt = %q", dto.CreatedAt)
	}
	if dto.UpdatedAt != "" {
		t.Fatalf("zero updatedAt rendered as %q", dto.UpdatedAt)
	}
	if dto.Options.Concurrency != 4 || dto.Options.SkipFailedSegments == nil || !*dto.Options.SkipFailedSegments {
		t.Fatalf("options = %+v", dto.Options)
	}

	if got := api.FromMission(nil); got.UID != "" {
		t.Fatalf("nil mission converted to %+v", got)
	}
}

func TestFromPageAndOptions(t *testing.T) {
	page := queue.Page{
		Rows:       []*queue.Mission{{UID: "a"}, {UID: "b"}},
		Count:      5,
		TotalPages: 3,
		Page:       2,
		PageSize:   2,
	}
	resp := api.FromPage(page)
	if len(resp.Missions) != 2 || resp.Missions[1].UID != "b" || resp.TotalPages != 3 || resp.Page != 2 {
		t.Fatalf("unexpected page %+v", resp)
	}
	if empty := api.FromPage(queue.Page{}); empty.Missions == nil {
		t.Fatal("empty page should encode an empty list")
	}

	insecure := true
	opts := api.MissionOptions{MaxRetries: 2, InsecureTLS: &insecure}.QueueOptions()
	if opts.MaxRetries != 2 || opts.InsecureTLS == nil || !*opts.InsecureTLS {
		t.Fatalf("queue options = %+v", opts)
	}

	stats := api.MergeStats(map[queue.Status]int{queue.StatusWaiting: 3})
	if stats["waiting"] != 3 {
		t.Fatalf("stats = %v", stats)
	}
}
