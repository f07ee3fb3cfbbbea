package api

import (
	"github.com/dustin/go-humanize"

	"shuttle/internal/queue"
)

// FromMission converts a mission record to its API representation.
func FromMission(m *queue.Mission) Mission {
	if m == nil {
		return Mission{}
	}
	dto := Mission{
		UID:        m.UID,
		Name:       m.Name,
		URL:        m.URL,
		Status:     string(m.Status),
		Percent:    m.Percent,
		Speed:      m.Speed,
		SizeBytes:  m.SizeBytes,
		Timemark:   m.Timemark,
		Message:    m.Message,
		OutputPath: m.OutputPath,
		Format:     m.OutputFormat,
		Preset:     m.Preset,
		UserAgent:  m.UserAgent,
		Headers:    m.Headers,
		Options:    fromOptions(m.Options),
		Skipped:    m.Skipped,
	}
	if m.SizeBytes > 0 {
		dto.Size = humanize.Bytes(uint64(m.SizeBytes))
	}
	if !m.CreatedAt.IsZero() {
		dto.CreatedAt = m.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !m.UpdatedAt.IsZero() {
		dto.UpdatedAt = m.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromMissions converts a slice of mission records into API DTOs.
func FromMissions(missions []*queue.Mission) []Mission {
	out := make([]Mission, 0, len(missions))
	for _, m := range missions {
		out = append(out, FromMission(m))
	}
	return out
}

// FromPage converts a store page to its API payload.
func FromPage(page queue.Page) MissionListResponse {
	return MissionListResponse{
		Missions:   FromMissions(page.Rows),
		Count:      page.Count,
		TotalPages: page.TotalPages,
		Page:       page.Page,
		PageSize:   page.PageSize,
	}
}

// MergeStats produces a string-keyed representation of mission counts.
func MergeStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// QueueOptions converts transport overrides to the store representation.
func (o MissionOptions) QueueOptions() queue.Options {
	return queue.Options{
		Concurrency:        o.Concurrency,
		MaxRetries:         o.MaxRetries,
		RetryDelayMS:       o.RetryDelayMS,
		MaxSegmentRetries:  o.MaxSegmentRetries,
		SkipFailedSegments: o.SkipFailedSegments,
		InsecureTLS:        o.InsecureTLS,
		KeepTemp:           o.KeepTemp,
	}
}

func fromOptions(o queue.Options) MissionOptions {
	return MissionOptions{
		Concurrency:        o.Concurrency,
		MaxRetries:         o.MaxRetries,
		RetryDelayMS:       o.RetryDelayMS,
		MaxSegmentRetries:  o.MaxSegmentRetries,
		SkipFailedSegments: o.SkipFailedSegments,
		InsecureTLS:        o.InsecureTLS,
		KeepTemp:           o.KeepTemp,
	}
}
