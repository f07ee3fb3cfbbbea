package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a mission.
type Status string

const (
	StatusWaiting     Status = "waiting"
	StatusDownloading Status = "downloading"
	StatusStopped     Status = "stopped"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

var allStatuses = []Status{
	StatusWaiting,
	StatusDownloading,
	StatusStopped,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns every mission status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no transition leads out of the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StatusGroup names a set of statuses queried together.
type StatusGroup string

const (
	GroupWaiting     StatusGroup = "waiting"
	GroupDownloading StatusGroup = "downloading"
	GroupFinished    StatusGroup = "finished"
	// GroupNeedResume holds missions interrupted by a restart.
	GroupNeedResume StatusGroup = "needResume"
)

// Statuses returns the statuses that make up the group.
func (g StatusGroup) Statuses() []Status {
	switch g {
	case GroupWaiting:
		return []Status{StatusWaiting}
	case GroupDownloading:
		return []Status{StatusDownloading}
	case GroupFinished:
		return []Status{StatusCompleted, StatusFailed}
	case GroupNeedResume:
		return []Status{StatusWaiting, StatusDownloading}
	default:
		return nil
	}
}

// Options carries per-mission overrides of the download engine defaults.
// Zero values fall back to configuration.
type Options struct {
	Concurrency        int   `json:"concurrency,omitempty"`
	MaxRetries         int   `json:"maxRetries,omitempty"`
	RetryDelayMS       int   `json:"retryDelayMs,omitempty"`
	MaxSegmentRetries  int   `json:"maxSegmentRetries,omitempty"`
	SkipFailedSegments *bool `json:"skipFailedSegments,omitempty"`
	InsecureTLS        *bool `json:"insecureTls,omitempty"`
	KeepTemp           *bool `json:"keepTemp,omitempty"`
}

// Mission is one download job tracked end to end.
type Mission struct {
	ID           int64
	UID          string
	Name         string
	URL          string
	OutputPath   string
	OutputFormat string
	Preset       string
	UserAgent    string
	Headers      map[string]string
	Options      Options
	WorkDir      string

	Status    Status
	Percent   int
	Speed     string
	SizeBytes int64
	Timemark  string
	Message   string
	Skipped   []int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Patch lists the fields an Update call writes. Nil fields are left unchanged.
type Patch struct {
	Status     *Status
	Percent    *int
	Speed      *string
	SizeBytes  *int64
	Timemark   *string
	Message    *string
	Skipped    *[]int
	OutputPath *string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Status == nil && p.Percent == nil && p.Speed == nil && p.SizeBytes == nil &&
		p.Timemark == nil && p.Message == nil && p.Skipped == nil && p.OutputPath == nil
}

// PageQuery selects one page of missions.
type PageQuery struct {
	Page      int
	PageSize  int
	Status    Status
	SortField string
	SortOrder string
}

// Page is one slice of a paged listing.
type Page struct {
	Rows       []*Mission
	Count      int
	TotalPages int
	Page       int
	PageSize   int
}
