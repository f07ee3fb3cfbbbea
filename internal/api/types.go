package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Mission describes a mission in a transport-friendly format.
type Mission struct {
	UID        string            `json:"uid"`
	Name       string            `json:"name"`
	URL        string            `json:"url"`
	Status     string            `json:"status"`
	Percent    int               `json:"percent"`
	Speed      string            `json:"speed,omitempty"`
	SizeBytes  int64             `json:"sizeBytes"`
	Size       string            `json:"size,omitempty"`
	Timemark   string            `json:"timemark,omitempty"`
	Message    string            `json:"message,omitempty"`
	OutputPath string            `json:"outputPath"`
	Format     string            `json:"format"`
	Preset     string            `json:"preset,omitempty"`
	UserAgent  string            `json:"userAgent,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Options    MissionOptions    `json:"options"`
	Skipped    []int             `json:"skipped,omitempty"`
	CreatedAt  string            `json:"createdAt,omitempty"`
	UpdatedAt  string            `json:"updatedAt,omitempty"`
}

// MissionOptions carries per-mission engine overrides. Zero values defer to
// the daemon configuration.
type MissionOptions struct {
	Concurrency        int   `json:"concurrency,omitempty"`
	MaxRetries         int   `json:"maxRetries,omitempty"`
	RetryDelayMS       int   `json:"retryDelayMs,omitempty"`
	MaxSegmentRetries  int   `json:"maxSegmentRetries,omitempty"`
	SkipFailedSegments *bool `json:"skipFailedSegments,omitempty"`
	InsecureTLS        *bool `json:"insecureTls,omitempty"`
	KeepTemp           *bool `json:"keepTemp,omitempty"`
}

// CreateMissionRequest is the body of POST /api/missions.
type CreateMissionRequest struct {
	URL        string            `json:"url"`
	Name       string            `json:"name,omitempty"`
	Dir        string            `json:"dir,omitempty"`
	Format     string            `json:"format,omitempty"`
	Preset     string            `json:"preset,omitempty"`
	UserAgent  string            `json:"userAgent,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	TimeSuffix *bool             `json:"timeSuffix,omitempty"`
	Options    MissionOptions    `json:"options"`
}

// CreateMissionResponse reports the created mission.
type CreateMissionResponse struct {
	UID    string `json:"uid"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// MissionResponse wraps a single mission.
type MissionResponse struct {
	Mission Mission `json:"mission"`
}

// MissionListResponse is one page of missions.
type MissionListResponse struct {
	Missions   []Mission `json:"missions"`
	Count      int       `json:"count"`
	TotalPages int       `json:"totalPages"`
	Page       int       `json:"page"`
	PageSize   int       `json:"pageSize"`
}

// ListQuery selects a page of missions.
type ListQuery struct {
	Page     int
	PageSize int
	Status   string
	Sort     string
	Order    string
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	Bind          string             `json:"bind"`
	QueueDBPath   string             `json:"queueDbPath"`
	LockFilePath  string             `json:"lockFilePath"`
	Assembler     string             `json:"assembler"`
	StagingBytes  int64              `json:"stagingBytes"`
	StagingUsage  string             `json:"stagingUsage,omitempty"`
	MaxConcurrent int                `json:"maxConcurrent"`
	Active        int                `json:"active"`
	Counts        map[string]int     `json:"counts"`
	Dependencies  []DependencyStatus `json:"dependencies"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
