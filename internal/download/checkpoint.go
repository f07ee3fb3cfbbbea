package download

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"shuttle/internal/fileutil"
)

// CheckpointFile is the resume state file kept in a mission work dir.
const CheckpointFile = "checkpoint.json"

// Checkpoint persists download counters so a restarted engine resumes its
// totals. Segment completion itself is derived from files on disk.
type Checkpoint struct {
	URL             string  `json:"url"`
	TotalSegments   int     `json:"totalSegments"`
	DownloadedCount int     `json:"downloadedCount"`
	FailedCount     int     `json:"failedCount"`
	RetryCount      int     `json:"retryCount"`
	DownloadedBytes int64   `json:"downloadedBytes"`
	StartTime       int64   `json:"startTime"`
	LastSpeedUpdate int64   `json:"lastSpeedUpdate"`
	LastBytes       int64   `json:"lastBytes"`
	CurrentSpeed    float64 `json:"currentSpeed"`
	AverageSpeed    float64 `json:"averageSpeed"`
	Timestamp       int64   `json:"timestamp"`
}

// CheckpointPath returns the checkpoint location for workDir.
func CheckpointPath(workDir string) string {
	return filepath.Join(workDir, CheckpointFile)
}

// LoadCheckpoint reads the checkpoint for url. It returns nil without error
// when none exists or it belongs to another source.
func LoadCheckpoint(workDir, url string) (*Checkpoint, error) {
	data, err := os.ReadFile(CheckpointPath(workDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if cp.URL != url {
		return nil, nil
	}
	if cp.DownloadedCount > cp.TotalSegments {
		cp.DownloadedCount = cp.TotalSegments
	}
	if cp.DownloadedCount < 0 {
		cp.DownloadedCount = 0
	}
	return &cp, nil
}

// SaveCheckpoint writes cp atomically and stamps its timestamp.
func SaveCheckpoint(workDir string, cp Checkpoint) error {
	cp.Timestamp = time.Now().UnixMilli()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := fileutil.WriteAtomic(CheckpointPath(workDir), data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// StartedAt returns the recorded start time, or zero.
func (c *Checkpoint) StartedAt() time.Time {
	if c == nil || c.StartTime == 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.StartTime)
}
