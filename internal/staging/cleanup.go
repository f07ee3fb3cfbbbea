// Package staging reclaims per-mission work directories under the staging
// root. Each mission owns staging_dir/<uid>; directories with no matching
// mission row are left behind by crashes or manual database edits.
package staging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"shuttle/internal/logging"
)

// Result lists what a prune removed and what it could not.
type Result struct {
	Removed []string
	Errors  []Failure
}

// Failure pairs a directory with the error that kept it on disk.
type Failure struct {
	Path string
	Err  error
}

// PruneOrphans removes every directory under stagingDir whose name is not in
// known. Plain files are left alone.
func PruneOrphans(stagingDir string, known map[string]struct{}, logger *slog.Logger) Result {
	var result Result
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, Failure{Path: stagingDir, Err: err})
		}
		return result
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, ok := known[entry.Name()]; ok {
			continue
		}
		dir := filepath.Join(stagingDir, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			result.Errors = append(result.Errors, Failure{Path: dir, Err: err})
			logging.WarnWithContext(logger, "failed to remove orphaned staging directory", "staging_cleanup_failed",
				logging.String("path", dir),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dir)
		logger.Info("removed orphaned staging directory",
			logging.String("path", dir),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return result
}

// Usage sums the bytes held under stagingDir. Unreadable entries are skipped.
func Usage(stagingDir string) int64 {
	var size int64
	_ = filepath.WalkDir(stagingDir, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
