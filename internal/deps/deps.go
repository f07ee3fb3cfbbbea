package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"shuttle/internal/assemble"
	"shuttle/internal/config"
)

// Requirement defines an external binary shuttle may execute.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the binaries the configured assembly mode relies on.
// ffmpeg is optional in auto mode, where its absence selects the concat
// assembler, and is not consulted at all in concat mode.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.Assembly.Mode))
	switch mode {
	case assemble.ModeConcat:
		return nil
	case assemble.ModeFFmpeg:
		return []Requirement{{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Remuxes and re-encodes downloaded segments",
		}}
	default:
		return []Requirement{{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Remuxes segments; byte concatenation is used when missing",
			Optional:    len(cfg.Presets) == 0,
		}}
	}
}

// Check evaluates the requirements for cfg.
func Check(cfg *config.Config) []Status {
	return CheckBinaries(Requirements(cfg))
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Available binaries record their resolved path as the command.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		default:
			resolved, err := exec.LookPath(cmd)
			if err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
				break
			}
			status.Command = resolved
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the required dependencies that are unavailable.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Optional && !s.Available {
			missing = append(missing, s)
		}
	}
	return missing
}
