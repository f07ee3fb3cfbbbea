package deps_test

import (
	"os"
	"path/filepath"
	"testing"

	"shuttle/internal/config"
	"shuttle/internal/deps"
)

func writeStub(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	present := writeStub(t, t.TempDir(), "present")
	reqs := []deps.Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Empty", Command: "  "},
	}

	results := deps.CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" || results[0].Command != present {
		t.Fatalf("unexpected present result %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" || results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected missing result %#v", results[1])
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected empty result %#v", results[2])
	}

	missing := deps.MissingRequired(results)
	if len(missing) != 2 {
		t.Fatalf("missing required = %d, want 2", len(missing))
	}
}

func TestRequirementsFollowAssemblyMode(t *testing.T) {
	cfg := config.Default()

	cfg.Assembly.Mode = "concat"
	if reqs := deps.Requirements(&cfg); len(reqs) != 0 {
		t.Fatalf("concat mode requirements = %+v", reqs)
	}

	cfg.Assembly.Mode = "auto"
	reqs := deps.Requirements(&cfg)
	if len(reqs) != 1 || !reqs[0].Optional {
		t.Fatalf("auto mode requirements = %+v", reqs)
	}

	cfg.Presets = map[string]config.Preset{"small": {VideoCodec: "libx264"}}
	if reqs := deps.Requirements(&cfg); reqs[0].Optional {
		t.Fatal("presets should make ffmpeg required")
	}

	cfg.Assembly.Mode = "ffmpeg"
	cfg.Assembly.FFmpegBinary = "/opt/ffmpeg/bin/ffmpeg"
	reqs = deps.Requirements(&cfg)
	if len(reqs) != 1 || reqs[0].Optional || reqs[0].Command != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("ffmpeg mode requirements = %+v", reqs)
	}
}

func TestCheckResolvesFromPath(t *testing.T) {
	dir := t.TempDir()
	stub := writeStub(t, dir, "ffmpeg")
	t.Setenv("PATH", dir)

	cfg := config.Default()
	cfg.Assembly.Mode = "ffmpeg"
	results := deps.Check(&cfg)
	if len(results) != 1 || !results[0].Available || results[0].Command != stub {
		t.Fatalf("unexpected results %+v", results)
	}
}
