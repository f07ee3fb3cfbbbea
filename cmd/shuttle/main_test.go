package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"shuttle/internal/api"
)

type fakeDaemon struct {
	mu       sync.Mutex
	created  []api.CreateMissionRequest
	actions  []string
	deleted  []string
	missions map[string]api.Mission
	polls    int
	token    string
}

func newFakeDaemon(t *testing.T) (*fakeDaemon, *httptest.Server) {
	t.Helper()
	fd := &fakeDaemon{missions: map[string]api.Mission{
		"m-1": {UID: "m-1", Name: "show", Status: "downloading", Percent: 40, Speed: "1.2 MB/s", Size: "12 MB"},
	}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, api.DaemonStatus{
			Running:       true,
			PID:           42,
			Bind:          "127.0.0.1:7490",
			Assembler:     "concat",
			MaxConcurrent: 5,
			Active:        1,
			Counts:        map[string]int{"downloading": 1, "completed": 3},
			Dependencies: []api.DependencyStatus{
				{Name: "FFmpeg", Command: "ffmpeg", Optional: true, Available: false},
			},
		})
	})
	mux.HandleFunc("GET /api/missions", func(w http.ResponseWriter, r *http.Request) {
		fd.mu.Lock()
		defer fd.mu.Unlock()
		var rows []api.Mission
		for _, m := range fd.missions {
			rows = append(rows, m)
		}
		writeTestJSON(w, http.StatusOK, api.MissionListResponse{Missions: rows, Count: len(rows), TotalPages: 1, Page: 1, PageSize: 20})
	})
	mux.HandleFunc("POST /api/missions", func(w http.ResponseWriter, r *http.Request) {
		fd.mu.Lock()
		defer fd.mu.Unlock()
		if fd.token != "" && r.Header.Get("Authorization") != "Bearer "+fd.token {
			writeTestJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
			return
		}
		var req api.CreateMissionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeTestJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: err.Error(), Kind: "validation"})
			return
		}
		fd.created = append(fd.created, req)
		writeTestJSON(w, http.StatusCreated, api.CreateMissionResponse{UID: "m-2", Name: req.Name, Status: "downloading"})
	})
	mux.HandleFunc("GET /api/missions/{uid}", func(w http.ResponseWriter, r *http.Request) {
		fd.mu.Lock()
		defer fd.mu.Unlock()
		m, ok := fd.missions[r.PathValue("uid")]
		if !ok {
			writeTestJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "mission not found", Kind: "not_found"})
			return
		}
		fd.polls++
		if fd.polls >= 2 {
			m.Status = "completed"
			m.Percent = 100
			m.OutputPath = "/out/show.mp4"
			fd.missions[m.UID] = m
		}
		writeTestJSON(w, http.StatusOK, api.MissionResponse{Mission: m})
	})
	mux.HandleFunc("POST /api/missions/{uid}/{action}", func(w http.ResponseWriter, r *http.Request) {
		fd.mu.Lock()
		defer fd.mu.Unlock()
		m, ok := fd.missions[r.PathValue("uid")]
		if !ok {
			writeTestJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "mission not found", Kind: "not_found"})
			return
		}
		fd.actions = append(fd.actions, r.PathValue("action")+":"+m.UID)
		m.Status = "stopped"
		writeTestJSON(w, http.StatusAccepted, api.MissionResponse{Mission: m})
	})
	mux.HandleFunc("DELETE /api/missions/{uid}", func(w http.ResponseWriter, r *http.Request) {
		fd.mu.Lock()
		defer fd.mu.Unlock()
		fd.deleted = append(fd.deleted, r.PathValue("uid"))
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fd, srv
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(home, "missing.toml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestAddSendsRequest(t *testing.T) {
	fd, srv := newFakeDaemon(t)
	fd.token = "secret"

	out, err := runCLI(t, "--api", srv.URL, "--token", "secret",
		"add", "https://cdn.example/live.m3u8",
		"--name", "Show", "--format", "mkv",
		"-H", "Referer=https://example",
		"--threads", "8", "--skip-failed", "--no-time-suffix")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "Queued Show (m-2) as downloading") {
		t.Fatalf("unexpected output: %q", out)
	}
	if len(fd.created) != 1 {
		t.Fatalf("created = %d, want 1", len(fd.created))
	}
	req := fd.created[0]
	if req.URL != "https://cdn.example/live.m3u8" || req.Format != "mkv" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Headers["Referer"] != "https://example" {
		t.Fatalf("headers = %v", req.Headers)
	}
	if req.Options.Concurrency != 8 || req.Options.SkipFailedSegments == nil || !*req.Options.SkipFailedSegments {
		t.Fatalf("options = %+v", req.Options)
	}
	if req.Options.InsecureTLS != nil {
		t.Fatalf("insecure should be unset when flag absent")
	}
	if req.TimeSuffix == nil || *req.TimeSuffix {
		t.Fatalf("time suffix = %v, want false", req.TimeSuffix)
	}
}

func TestAddRejectsUnauthorized(t *testing.T) {
	fd, srv := newFakeDaemon(t)
	fd.token = "secret"

	_, err := runCLI(t, "--api", srv.URL, "add", "https://cdn.example/a.m3u8")
	if err == nil {
		t.Fatal("expected unauthorized error")
	}
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401", err)
	}
}

func TestListRendersTable(t *testing.T) {
	_, srv := newFakeDaemon(t)
	out, err := runCLI(t, "--api", srv.URL, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"UID", "m-1", "show", "downloading", "40%", "Page 1 of 1 (1 missions)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestListJSON(t *testing.T) {
	_, srv := newFakeDaemon(t)
	out, err := runCLI(t, "--api", srv.URL, "list", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var resp api.MissionListResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if resp.Count != 1 || resp.Missions[0].UID != "m-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestControlAndRemove(t *testing.T) {
	fd, srv := newFakeDaemon(t)
	out, err := runCLI(t, "--api", srv.URL, "stop", "m-1")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !strings.Contains(out, "m-1 show: stopped") {
		t.Fatalf("unexpected output: %q", out)
	}
	if _, err := runCLI(t, "--api", srv.URL, "pause", "missing"); err == nil {
		t.Fatal("expected error for unknown mission")
	}
	if _, err := runCLI(t, "--api", srv.URL, "rm", "m-1"); err != nil {
		t.Fatalf("rm: %v", err)
	}
	if len(fd.actions) != 1 || fd.actions[0] != "stop:m-1" {
		t.Fatalf("actions = %v", fd.actions)
	}
	if len(fd.deleted) != 1 || fd.deleted[0] != "m-1" {
		t.Fatalf("deleted = %v", fd.deleted)
	}
}

func TestWatchStopsAtTerminalStatus(t *testing.T) {
	_, srv := newFakeDaemon(t)
	out, err := runCLI(t, "--api", srv.URL, "watch", "m-1", "--interval", "10ms")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !strings.Contains(out, "Completed: /out/show.mp4") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestShowDetail(t *testing.T) {
	_, srv := newFakeDaemon(t)
	out, err := runCLI(t, "--api", srv.URL, "show", "m-1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "UID:") || !strings.Contains(out, "m-1") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestStatusRendersDaemonState(t *testing.T) {
	_, srv := newFakeDaemon(t)
	out, err := runCLI(t, "--api", srv.URL, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"== Daemon ==", "[OK] yes", "1 of 5 in use", "completed", "ffmpeg not found (optional)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "conf", "shuttle.toml")
	out, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("unexpected output: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample not written: %v", err)
	}
	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when file exists")
	}
	if _, err := runCLI(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", in: nil, want: nil},
		{name: "equals", in: []string{"Referer=https://a"}, want: map[string]string{"Referer": "https://a"}},
		{name: "colon", in: []string{"Cookie: a=b"}, want: map[string]string{"Cookie": "a=b"}},
		{name: "value with equals", in: []string{"X-Token=a=b"}, want: map[string]string{"X-Token": "a=b"}},
		{name: "equals value with colon", in: []string{"Referer=https://a:8080/x"}, want: map[string]string{"Referer": "https://a:8080/x"}},
		{name: "colon value with url", in: []string{"Origin: https://a.example"}, want: map[string]string{"Origin": "https://a.example"}},
		{name: "missing separator", in: []string{"bogus"}, wantErr: true},
		{name: "empty key", in: []string{"=value"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHeaders(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Fatalf("got[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"only"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "only") || !strings.Contains(out, "A") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("empty headers should render nothing")
	}
}

func TestWatchFinished(t *testing.T) {
	for status, want := range map[string]bool{
		"waiting":     false,
		"downloading": false,
		"stopped":     true,
		"completed":   true,
		"failed":      true,
	} {
		if got := watchFinished(status); got != want {
			t.Errorf("watchFinished(%q) = %v, want %v", status, got, want)
		}
	}
}

func TestLogsFiltersByMission(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", base)
	logDir := filepath.Join(base, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := "INFO mission created mission_uid=aaa\nINFO mission created mission_uid=bbb\nINFO mission completed mission_uid=aaa\n"
	if err := os.WriteFile(filepath.Join(logDir, "shuttle.log"), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	configPath := filepath.Join(base, "shuttle.toml")
	configBody := "[paths]\nlog_dir = \"" + logDir + "\"\n"
	if err := os.WriteFile(configPath, []byte(configBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", configPath, "logs", "--mission", "aaa", "-n", "5"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("logs: %v", err)
	}
	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(got) != 2 || !strings.Contains(got[1], "completed") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}
