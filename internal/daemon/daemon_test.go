package daemon_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"shuttle/internal/api"
	"shuttle/internal/assemble"
	"shuttle/internal/config"
	"shuttle/internal/daemon"
	"shuttle/internal/download"
	"shuttle/internal/logging"
	"shuttle/internal/queue"
	"shuttle/internal/scheduler"
	"shuttle/internal/services"
	"shuttle/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	logger := logging.NewNop()
	factory := download.NewFactory(cfg, assemble.NewConcatAssembler(logger), logger)
	sched := scheduler.New(cfg, store, scheduler.DownloadFactory(factory), logger)
	d, err := daemon.New(cfg, store, sched, logger, daemon.WithAssemblerName(assemble.ModeConcat))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Close(ctx)
	})
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.Addr == "" || status.Assembler != "concat" {
		t.Fatalf("unexpected status %+v", status)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	status, err = d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second := newDaemon(t, cfg)
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected second daemon to fail acquiring the lock")
	}
}

func TestDaemonServesMissionsOverHTTP(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Token = "token"
	payloads := testsupport.SegmentPayloads(3)
	server := testsupport.NewHLSServer(t, payloads)

	d := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client := api.NewClient(api.BaseURL(d.Addr()), "token")
	ctx := context.Background()

	created, err := client.Create(ctx, api.CreateMissionRequest{URL: server.MediaURL(), Name: "clip", Format: "ts"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != "downloading" {
		t.Fatalf("created status = %s", created.Status)
	}

	var mission *api.Mission
	deadline := time.Now().Add(5 * time.Second)
	for {
		mission, err = client.Get(ctx, created.UID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if mission.Status == "completed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("mission status %s after deadline", mission.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	data, err := os.ReadFile(mission.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != string(testsupport.Concat(payloads)) {
		t.Fatal("output does not match segments")
	}

	if _, err := client.Pause(ctx, created.UID); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("Pause completed = %v, want invalid state", err)
	}
	if _, err := api.NewClient(api.BaseURL(d.Addr()), "").Status(ctx); err == nil {
		t.Fatal("expected unauthenticated status to fail")
	}

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Counts["completed"] != 1 || status.MaxConcurrent != cfg.Scheduler.MaxConcurrent {
		t.Fatalf("unexpected status %+v", status)
	}

	if err := client.Delete(ctx, created.UID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := client.Get(ctx, created.UID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Get deleted = %v, want not found", err)
	}
}
