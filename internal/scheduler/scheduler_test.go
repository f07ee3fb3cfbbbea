package scheduler_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"shuttle/internal/assemble"
	"shuttle/internal/config"
	"shuttle/internal/download"
	"shuttle/internal/logging"
	"shuttle/internal/queue"
	"shuttle/internal/scheduler"
	"shuttle/internal/services"
	"shuttle/internal/testsupport"
)

type fakeTransfer struct {
	uid        string
	observer   download.Observer
	manualStop bool

	mu       sync.Mutex
	started  int
	paused   int
	resumed  int
	stopped  int
	done     chan struct{}
	doneOnce sync.Once
}

func (f *fakeTransfer) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return nil
}

func (f *fakeTransfer) Pause() bool {
	f.mu.Lock()
	f.paused++
	f.mu.Unlock()
	go f.observer.OnEvent(download.PausedEvent{})
	return true
}

func (f *fakeTransfer) Resume() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed++
	return true
}

func (f *fakeTransfer) Stop() {
	f.mu.Lock()
	f.stopped++
	manual := f.manualStop
	f.mu.Unlock()
	if manual {
		return
	}
	go func() {
		f.observer.OnEvent(download.StoppedEvent{})
		f.finish()
	}()
}

func (f *fakeTransfer) Done() <-chan struct{} { return f.done }

func (f *fakeTransfer) emit(ev download.Event) { f.observer.OnEvent(ev) }

func (f *fakeTransfer) finish() { f.doneOnce.Do(func() { close(f.done) }) }

func (f *fakeTransfer) counts() (started, paused, resumed, stopped int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.paused, f.resumed, f.stopped
}

type fakeFactory struct {
	manualStop bool

	mu        sync.Mutex
	transfers map[string][]*fakeTransfer
	builds    int
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{transfers: make(map[string][]*fakeTransfer)}
}

func (f *fakeFactory) build(m *queue.Mission, observer download.Observer) (scheduler.Transfer, error) {
	if strings.Contains(m.URL, "broken") {
		return nil, services.Wrap(services.ErrConfiguration, "test", "build", "broken mission", nil)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTransfer{uid: m.UID, observer: observer, manualStop: f.manualStop, done: make(chan struct{})}
	f.transfers[m.UID] = append(f.transfers[m.UID], t)
	f.builds++
	return t, nil
}

func (f *fakeFactory) latest(uid string) *fakeTransfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.transfers[uid]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (f *fakeFactory) finishAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, list := range f.transfers {
		for _, t := range list {
			t.finish()
		}
	}
}

func (f *fakeFactory) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}

type fixture struct {
	sched   *scheduler.Scheduler
	store   *queue.Store
	factory *fakeFactory
}

func newFixture(t *testing.T, maxConcurrent int, opts ...scheduler.Option) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrent(maxConcurrent))
	store := testsupport.MustOpenStore(t, cfg)
	factory := newFakeFactory()
	sched := scheduler.New(cfg, store, factory.build, logging.NewNop(), opts...)
	t.Cleanup(func() {
		factory.finishAll()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
	})
	return &fixture{sched: sched, store: store, factory: factory}
}

func (f *fixture) create(t *testing.T, name string) scheduler.Created {
	t.Helper()
	created, err := f.sched.Create(context.Background(), scheduler.Request{
		URL:  "https://example.invalid/" + name + ".m3u8",
		Name: name,
	})
	if err != nil {
		t.Fatalf("Create %s: %v", name, err)
	}
	return created
}

func (f *fixture) mission(t *testing.T, uid string) *queue.Mission {
	t.Helper()
	m, err := f.store.Get(context.Background(), uid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m == nil {
		t.Fatalf("mission %s missing", uid)
	}
	return m
}

func (f *fixture) waitStatus(t *testing.T, uid string, want queue.Status) *queue.Mission {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		m := f.mission(t, uid)
		if m.Status == want {
			return m
		}
		if time.Now().After(deadline) {
			t.Fatalf("mission %s status %s, want %s", uid, m.Status, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCreateAdmitsUpToMaxConcurrent(t *testing.T) {
	f := newFixture(t, 2)

	a := f.create(t, "a")
	b := f.create(t, "b")
	c := f.create(t, "c")

	if a.Status != queue.StatusDownloading || b.Status != queue.StatusDownloading {
		t.Fatalf("first two statuses = %s, %s", a.Status, b.Status)
	}
	if c.Status != queue.StatusWaiting {
		t.Fatalf("third status = %s, want waiting", c.Status)
	}
	if got := f.factory.buildCount(); got != 2 {
		t.Fatalf("transfers built = %d, want 2", got)
	}
	if started, _, _, _ := f.factory.latest(a.UID).counts(); started != 1 {
		t.Fatalf("started = %d, want 1", started)
	}

	stats, err := f.sched.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Active != 2 || stats.MaxConcurrent != 2 || stats.Counts[queue.StatusWaiting] != 1 || stats.Counts[queue.StatusFailed] != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestCreateRejectsInvalidRequests(t *testing.T) {
	f := newFixture(t, 1)

	tests := []struct {
		name string
		req  scheduler.Request
	}{
		{name: "empty url", req: scheduler.Request{URL: "  "}},
		{name: "unsupported scheme", req: scheduler.Request{URL: "ftp://example.invalid/a.m3u8"}},
		{name: "relative url", req: scheduler.Request{URL: "/a.m3u8"}},
		{name: "unknown preset", req: scheduler.Request{URL: "https://example.invalid/a.m3u8", Preset: "hevc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.sched.Create(context.Background(), tt.req)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("Create error = %v, want validation", err)
			}
		})
	}

	page, err := f.sched.List(context.Background(), queue.PageQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Count != 0 {
		t.Fatalf("rejected requests persisted %d missions", page.Count)
	}
}

func TestCreateDerivesNameAndPaths(t *testing.T) {
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f := newFixture(t, 1, scheduler.WithClock(func() time.Time { return clock }))

	created, err := f.sched.Create(context.Background(), scheduler.Request{URL: "https://example.invalid/a.m3u8"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Name != "shuttle-20260102-030405" {
		t.Fatalf("derived name = %q", created.Name)
	}
	m := f.mission(t, created.UID)
	if filepath.Base(m.OutputPath) != "shuttle-20260102-030405.mp4" {
		t.Fatalf("output path = %q", m.OutputPath)
	}
	if filepath.Base(m.WorkDir) != created.UID {
		t.Fatalf("work dir = %q", m.WorkDir)
	}

	suffix := true
	created, err = f.sched.Create(context.Background(), scheduler.Request{
		URL:        "https://example.invalid/b.m3u8",
		Name:       "My: Show",
		Format:     "MKV",
		TimeSuffix: &suffix,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Name != "My- Show-20260102030405" {
		t.Fatalf("suffixed name = %q", created.Name)
	}
	if got := f.mission(t, created.UID).OutputFormat; got != "mkv" {
		t.Fatalf("format = %q, want mkv", got)
	}
}

func TestCreateKeepsOutputPathsDistinct(t *testing.T) {
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f := newFixture(t, 5, scheduler.WithClock(func() time.Time { return clock }))
	suffix := true

	owners := map[string]string{}
	var outputDir string
	for i := 0; i < 3; i++ {
		created, err := f.sched.Create(context.Background(), scheduler.Request{
			URL:        "https://example.invalid/same-instant.m3u8",
			TimeSuffix: &suffix,
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		m := f.mission(t, created.UID)
		if prev, ok := owners[m.OutputPath]; ok {
			t.Fatalf("missions %s and %s share output path %s", prev, created.UID, m.OutputPath)
		}
		owners[m.OutputPath] = created.UID
		if filepath.Base(m.OutputPath) != created.Name+".mp4" {
			t.Fatalf("output path %q does not match name %q", m.OutputPath, created.Name)
		}
		outputDir = filepath.Dir(m.OutputPath)
	}

	existing := filepath.Join(outputDir, "Show.mp4")
	testsupport.WriteFile(t, existing, []byte("keep me"))
	created, err := f.sched.Create(context.Background(), scheduler.Request{
		URL:  "https://example.invalid/show.m3u8",
		Name: "Show",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m := f.mission(t, created.UID)
	if m.OutputPath == existing || !strings.HasPrefix(created.Name, "Show-") {
		t.Fatalf("name %q, output %q reuse an existing file", created.Name, m.OutputPath)
	}
}

func TestCreateStartFailurePromotesWaiting(t *testing.T) {
	f := newFixture(t, 1)
	queued := testsupport.NewMission(t, f.store, "queued", queue.StatusWaiting, time.Now().Add(-time.Minute))

	created, err := f.sched.Create(context.Background(), scheduler.Request{URL: "https://example.invalid/broken.m3u8"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed", created.Status)
	}
	f.waitStatus(t, queued.UID, queue.StatusDownloading)
}

func TestCreateRejectsEncodePresetWithoutFFmpeg(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Presets["small"] = config.Preset{VideoCodec: "libx264", VideoBitrate: "1M"}
	store := testsupport.MustOpenStore(t, cfg)
	factory := newFakeFactory()
	sched := scheduler.New(cfg, store, factory.build, logging.NewNop(), scheduler.WithEncodeSupport(false))
	t.Cleanup(func() {
		factory.finishAll()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
	})

	_, err := sched.Create(context.Background(), scheduler.Request{URL: "https://example.invalid/a.m3u8", Preset: "Small"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if uids, err := store.UIDs(context.Background()); err != nil || len(uids) != 0 {
		t.Fatalf("rejected mission persisted: %v, %v", uids, err)
	}
	if factory.buildCount() != 0 {
		t.Fatalf("transfer built for rejected mission")
	}

	if _, err := sched.Create(context.Background(), scheduler.Request{URL: "https://example.invalid/b.m3u8"}); err != nil {
		t.Fatalf("stream copy mission rejected: %v", err)
	}
}

func TestCompletionPromotesWaitingFIFO(t *testing.T) {
	f := newFixture(t, 5)

	var created []scheduler.Created
	for _, name := range []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7"} {
		created = append(created, f.create(t, name))
	}
	if created[5].Status != queue.StatusWaiting || created[6].Status != queue.StatusWaiting {
		t.Fatalf("overflow statuses = %s, %s", created[5].Status, created[6].Status)
	}

	first := f.factory.latest(created[0].UID)
	first.emit(download.CompleteEvent{
		Progress:   download.Progress{Percent: 100, Timemark: "00:00:08.00"},
		OutputPath: "/out/m1.mp4",
		SizeBytes:  4096,
	})

	done := f.waitStatus(t, created[0].UID, queue.StatusCompleted)
	if done.Percent != 100 || done.SizeBytes != 4096 || done.OutputPath != "/out/m1.mp4" {
		t.Fatalf("completed mission = %+v", done)
	}
	f.waitStatus(t, created[5].UID, queue.StatusDownloading)
	if got := f.mission(t, created[6].UID).Status; got != queue.StatusWaiting {
		t.Fatalf("m7 status = %s, want waiting", got)
	}

	f.factory.latest(created[1].UID).emit(download.ErrorEvent{Err: errors.New("boom")})
	failed := f.waitStatus(t, created[1].UID, queue.StatusFailed)
	if failed.Message != "boom" {
		t.Fatalf("failure message = %q", failed.Message)
	}
	f.waitStatus(t, created[6].UID, queue.StatusDownloading)
}

func TestStopTurnsStoppedOnlyAfterTransferConfirms(t *testing.T) {
	f := newFixture(t, 1)
	f.factory.manualStop = true

	a := f.create(t, "a")
	b := f.create(t, "b")

	if err := f.sched.Stop(context.Background(), a.UID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	transfer := f.factory.latest(a.UID)
	if _, _, _, stopped := transfer.counts(); stopped != 1 {
		t.Fatalf("transfer stop calls = %d", stopped)
	}
	if got := f.mission(t, a.UID).Status; got != queue.StatusDownloading {
		t.Fatalf("status before confirmation = %s, want downloading", got)
	}

	transfer.emit(download.StoppedEvent{Progress: download.Progress{Percent: 40}})
	f.waitStatus(t, a.UID, queue.StatusStopped)
	f.waitStatus(t, b.UID, queue.StatusDownloading)

	if err := f.sched.Stop(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Stop missing = %v, want not found", err)
	}
}

func TestPauseKeepsTransferAndResumeReusesIt(t *testing.T) {
	f := newFixture(t, 1)
	a := f.create(t, "a")

	if err := f.sched.Pause(context.Background(), a.UID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	f.waitStatus(t, a.UID, queue.StatusStopped)

	if err := f.sched.Pause(context.Background(), a.UID); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("second Pause = %v, want invalid state", err)
	}
	if err := f.sched.Resume(context.Background(), a.UID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := f.mission(t, a.UID).Status; got != queue.StatusDownloading {
		t.Fatalf("status after resume = %s", got)
	}
	if got := f.factory.buildCount(); got != 1 {
		t.Fatalf("transfers built = %d, want the resident one reused", got)
	}
	if _, paused, resumed, _ := f.factory.latest(a.UID).counts(); paused != 1 || resumed != 1 {
		t.Fatalf("paused=%d resumed=%d", paused, resumed)
	}
	if err := f.sched.Resume(context.Background(), a.UID); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("Resume downloading = %v, want invalid state", err)
	}
}

func TestResumeWithoutSlotQueues(t *testing.T) {
	f := newFixture(t, 1)
	a := f.create(t, "a")
	b := f.create(t, "b")

	if err := f.sched.Pause(context.Background(), b.UID); err != nil {
		t.Fatalf("Pause waiting: %v", err)
	}
	if got := f.mission(t, b.UID).Status; got != queue.StatusStopped {
		t.Fatalf("paused waiting mission = %s, want stopped", got)
	}
	if err := f.sched.Resume(context.Background(), b.UID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := f.mission(t, b.UID).Status; got != queue.StatusWaiting {
		t.Fatalf("resume without slot = %s, want waiting", got)
	}

	f.factory.latest(a.UID).emit(download.CompleteEvent{OutputPath: "/out/a.mp4"})
	f.waitStatus(t, b.UID, queue.StatusDownloading)
}

func TestStaleTransferEventsIgnored(t *testing.T) {
	f := newFixture(t, 1)
	a := f.create(t, "a")
	old := f.factory.latest(a.UID)

	if err := f.sched.Pause(context.Background(), a.UID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	f.waitStatus(t, a.UID, queue.StatusStopped)
	if err := f.sched.Stop(context.Background(), a.UID); err != nil {
		t.Fatalf("Stop stopped: %v", err)
	}

	old.emit(download.ProgressEvent{Progress: download.Progress{Percent: 50}})
	if err := f.sched.Resume(context.Background(), a.UID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := f.factory.buildCount(); got != 2 {
		t.Fatalf("transfers built = %d, want a fresh one", got)
	}

	old.emit(download.CompleteEvent{OutputPath: "/out/stale.mp4"})
	m := f.mission(t, a.UID)
	if m.Status != queue.StatusDownloading || m.Percent != 0 {
		t.Fatalf("stale events applied: status=%s percent=%d", m.Status, m.Percent)
	}

	current := f.factory.latest(a.UID)
	current.emit(download.ProgressEvent{Progress: download.Progress{Percent: 40, Speed: "1.0 MB/s"}})
	current.emit(download.ProgressEvent{Progress: download.Progress{Percent: 30}})
	m = f.mission(t, a.UID)
	if m.Percent != 40 {
		t.Fatalf("percent = %d, want monotonic 40", m.Percent)
	}
}

func TestSkipEventsMergeIndices(t *testing.T) {
	f := newFixture(t, 1)
	a := f.create(t, "a")
	transfer := f.factory.latest(a.UID)

	transfer.emit(download.SkipEvent{Index: 3})
	transfer.emit(download.SkipEvent{Index: 1})
	transfer.emit(download.SkipEvent{Index: 3})

	m := f.mission(t, a.UID)
	if len(m.Skipped) != 2 || m.Skipped[0] != 3 || m.Skipped[1] != 1 {
		t.Fatalf("skipped = %v", m.Skipped)
	}
}

func TestStartFailureMarksFailedAndContinues(t *testing.T) {
	f := newFixture(t, 1)
	a := f.create(t, "a")
	broken := f.create(t, "broken")
	c := f.create(t, "c")

	f.factory.latest(a.UID).emit(download.CompleteEvent{OutputPath: "/out/a.mp4"})

	failed := f.waitStatus(t, broken.UID, queue.StatusFailed)
	if !strings.Contains(failed.Message, "broken mission") {
		t.Fatalf("failure message = %q", failed.Message)
	}
	f.waitStatus(t, c.UID, queue.StatusDownloading)

	direct, err := f.sched.Create(context.Background(), scheduler.Request{URL: "https://example.invalid/broken2.m3u8"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if direct.Status != queue.StatusWaiting {
		t.Fatalf("status with busy slot = %s", direct.Status)
	}
}

func TestDeleteStopsTransferAndRemovesStaging(t *testing.T) {
	f := newFixture(t, 1)
	a := f.create(t, "a")
	b := f.create(t, "b")

	m := f.mission(t, a.UID)
	testsupport.WriteFile(t, filepath.Join(m.WorkDir, "000000.ts"), []byte("segment"))

	if err := f.sched.Delete(context.Background(), a.UID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.sched.Get(context.Background(), a.UID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Get deleted = %v, want not found", err)
	}
	if _, _, _, stopped := f.factory.latest(a.UID).counts(); stopped != 1 {
		t.Fatalf("transfer stop calls = %d", stopped)
	}
	if _, err := os.Stat(m.WorkDir); !os.IsNotExist(err) {
		t.Fatalf("work dir still present: %v", err)
	}
	f.waitStatus(t, b.UID, queue.StatusDownloading)

	if err := f.sched.Delete(context.Background(), a.UID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("second Delete = %v, want not found", err)
	}
}

func TestInitMissionsOnStartupReadmitsOldest(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrent(2))
	store := testsupport.MustOpenStore(t, cfg)
	base := time.Now().Add(-time.Hour).UTC()
	oldest := testsupport.NewMission(t, store, "oldest", queue.StatusDownloading, base)
	second := testsupport.NewMission(t, store, "second", queue.StatusWaiting, base.Add(time.Minute))
	third := testsupport.NewMission(t, store, "third", queue.StatusDownloading, base.Add(2*time.Minute))
	stopped := testsupport.NewMission(t, store, "stopped", queue.StatusStopped, base.Add(3*time.Minute))

	kept := filepath.Join(cfg.Paths.StagingDir, stopped.UID)
	ghost := filepath.Join(cfg.Paths.StagingDir, "ghost-mission")
	for _, dir := range []string{kept, ghost} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}

	factory := newFakeFactory()
	sched := scheduler.New(cfg, store, factory.build, logging.NewNop())
	t.Cleanup(func() { _ = sched.Shutdown(context.Background()) })

	if err := sched.InitMissionsOnStartup(context.Background()); err != nil {
		t.Fatalf("InitMissionsOnStartup: %v", err)
	}

	want := map[string]queue.Status{
		oldest.UID:  queue.StatusDownloading,
		second.UID:  queue.StatusDownloading,
		third.UID:   queue.StatusWaiting,
		stopped.UID: queue.StatusStopped,
	}
	for uid, status := range want {
		m, err := sched.Get(context.Background(), uid)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if m.Status != status {
			t.Fatalf("%s status = %s, want %s", m.Name, m.Status, status)
		}
	}
	if factory.buildCount() != 2 {
		t.Fatalf("transfers built = %d, want 2", factory.buildCount())
	}
	if _, err := os.Stat(ghost); !os.IsNotExist(err) {
		t.Fatalf("orphaned staging dir still present: %v", err)
	}
	if _, err := os.Stat(kept); err != nil {
		t.Fatalf("mission staging dir removed: %v", err)
	}
}

func TestShutdownLeavesRowsDownloading(t *testing.T) {
	f := newFixture(t, 2)
	a := f.create(t, "a")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.sched.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := f.mission(t, a.UID).Status; got != queue.StatusDownloading {
		t.Fatalf("status after shutdown = %s, want downloading", got)
	}
	if _, _, _, stopped := f.factory.latest(a.UID).counts(); stopped != 1 {
		t.Fatalf("transfer stop calls = %d", stopped)
	}
	if _, err := f.sched.Create(context.Background(), scheduler.Request{URL: "https://example.invalid/late.m3u8"}); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("Create after shutdown = %v, want invalid state", err)
	}
}

func TestDownloadFactoryEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithMaxConcurrent(2),
		testsupport.WithDownload(func(d *config.Download) { d.Concurrency = 2 }),
	)
	store := testsupport.MustOpenStore(t, cfg)
	payloads := testsupport.SegmentPayloads(4)
	server := testsupport.NewHLSServer(t, payloads)

	logger := logging.NewNop()
	factory := download.NewFactory(cfg, assemble.NewConcatAssembler(logger), logger)
	sched := scheduler.New(cfg, store, scheduler.DownloadFactory(factory), logger)
	t.Cleanup(func() { _ = sched.Shutdown(context.Background()) })

	created, err := sched.Create(context.Background(), scheduler.Request{URL: server.MediaURL(), Name: "episode", Format: "ts"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	f := &fixture{sched: sched, store: store}
	m := f.waitStatus(t, created.UID, queue.StatusCompleted)
	if m.Percent != 100 {
		t.Fatalf("percent = %d", m.Percent)
	}
	data, err := os.ReadFile(m.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != string(testsupport.Concat(payloads)) {
		t.Fatalf("output does not match concatenated segments (%d bytes)", len(data))
	}
	if _, err := os.Stat(download.CheckpointPath(m.WorkDir)); !os.IsNotExist(err) {
		t.Fatalf("checkpoint still present: %v", err)
	}
}
