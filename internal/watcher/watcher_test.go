package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wortwatch/wortwatch/internal/config"
	"github.com/wortwatch/wortwatch/internal/metrics"
	"github.com/wortwatch/wortwatch/internal/report"
	"github.com/wortwatch/wortwatch/internal/storage"
	"github.com/wortwatch/wortwatch/internal/storage/memtier"
)

func testConfig(dir string) config.LandingConfig {
	return config.LandingConfig{
		Dir:            dir,
		Extension:      ".json",
		QueueSize:      16,
		Workers:        2,
		RescanInterval: config.Duration(40 * time.Millisecond),
		DrainTimeout:   config.Duration(2 * time.Second),
	}
}

func testMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func reportBody(ts, batch string) string {
	return fmt.Sprintf(`{"timestamp":%q,"batch_id":%q,"temperature_celsius":18.5,"pressure_psi":12.2,"co2_vol":2.45}`, ts, batch)
}

// drop places a report into the landing directory the way producers do:
// written to a scratch directory first, then renamed into place so the
// file appears atomically.
func drop(t *testing.T, scratch, dir, name, body string) string {
	t.Helper()
	tmp := filepath.Join(scratch, name+".tmp")
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp report: %v", err)
	}
	dst := filepath.Join(dir, name)
	if err := os.Rename(tmp, dst); err != nil {
		t.Fatalf("rename report into landing dir: %v", err)
	}
	return dst
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// gateSink blocks every Put until released so tests can hold workers
// in flight at a known point.
type gateSink struct {
	inner   Sink
	started chan struct{}
	release chan struct{}
	puts    atomic.Int32
}

func newGateSink(inner Sink) *gateSink {
	return &gateSink{
		inner:   inner,
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (g *gateSink) Put(ctx context.Context, r report.SensorReading) error {
	g.puts.Add(1)
	g.started <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.inner.Put(ctx, r)
}

func TestWatcherIngestsDroppedFile(t *testing.T) {
	dir := t.TempDir()
	scratch := t.TempDir()
	cache := memtier.NewMemCache(72 * time.Hour)
	durable := memtier.NewMemDurable()
	store := storage.NewTieredStore(cache, durable)

	w := New(testConfig(dir), store, testMetrics())
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	path := drop(t, scratch, dir, "report_1.json", reportBody("2026-08-20T14:30:05Z", "B001-LAGER"))

	waitFor(t, 2*time.Second, func() bool {
		return !fileExists(path)
	}, "file was not removed after ingestion")

	if cache.Len() != 1 {
		t.Errorf("cache holds %d readings, want 1", cache.Len())
	}
	if durable.Len() != 1 {
		t.Errorf("durable holds %d readings, want 1", durable.Len())
	}

	recent, err := store.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 1 || recent[0].BatchID != "B001-LAGER" {
		t.Errorf("Recent() = %v, want one B001-LAGER reading", recent)
	}

	queued, active := w.Stats()
	if queued != 0 {
		t.Errorf("Stats() queued = %d after drain, want 0", queued)
	}
	if active != 0 {
		t.Errorf("Stats() active = %d after drain, want 0", active)
	}
}

func TestWatcherSweepsPreexistingFiles(t *testing.T) {
	dir := t.TempDir()
	durable := memtier.NewMemDurable()
	store := storage.NewTieredStore(memtier.NewMemCache(72*time.Hour), durable)

	// Files already on disk before the watcher starts, as after a
	// crash or downtime.
	var paths []string
	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, fmt.Sprintf("report_%d.json", i))
		body := reportBody(fmt.Sprintf("2026-08-20T14:30:0%dZ", i), "B001-LAGER")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write pre-existing report: %v", err)
		}
		paths = append(paths, path)
	}

	w := New(testConfig(dir), store, testMetrics())
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	waitFor(t, 2*time.Second, func() bool {
		for _, p := range paths {
			if fileExists(p) {
				return false
			}
		}
		return true
	}, "pre-existing files were not swept")

	if durable.Len() != 3 {
		t.Errorf("durable holds %d readings, want 3", durable.Len())
	}
}

func TestWatcherRetainsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	scratch := t.TempDir()
	durable := memtier.NewMemDurable()
	store := storage.NewTieredStore(memtier.NewMemCache(72*time.Hour), durable)

	w := New(testConfig(dir), store, testMetrics())
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	bad := drop(t, scratch, dir, "bad.json", `{"timestamp":"2026-08-20T14:30:05Z","batch_id":"B001-LAGER"}`)
	good := drop(t, scratch, dir, "good.json", reportBody("2026-08-20T14:30:06Z", "B001-LAGER"))

	waitFor(t, 2*time.Second, func() bool {
		return !fileExists(good)
	}, "valid file was not ingested alongside malformed one")

	if !fileExists(bad) {
		t.Error("malformed file was removed, want it retained for inspection")
	}
	if durable.Len() != 1 {
		t.Errorf("durable holds %d readings, want 1", durable.Len())
	}
}

func TestWatcherRetainsFileOnTierFailure(t *testing.T) {
	dir := t.TempDir()
	scratch := t.TempDir()
	cache := memtier.NewMemCache(72 * time.Hour)
	durable := memtier.NewMemDurable()
	durable.FailPut(errors.New("durable down"))
	store := storage.NewTieredStore(cache, durable)

	w := New(testConfig(dir), store, testMetrics())
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	body := reportBody("2026-08-20T14:30:05Z", "B001-LAGER")
	path := drop(t, scratch, dir, "report.json", body)

	// The cache write lands, the durable write fails, the file stays.
	waitFor(t, 2*time.Second, func() bool {
		return cache.Len() == 1
	}, "cache write never happened")
	time.Sleep(100 * time.Millisecond)
	if !fileExists(path) {
		t.Fatal("file was removed despite durable write failure")
	}
	if durable.Len() != 0 {
		t.Fatalf("durable holds %d readings, want 0", durable.Len())
	}

	// Once failed, periodic rescans must not retry the file on their
	// own, even after the tier recovers.
	durable.FailPut(nil)
	time.Sleep(150 * time.Millisecond)
	if durable.Len() != 0 {
		t.Fatalf("rescan retried a failed file, durable holds %d readings", durable.Len())
	}

	// Re-dropping the file clears the failure mark and re-drives it.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove retained file: %v", err)
	}
	drop(t, scratch, dir, "report.json", body)

	waitFor(t, 2*time.Second, func() bool {
		return !fileExists(path) && durable.Len() == 1
	}, "re-dropped file was not ingested")
	if cache.Len() != 1 {
		t.Errorf("cache holds %d readings, want 1", cache.Len())
	}
}

func TestWatcherIgnoresUnrecognizedFiles(t *testing.T) {
	dir := t.TempDir()
	scratch := t.TempDir()
	durable := memtier.NewMemDurable()
	store := storage.NewTieredStore(memtier.NewMemCache(72*time.Hour), durable)

	w := New(testConfig(dir), store, testMetrics())
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	body := reportBody("2026-08-20T14:30:05Z", "B001-LAGER")
	txt := drop(t, scratch, dir, "notes.txt", body)
	tmp := drop(t, scratch, dir, "report.json.partial", body)

	time.Sleep(150 * time.Millisecond)

	if !fileExists(txt) || !fileExists(tmp) {
		t.Error("file without the report extension was removed")
	}
	if durable.Len() != 0 {
		t.Errorf("durable holds %d readings, want 0", durable.Len())
	}
}

func TestWatcherQueueFullDeferredToRescan(t *testing.T) {
	dir := t.TempDir()
	scratch := t.TempDir()
	durable := memtier.NewMemDurable()
	store := storage.NewTieredStore(memtier.NewMemCache(72*time.Hour), durable)
	gate := newGateSink(store)

	cfg := testConfig(dir)
	cfg.QueueSize = 1
	cfg.Workers = 1

	w := New(cfg, gate, testMetrics())
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	var paths []string
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("report_%d.json", i)
		body := reportBody(fmt.Sprintf("2026-08-20T14:30:0%dZ", i), "B001-LAGER")
		paths = append(paths, drop(t, scratch, dir, name, body))
	}

	// The single worker blocks on the first file, the queue holds one
	// more, and the third is deferred.
	<-gate.started
	time.Sleep(100 * time.Millisecond)
	if got := gate.puts.Load(); got != 1 {
		t.Fatalf("%d puts while worker gated, want 1", got)
	}

	// After release, the deferred file comes back via rescan.
	close(gate.release)
	waitFor(t, 3*time.Second, func() bool {
		for _, p := range paths {
			if fileExists(p) {
				return false
			}
		}
		return durable.Len() == 3
	}, "deferred file was not recovered by rescan")
}

func TestWatcherInFlightFileNotReEnqueued(t *testing.T) {
	dir := t.TempDir()
	scratch := t.TempDir()
	durable := memtier.NewMemDurable()
	store := storage.NewTieredStore(memtier.NewMemCache(72*time.Hour), durable)
	gate := newGateSink(store)

	w := New(testConfig(dir), gate, testMetrics())
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	path := drop(t, scratch, dir, "report.json", reportBody("2026-08-20T14:30:05Z", "B001-LAGER"))

	// Hold the file in flight across several rescans. Each rescan sees
	// the file still on disk but must not hand it to a second worker.
	<-gate.started
	time.Sleep(150 * time.Millisecond)

	close(gate.release)
	waitFor(t, 2*time.Second, func() bool {
		return !fileExists(path)
	}, "file was not ingested after release")

	if got := gate.puts.Load(); got != 1 {
		t.Errorf("file processed %d times, want 1", got)
	}
	if durable.Len() != 1 {
		t.Errorf("durable holds %d readings, want 1", durable.Len())
	}
}

func TestWatcherStopDrainsInFlight(t *testing.T) {
	dir := t.TempDir()
	scratch := t.TempDir()
	durable := memtier.NewMemDurable()
	store := storage.NewTieredStore(memtier.NewMemCache(72*time.Hour), durable)
	gate := newGateSink(store)

	cfg := testConfig(dir)
	cfg.Workers = 1

	w := New(cfg, gate, testMetrics())
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	path := drop(t, scratch, dir, "report.json", reportBody("2026-08-20T14:30:05Z", "B001-LAGER"))
	<-gate.started

	// Release while Stop is draining; the in-flight file must complete.
	timer := time.AfterFunc(100*time.Millisecond, func() { close(gate.release) })
	defer timer.Stop()
	w.Stop()

	if fileExists(path) {
		t.Error("in-flight file was not completed during drain")
	}
	if durable.Len() != 1 {
		t.Errorf("durable holds %d readings, want 1", durable.Len())
	}
}

func TestWatcherStartMissingDirectory(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "missing"))
	w := New(cfg, storage.NewTieredStore(memtier.NewMemCache(time.Hour), memtier.NewMemDurable()), testMetrics())
	if err := w.Start(); err == nil {
		t.Error("Start() on missing directory succeeded, want error")
	}

	// Stop on a watcher that never started must be a no-op.
	w.Stop()

	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	cfg.Dir = file
	w = New(cfg, storage.NewTieredStore(memtier.NewMemCache(time.Hour), memtier.NewMemDurable()), testMetrics())
	if err := w.Start(); err == nil {
		t.Error("Start() on a plain file succeeded, want error")
	}
}

func TestTaskStateString(t *testing.T) {
	tests := []struct {
		state TaskState
		want  string
	}{
		{TaskPending, "pending"},
		{TaskDecoded, "decoded"},
		{TaskPersisted, "persisted"},
		{TaskCleaned, "cleaned"},
		{TaskFailed, "failed"},
		{TaskState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("TaskState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
