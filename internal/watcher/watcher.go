// Package watcher detects report files arriving in the landing
// directory and drives each one through decode, dual tier write, and
// deletion.
//
// Detection is filesystem-event driven with two safety nets: a sweep of
// pre-existing files at startup and a periodic rescan, so events missed
// while the process was down (or dropped under load) are still picked
// up. Detections feed a bounded queue consumed by a small worker pool;
// each worker owns its file exclusively for the duration of processing.
//
// The source file is removed only after both tier writes succeed. A
// crash before removal leaves the file for reprocessing on restart;
// replayed files deduplicate in the durable store, so the pipeline is
// at-least-once overall with idempotent replay.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wortwatch/wortwatch/internal/config"
	"github.com/wortwatch/wortwatch/internal/logging"
	"github.com/wortwatch/wortwatch/internal/metrics"
	"github.com/wortwatch/wortwatch/internal/report"
	"github.com/wortwatch/wortwatch/internal/storage"
)

var log = logging.Component("watcher")

// Sink receives decoded readings. The tiered store implements it; tests
// substitute fakes.
type Sink interface {
	Put(ctx context.Context, r report.SensorReading) error
}

// =============================================================================
// Watcher
// =============================================================================

// Watcher owns the landing directory: one event loop produces file
// paths into a bounded queue, workers consume them and run the per-file
// state machine.
//
// Watcher is safe for concurrent use.
type Watcher struct {
	dir            string
	ext            string
	workers        int
	rescanInterval time.Duration
	drainTimeout   time.Duration

	sink    Sink
	metrics *metrics.Metrics

	tasks    chan string
	shutdown chan struct{}
	wg       sync.WaitGroup
	fsw      *fsnotify.Watcher

	// procCtx outlives the run context so in-flight files can finish
	// cleanly during shutdown; it is cancelled only when the drain
	// timeout expires.
	procCtx    context.Context
	procCancel context.CancelFunc

	mu       sync.Mutex
	inflight map[string]struct{}
	failed   map[string]struct{}

	activeWorkers atomic.Int32
	started       bool
}

// New creates a watcher over the configured landing directory, writing
// readings into sink.
func New(cfg config.LandingConfig, sink Sink, m *metrics.Metrics) *Watcher {
	return &Watcher{
		dir:            cfg.Dir,
		ext:            cfg.Extension,
		workers:        cfg.Workers,
		rescanInterval: cfg.RescanInterval.Duration(),
		drainTimeout:   cfg.DrainTimeout.Duration(),
		sink:           sink,
		metrics:        m,
		tasks:          make(chan string, cfg.QueueSize),
		shutdown:       make(chan struct{}),
		inflight:       make(map[string]struct{}),
		failed:         make(map[string]struct{}),
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start begins watching. The landing directory must exist. Files
// already present are swept into the queue immediately.
func (w *Watcher) Start() error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("landing directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("landing directory %s is not a directory", w.dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.fsw = fsw

	w.procCtx, w.procCancel = context.WithCancel(context.Background())

	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}

	w.wg.Add(1)
	go w.eventLoop()

	w.started = true
	log.Info("watcher started",
		"dir", w.dir,
		"extension", w.ext,
		"workers", w.workers,
		"rescan_interval", w.rescanInterval)

	// Pick up files that arrived while the process was down.
	w.sweep()

	return nil
}

// Stop stops the watcher gracefully: detection stops immediately,
// queued-but-unstarted files are abandoned for the next run, and
// in-flight files get the drain timeout to complete. No file is ever
// deleted without both tier writes having succeeded.
func (w *Watcher) Stop() {
	if !w.started {
		return
	}

	log.Info("watcher stopping")

	close(w.shutdown)
	w.fsw.Close()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("watcher stopped gracefully")
	case <-time.After(w.drainTimeout):
		active := w.activeWorkers.Load()
		log.Warn("watcher drain timeout", "active_workers", active)
		// Abort whatever is still blocked on storage.
		w.procCancel()
		<-done
	}

	w.procCancel()
}

// =============================================================================
// Detection
// =============================================================================

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	var rescan <-chan time.Time
	if w.rescanInterval > 0 {
		ticker := time.NewTicker(w.rescanInterval)
		defer ticker.Stop()
		rescan = ticker.C
	}

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Create) && w.recognized(ev.Name) {
				// A fresh create clears any earlier failure: the
				// operator re-dropping a file re-drives it.
				w.clearFailed(ev.Name)
				w.enqueue(ev.Name)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error("filesystem watch error", "error", err)

		case <-rescan:
			w.sweep()

		case <-w.shutdown:
			return
		}
	}
}

// sweep enqueues every recognized file currently in the landing
// directory. Files that failed earlier in this run are skipped until a
// fresh create event clears them.
func (w *Watcher) sweep() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Error("landing directory scan failed", "dir", w.dir, "error", err)
		return
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if !w.recognized(path) {
			continue
		}
		if w.isFailed(path) {
			continue
		}
		w.enqueue(path)
	}
}

// recognized reports whether the path carries the report extension.
// Detection is non-recursive; only direct children of the landing
// directory produce events.
func (w *Watcher) recognized(path string) bool {
	return filepath.Ext(path) == w.ext
}

// enqueue reserves the path and queues it for a worker. Paths already
// queued or being processed are skipped, so a file never overlaps with
// itself. A full queue drops the path; the next rescan retries it.
func (w *Watcher) enqueue(path string) {
	w.mu.Lock()
	if _, ok := w.inflight[path]; ok {
		w.mu.Unlock()
		return
	}
	w.inflight[path] = struct{}{}
	w.mu.Unlock()

	select {
	case w.tasks <- path:
		w.metrics.ReportDetected()
		w.metrics.TaskQueued()
	default:
		w.release(path)
		log.Warn("task queue full, deferring file to next rescan", "file", path)
	}
}

func (w *Watcher) release(path string) {
	w.mu.Lock()
	delete(w.inflight, path)
	w.mu.Unlock()
}

func (w *Watcher) markFailed(path string) {
	w.mu.Lock()
	w.failed[path] = struct{}{}
	w.mu.Unlock()
}

func (w *Watcher) clearFailed(path string) {
	w.mu.Lock()
	delete(w.failed, path)
	w.mu.Unlock()
}

func (w *Watcher) isFailed(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.failed[path]
	return ok
}

// =============================================================================
// Workers
// =============================================================================

func (w *Watcher) worker() {
	defer w.wg.Done()

	for {
		select {
		case path, ok := <-w.tasks:
			if !ok {
				return
			}
			w.metrics.TaskDequeued()
			w.processWithRecovery(path)

		case <-w.shutdown:
			return
		}
	}
}

// processWithRecovery runs one file through the state machine,
// converting a panic into a per-file failure so a poisoned file cannot
// kill the pool.
func (w *Watcher) processWithRecovery(path string) {
	w.activeWorkers.Add(1)
	defer w.activeWorkers.Add(-1)
	defer w.release(path)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing file", "file", path, "panic", r)
			w.markFailed(path)
			w.metrics.IngestFailure("panic")
		}
	}()

	start := time.Now()
	task := &IngestionTask{Path: path, State: TaskPending}

	if err := w.process(task); err != nil {
		w.markFailed(path)
		return
	}

	if task.State == TaskCleaned {
		w.metrics.ReadingIngested()
		w.metrics.ObserveIngest(time.Since(start))
	}
}

// process drives the state machine: read, decode, persist to both
// tiers, then delete the source file. The file is retained on every
// failure path.
func (w *Watcher) process(task *IngestionTask) error {
	payload, err := os.ReadFile(task.Path)
	if err != nil {
		if os.IsNotExist(err) {
			// Already gone: processed by a previous run's crash window
			// or removed by the operator. Nothing to do.
			log.Debug("file vanished before processing", "file", task.Path)
			return nil
		}
		w.metrics.IngestFailure("read")
		log.Error("report file unreadable", "file", task.Path, "error", err)
		return task.fail(err)
	}
	task.Payload = payload

	reading, err := report.Decode(payload)
	if err != nil {
		w.metrics.IngestFailure("decode")
		log.Error("malformed report retained for inspection",
			"file", task.Path,
			"error", err)
		return task.fail(err)
	}
	task.State = TaskDecoded

	if err := w.sink.Put(w.procCtx, reading); err != nil {
		w.metrics.IngestFailure("persist")
		w.recordTierFailures(err)
		log.Error("tier write failed, file retained for replay",
			"file", task.Path,
			"reading_id", reading.ReadingID(),
			"error", err)
		return task.fail(err)
	}
	task.State = TaskPersisted

	if err := os.Remove(task.Path); err != nil {
		// Both writes landed; the next run will replay the file and
		// the durable tier will deduplicate it.
		w.metrics.IngestFailure("cleanup")
		log.Error("processed file could not be removed",
			"file", task.Path,
			"error", err)
		return task.fail(err)
	}
	task.State = TaskCleaned

	log.Debug("report ingested",
		"file", task.Path,
		"reading_id", reading.ReadingID(),
		"batch_id", reading.BatchID,
		"timestamp", reading.Timestamp)
	return nil
}

// recordTierFailures attributes a write failure to the tiers involved.
func (w *Watcher) recordTierFailures(err error) {
	var writeErr *storage.TierWriteError
	if errors.As(err, &writeErr) {
		for _, tier := range writeErr.FailedTiers() {
			w.metrics.TierWriteFailure(tier)
		}
	}
}

// Stats returns current queue depth and active worker count.
func (w *Watcher) Stats() (queued, active int) {
	return len(w.tasks), int(w.activeWorkers.Load())
}
