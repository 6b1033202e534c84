// Package watcher reacts to modifications in the input directory by
// splitting the modified source file on a bounded worker pool.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starrysea/dialogsplit/internal/config"
	"github.com/starrysea/dialogsplit/internal/splitter"
	"github.com/starrysea/dialogsplit/internal/store"
)

// ErrWatchSetup is returned when the input directory cannot be watched.
// No event would ever be observed, so callers treat it as fatal.
var ErrWatchSetup = errors.New("watch setup failed")

// Splitter splits one source file, named relative to the input directory.
type Splitter interface {
	Split(name string) (splitter.Result, error)
}

// Ledger records the outcome of each split.
type Ledger interface {
	InsertSplitRun(run store.SplitRun) error
}

// Stats is a snapshot of watcher activity.
type Stats struct {
	Running   bool  `json:"running"`
	Events    int64 `json:"events"`
	Splits    int64 `json:"splits"`
	Locked    int64 `json:"locked"`
	Failures  int64 `json:"failures"`
	Active    int64 `json:"active"`
	Pending   int   `json:"pending"`
	Blocked   int64 `json:"blocked"`
	Debounced int   `json:"debounced"`
	Coalesced int64 `json:"coalesced"`
}

// Watcher watches the input directory for modified files and dispatches a
// split for each one. Splits of different files run concurrently. A file has
// at most one split running and one owed; further events for it fold into
// the owed one.
type Watcher struct {
	cfg      *config.Config
	splitter Splitter
	ledger   Ledger

	fsw       *fsnotify.Watcher
	filter    *Filter
	debouncer *Debouncer
	pool      *Pool
	inflight  *Coalescer

	mu       sync.Mutex
	running  bool
	stopOnce sync.Once

	events   atomic.Int64
	splits   atomic.Int64
	locked   atomic.Int64
	failures atomic.Int64
}

// New creates a Watcher for cfg.InputDir. ledger may be nil.
func New(cfg *config.Config, sp Splitter, ledger Ledger) *Watcher {
	return &Watcher{
		cfg:      cfg,
		splitter: sp,
		ledger:   ledger,
		filter:   NewFilter(cfg.IgnorePatterns),
		inflight: NewCoalescer(),
	}
}

// Start opens the watch and runs the event loop until ctx is cancelled or
// Stop closes the watch. Call Stop afterwards for ordered teardown.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.Open(); err != nil {
		return err
	}
	return w.Run(ctx)
}

// Open creates the watch handle on the input directory and the worker pool.
// Only write events are acted on; creation, removal and renames are not.
func (w *Watcher) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("watcher already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatchSetup, err)
	}
	if err := fsw.Add(w.cfg.InputDir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("%w: watch %s: %v", ErrWatchSetup, w.cfg.InputDir, err)
	}

	w.fsw = fsw
	w.pool = NewPool(w.cfg.CoreWorkers, w.cfg.MaxWorkers, w.cfg.QueueSize)
	if window := w.cfg.Debounce(); window > 0 {
		w.debouncer = NewDebouncer(window, func(e Event) { w.dispatch(e.Name) })
	}
	w.running = true

	log.Printf("watcher: watching %s (workers %d-%d, queue %d)",
		w.cfg.InputDir, w.cfg.CoreWorkers, w.cfg.MaxWorkers, w.cfg.QueueSize)
	return nil
}

// Run blocks on the watch handle and handles events until ctx is cancelled
// or the handle is closed. Both are a normal stop and return nil.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()
	if fsw == nil {
		return errors.New("watcher not open")
	}

	if w.cfg.ScanOnStart {
		w.scan()
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Printf("watcher: fsnotify error: %v", err)
		}
	}
}

// Stop drains pending debounced events into the pool, closes the watch
// handle, and waits for queued and running splits to finish. It is safe to
// call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()

		if w.debouncer != nil {
			w.debouncer.Stop()
		}
		if w.fsw != nil {
			if err := w.fsw.Close(); err != nil {
				log.Printf("watcher: close: %v", err)
			}
		}
		if w.pool != nil {
			w.pool.Close()
		}
	})
}

// Running reports whether the watch is open.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Stats returns a snapshot of activity counters.
func (w *Watcher) Stats() Stats {
	s := Stats{
		Running:   w.Running(),
		Events:    w.events.Load(),
		Splits:    w.splits.Load(),
		Locked:    w.locked.Load(),
		Failures:  w.failures.Load(),
		Coalesced: w.inflight.Folds(),
	}
	if w.pool != nil {
		s.Active = w.pool.Active()
		s.Pending = w.pool.Pending()
		s.Blocked = w.pool.Blocked()
	}
	if w.debouncer != nil {
		s.Debounced = w.debouncer.Pending()
	}
	return s
}

// handleEvent processes a single fsnotify event.
func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) {
		return
	}

	name, err := filepath.Rel(w.cfg.InputDir, ev.Name)
	if err != nil {
		log.Printf("watcher: %s outside %s: %v", ev.Name, w.cfg.InputDir, err)
		return
	}
	if w.filter.ShouldIgnore(name) {
		return
	}
	w.events.Add(1)
	log.Printf("watcher: %s modified", name)

	if w.debouncer != nil {
		w.debouncer.Feed(Event{Name: name, Timestamp: time.Now()})
		return
	}
	w.dispatch(name)
}

// dispatch hands a split of name to the pool, unless one is already in
// flight for name, in which case it only marks a rerun as owed. When the
// pool is saturated this blocks the caller (the event loop, or a debounce
// timer) until a queue slot frees.
func (w *Watcher) dispatch(name string) {
	if !w.inflight.Begin(name) {
		return
	}
	err := w.pool.Submit(context.Background(), func() {
		for {
			w.split(name)
			if !w.inflight.Done(name) {
				return
			}
		}
	})
	if err != nil {
		w.inflight.Release(name)
		log.Printf("watcher: dispatch %s: %v", name, err)
	}
}

// split runs one split of name and records it in the ledger.
func (w *Watcher) split(name string) {
	started := time.Now()
	res, err := w.splitter.Split(name)
	finished := time.Now()

	switch {
	case res.Locked:
		w.locked.Add(1)
	case errors.Is(err, os.ErrNotExist):
		log.Printf("watcher: %s removed before it could be split", name)
	case err != nil:
		w.failures.Add(1)
		log.Printf("watcher: split %s: %v", name, err)
	default:
		w.splits.Add(1)
		log.Printf("watcher: split %s into %d day files in %s",
			name, len(res.Days), finished.Sub(started).Round(time.Millisecond))
	}

	if w.ledger == nil {
		return
	}
	run := store.SplitRun{
		Source:     name,
		Days:       len(res.Days),
		Failed:     res.Failed,
		Skipped:    res.Skipped,
		Locked:     res.Locked,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if err != nil {
		run.Error = err.Error()
	}
	if err := w.ledger.InsertSplitRun(run); err != nil {
		log.Printf("watcher: ledger: %v", err)
	}
}

// scan dispatches every regular file already in the input directory.
func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.cfg.InputDir)
	if err != nil {
		log.Printf("watcher: scan %s: %v", w.cfg.InputDir, err)
		return
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || w.filter.ShouldIgnore(e.Name()) {
			continue
		}
		w.dispatch(e.Name())
	}
}
