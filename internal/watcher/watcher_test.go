package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starrysea/dialogsplit/internal/config"
	"github.com/starrysea/dialogsplit/internal/splitter"
	"github.com/starrysea/dialogsplit/internal/store"
)

// ---------------------------------------------------------------------------
// Filter tests
// ---------------------------------------------------------------------------

func TestFilterDefaultPatterns(t *testing.T) {
	f := NewFilter(nil)

	cases := []struct {
		name string
		want bool
	}{
		{".hidden", true},
		{".group.txt.swp", true},
		{"group.txt.swp", true},
		{"group.txt~", true},
		{"export.tmp", true},
		{"export.tmp.1", true},
		{"export.txt.part", true},
		{"group.txt", false},
		{"我的群聊.txt", false},
		{"export", false},
	}

	for _, tc := range cases {
		if got := f.ShouldIgnore(tc.name); got != tc.want {
			t.Errorf("ShouldIgnore(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFilterCustomPatterns(t *testing.T) {
	f := NewFilter([]string{"*.bak", ".*"})

	if !f.ShouldIgnore("old.bak") {
		t.Error("expected old.bak to be ignored")
	}
	if f.ShouldIgnore("old.txt") {
		t.Error("old.txt should not be ignored")
	}

	seen := map[string]int{}
	for _, p := range f.Patterns() {
		seen[p]++
	}
	if seen[".*"] != 1 {
		t.Errorf("duplicate pattern kept %d times", seen[".*"])
	}
}

// ---------------------------------------------------------------------------
// Debouncer tests
// ---------------------------------------------------------------------------

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func TestDebouncerBurstCollapse(t *testing.T) {
	var got eventLog
	d := NewDebouncer(50*time.Millisecond, got.add)
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Feed(Event{Name: "group.txt", Timestamp: time.Now()})
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)

	if n := len(got.snapshot()); n != 1 {
		t.Fatalf("expected exactly 1 emission after burst of 10, got %d", n)
	}
}

func TestDebouncerDifferentNames(t *testing.T) {
	var got eventLog
	d := NewDebouncer(50*time.Millisecond, got.add)
	defer d.Stop()

	d.Feed(Event{Name: "a.txt", Timestamp: time.Now()})
	d.Feed(Event{Name: "b.txt", Timestamp: time.Now()})

	time.Sleep(150 * time.Millisecond)

	names := map[string]bool{}
	for _, e := range got.snapshot() {
		names[e.Name] = true
	}
	if len(names) != 2 || !names["a.txt"] || !names["b.txt"] {
		t.Errorf("expected a.txt and b.txt, got %v", names)
	}
}

func TestDebouncerReopensAfterExpiry(t *testing.T) {
	var got eventLog
	d := NewDebouncer(20*time.Millisecond, got.add)
	defer d.Stop()

	d.Feed(Event{Name: "group.txt", Timestamp: time.Now()})
	time.Sleep(80 * time.Millisecond)
	d.Feed(Event{Name: "group.txt", Timestamp: time.Now()})
	time.Sleep(80 * time.Millisecond)

	if n := len(got.snapshot()); n != 2 {
		t.Fatalf("emissions = %d, want one per quiet window (2)", n)
	}
	if d.Pending() != 0 {
		t.Errorf("Pending = %d after both windows closed", d.Pending())
	}
}

func TestDebouncerStopDrains(t *testing.T) {
	var got eventLog
	d := NewDebouncer(5*time.Second, got.add)

	d.Feed(Event{Name: "x.txt", Timestamp: time.Now()})
	d.Feed(Event{Name: "y.txt", Timestamp: time.Now()})
	if d.Pending() != 2 {
		t.Errorf("Pending = %d, want 2", d.Pending())
	}

	d.Stop()
	d.Stop()

	if n := len(got.snapshot()); n != 2 {
		t.Fatalf("expected 2 drained emissions, got %d", n)
	}

	d.Feed(Event{Name: "z.txt", Timestamp: time.Now()})
	if n := len(got.snapshot()); n != 2 {
		t.Errorf("Feed after Stop emitted, total %d", n)
	}
}

// ---------------------------------------------------------------------------
// Pool tests
// ---------------------------------------------------------------------------

func TestPoolBackPressureCompletesAll(t *testing.T) {
	const (
		core  = 2
		max   = 10
		queue = 25
		jobs  = 60
	)
	p := NewPool(core, max, queue)

	var running, peak, done atomic.Int64
	for i := 0; i < jobs; i++ {
		err := p.Submit(context.Background(), func() {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			running.Add(-1)
			done.Add(1)
		})
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	p.Close()

	if done.Load() != jobs {
		t.Errorf("completed %d jobs, want %d", done.Load(), jobs)
	}
	if p.Completed() != jobs {
		t.Errorf("Completed() = %d, want %d", p.Completed(), jobs)
	}
	if peak.Load() > max {
		t.Errorf("peak concurrency %d exceeds max %d", peak.Load(), max)
	}
	if peak.Load() <= core {
		t.Errorf("peak concurrency %d never grew past core %d", peak.Load(), core)
	}
	if p.Blocked() == 0 {
		t.Error("expected some submissions to wait for queue space")
	}
}

func TestPoolSubmitAfterClose(t *testing.T) {
	p := NewPool(1, 1, 1)
	p.Close()
	p.Close()

	if err := p.Submit(context.Background(), func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("Submit after Close err = %v, want ErrPoolClosed", err)
	}
}

func TestPoolSubmitHonoursContext(t *testing.T) {
	p := NewPool(1, 1, 0)
	release := make(chan struct{})
	started := make(chan struct{})

	if err := p.Submit(context.Background(), func() {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Submit(ctx, func() {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Submit on saturated pool err = %v, want deadline exceeded", err)
	}

	close(release)
	p.Close()
}

// ---------------------------------------------------------------------------
// Coalescer tests
// ---------------------------------------------------------------------------

func TestCoalescerFoldsRequestsIntoOneRerun(t *testing.T) {
	c := NewCoalescer()

	if !c.Begin("hot.txt") {
		t.Fatal("first Begin should own the name")
	}
	for i := 0; i < 5; i++ {
		if c.Begin("hot.txt") {
			t.Fatal("Begin while running should not own the name")
		}
	}
	if !c.Begin("cold.txt") {
		t.Error("a different name should not be held back")
	}

	if !c.Done("hot.txt") {
		t.Fatal("Done should ask for one rerun")
	}
	if c.Done("hot.txt") {
		t.Fatal("five requests should fold into a single rerun")
	}
	if c.Folds() != 5 {
		t.Errorf("Folds = %d, want 5", c.Folds())
	}
	if !c.Begin("hot.txt") {
		t.Error("name not released after its last run")
	}
}

func TestCoalescerRelease(t *testing.T) {
	c := NewCoalescer()
	c.Begin("a.txt")
	c.Begin("a.txt")
	c.Release("a.txt")
	if c.Len() != 0 {
		t.Errorf("Len = %d after Release, want 0", c.Len())
	}
	if !c.Begin("a.txt") {
		t.Error("released name could not be claimed")
	}
}

// ---------------------------------------------------------------------------
// Watcher tests
// ---------------------------------------------------------------------------

type fakeSplitter struct {
	delay time.Duration

	mu      sync.Mutex
	calls   map[string]int
	running map[string]int
	overlap bool
}

func newFakeSplitter(delay time.Duration) *fakeSplitter {
	return &fakeSplitter{delay: delay, calls: map[string]int{}, running: map[string]int{}}
}

func (f *fakeSplitter) Split(name string) (splitter.Result, error) {
	f.mu.Lock()
	f.calls[name]++
	f.running[name]++
	if f.running[name] > 1 {
		f.overlap = true
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.running[name]--
	f.mu.Unlock()
	return splitter.Result{Name: name, Days: []string{"2024-01-01"}}, nil
}

func (f *fakeSplitter) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

type memLedger struct {
	mu   sync.Mutex
	runs []store.SplitRun
}

func (l *memLedger) InsertSplitRun(run store.SplitRun) error {
	l.mu.Lock()
	l.runs = append(l.runs, run)
	l.mu.Unlock()
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.InputDir = filepath.Join(t.TempDir(), "input")
	cfg.OutputDir = filepath.Join(t.TempDir(), "output")
	cfg.DebounceMs = 0
	cfg.CoreWorkers = 2
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestWatcherOpenMissingDirIsSetupError(t *testing.T) {
	cfg := testConfig(t)
	cfg.InputDir = filepath.Join(cfg.InputDir, "does-not-exist")

	w := New(cfg, newFakeSplitter(0), nil)
	err := w.Open()
	if !errors.Is(err, ErrWatchSetup) {
		t.Fatalf("Open err = %v, want ErrWatchSetup", err)
	}
	if w.Running() {
		t.Error("watcher reports running after failed setup")
	}
	w.Stop()
}

func TestWatcherSerialisesSameName(t *testing.T) {
	cfg := testConfig(t)
	fs := newFakeSplitter(5 * time.Millisecond)
	ledger := &memLedger{}

	w := New(cfg, fs, ledger)
	if err := w.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 20; i++ {
		w.dispatch("same.txt")
	}
	w.Stop()

	if fs.overlap {
		t.Error("same source split concurrently with itself")
	}
	// The first split, plus at least one that starts after the last event.
	calls := fs.count("same.txt")
	if calls < 2 || calls > 20 {
		t.Errorf("calls = %d, want between 2 and 20", calls)
	}
	if len(ledger.runs) != calls {
		t.Errorf("ledger runs = %d, want %d", len(ledger.runs), calls)
	}
	st := w.Stats()
	if st.Splits != int64(calls) {
		t.Errorf("Stats.Splits = %d, want %d", st.Splits, calls)
	}
	if st.Coalesced < int64(calls-1) {
		t.Errorf("Stats.Coalesced = %d, want at least %d", st.Coalesced, calls-1)
	}
}

func TestWatcherHotFileDoesNotStarveOthers(t *testing.T) {
	cfg := testConfig(t)
	cfg.CoreWorkers = 2
	cfg.MaxWorkers = 2
	cfg.QueueSize = 1
	fs := newFakeSplitter(50 * time.Millisecond)

	w := New(cfg, fs, nil)
	if err := w.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Stop()

	start := time.Now()
	for i := 0; i < 60; i++ {
		w.dispatch("hot.txt")
	}
	if took := time.Since(start); took > 200*time.Millisecond {
		t.Errorf("60 events for one file blocked dispatch for %s", took)
	}

	w.dispatch("cold.txt")
	deadline := time.Now().Add(time.Second)
	for fs.count("cold.txt") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("cold.txt was not split while hot.txt was busy")
		}
		time.Sleep(5 * time.Millisecond)
	}

	w.Stop()
	if n := fs.count("hot.txt"); n < 2 || n > 3 {
		t.Errorf("hot.txt split %d times, want the running split plus one rerun", n)
	}
}

func TestWatcherFloodOfFilesCompletes(t *testing.T) {
	cfg := testConfig(t)
	const files = 40 // well past max workers plus queue

	for i := 0; i < files; i++ {
		body := fmt.Sprintf("2024-01-%02d 10:00:00 A<1>\nfile %d\n2024-02-01 10:00:00 B<2>\nbye\n", i%28+1, i)
		if err := os.WriteFile(filepath.Join(cfg.InputDir, fmt.Sprintf("chat%02d.txt", i)), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	sp := splitter.New(cfg.InputDir, splitter.NewWriter(cfg.OutputDir))
	w := New(cfg, sp, nil)
	if err := w.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < files; i++ {
		w.dispatch(fmt.Sprintf("chat%02d.txt", i))
	}
	w.Stop()

	for i := 0; i < files; i++ {
		name := fmt.Sprintf("chat%02d.txt", i)
		jan := filepath.Join(cfg.OutputDir, name, "2024", "01", fmt.Sprintf("2024-01-%02d.txt", i%28+1))
		feb := filepath.Join(cfg.OutputDir, name, "2024", "02", "2024-02-01.txt")
		for _, p := range []string{jan, feb} {
			if _, err := os.Stat(p); err != nil {
				t.Errorf("missing %s: %v", p, err)
			}
		}
	}
	if got := w.Stats().Splits; got != files {
		t.Errorf("Stats.Splits = %d, want %d", got, files)
	}
}

func TestWatcherReactsToWrites(t *testing.T) {
	cfg := testConfig(t)
	cfg.DebounceMs = 20

	sp := splitter.New(cfg.InputDir, splitter.NewWriter(cfg.OutputDir))
	ledger := &memLedger{}
	w := New(cfg, sp, ledger)
	if err := w.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	src := filepath.Join(cfg.InputDir, "group.txt")
	body := "2024-01-01 10:00:00 A<1>\nhello\n2024-01-02 09:00:00 B<2>\n"
	if err := os.WriteFile(src, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	// Hidden files are ignored.
	if err := os.WriteFile(filepath.Join(cfg.InputDir, ".partial"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(cfg.OutputDir, "group.txt", "2024", "01", "2024-01-02.txt")
	deadline := time.Now().Add(5 * time.Second)
	for {
		data, err := os.ReadFile(want)
		if err == nil && string(data) == "2024-01-02 09:00:00 B<2>\n" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("output %s not produced: %v", want, err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v, want nil on cancellation", err)
	}
	w.Stop()
	w.Stop()

	if _, err := os.Stat(filepath.Join(cfg.OutputDir, ".partial")); !os.IsNotExist(err) {
		t.Errorf("ignored file was split, stat err = %v", err)
	}
	if w.Running() {
		t.Error("Running after Stop")
	}
}

func TestWatcherStopUnblocksRun(t *testing.T) {
	cfg := testConfig(t)
	w := New(cfg, newFakeSplitter(0), nil)
	if err := w.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	w.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop closed the watch")
	}
}

func TestWatcherScanOnStart(t *testing.T) {
	cfg := testConfig(t)
	cfg.ScanOnStart = true
	for _, name := range []string{"a.txt", "b.txt", ".hidden"} {
		if err := os.WriteFile(filepath.Join(cfg.InputDir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	fs := newFakeSplitter(0)
	w := New(cfg, fs, nil)
	if err := w.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	w.Stop()

	if fs.calls["a.txt"] != 1 || fs.calls["b.txt"] != 1 || fs.calls[".hidden"] != 0 {
		t.Errorf("calls = %v", fs.calls)
	}
}
