// Package daemon owns the process lifecycle: it prepares directories and
// the store, opens the watch on the input directory, serves the control
// socket, and tears everything down in order on shutdown.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/starrysea/dialogsplit/internal/config"
	"github.com/starrysea/dialogsplit/internal/splitter"
	"github.com/starrysea/dialogsplit/internal/store"
	"github.com/starrysea/dialogsplit/internal/watcher"
)

// IPCServer is the interface the daemon uses to start/stop the IPC listener.
// This avoids a circular dependency with the ipc package.
type IPCServer interface {
	Listen(socketPath string, ctx context.Context) error
	Stop() error
}

// StoreAware can receive a store reference after it becomes available.
type StoreAware interface {
	SetStore(store interface{})
}

// Daemon manages the lifecycle of the dialogsplit background process.
type Daemon struct {
	cfg       *config.Config
	store     *store.Store
	ipc       IPCServer
	watcher   *watcher.Watcher
	startTime time.Time

	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.Mutex
	running      bool
	shutdownOnce sync.Once
}

// New creates a new Daemon with the given config.
// The IPC server is injected to avoid circular imports; it may be nil.
func New(cfg *config.Config, ipcServer IPCServer) *Daemon {
	return &Daemon{
		cfg: cfg,
		ipc: ipcServer,
	}
}

// Start creates the directories, opens the store and the watch, and blocks
// until a signal, Stop, or a fatal component error; it then shuts down.
// A watch that cannot be opened fails Start before anything is served.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.mu.Unlock()

	if err := d.cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := d.cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("create input/output dirs: %w", err)
	}

	s, err := store.New(d.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	d.store = s

	sp := splitter.New(d.cfg.InputDir, splitter.NewWriter(d.cfg.OutputDir))
	w := watcher.New(d.cfg, sp, s)
	if err := w.Open(); err != nil {
		_ = s.Close()
		return fmt.Errorf("start watcher: %w", err)
	}

	if sa, ok := d.ipc.(StoreAware); ok {
		sa.SetStore(s)
	}

	ctx, cancel := signalContext(context.Background())

	d.mu.Lock()
	d.watcher = w
	d.ctx = ctx
	d.cancel = cancel
	d.startTime = time.Now()
	d.running = true
	d.mu.Unlock()

	ipcErrCh := make(chan error, 1)
	if d.ipc != nil {
		go func() {
			ipcErrCh <- d.ipc.Listen(d.cfg.SocketPath, ctx)
		}()
	}

	watchErrCh := make(chan error, 1)
	go func() {
		watchErrCh <- w.Run(ctx)
	}()

	if err := s.SetDaemonState("last_started", d.startTime.UTC().Format(time.RFC3339)); err != nil {
		log.Printf("daemon: record start: %v", err)
	}

	log.Printf("daemon started (pid %d, db %s, socket %s)", os.Getpid(), d.cfg.DBPath, d.cfg.SocketPath)
	log.Printf("daemon: drop chat exports into %s; day files are written to %s", d.cfg.InputDir, d.cfg.OutputDir)

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received")
	case err := <-ipcErrCh:
		if err != nil {
			log.Printf("IPC server error: %v", err)
		}
	case err := <-watchErrCh:
		if err != nil {
			log.Printf("watcher error: %v", err)
		} else {
			log.Println("watcher stopped")
		}
	}

	return d.shutdown()
}

// Stop triggers a graceful shutdown from outside (e.g. via IPC stop command).
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

// shutdown performs ordered teardown exactly once: the watch handle (which
// lets queued splits finish), then IPC, then the store and socket file.
func (d *Daemon) shutdown() error {
	d.shutdownOnce.Do(func() {
		log.Println("shutting down...")

		if d.cancel != nil {
			d.cancel()
		}

		if d.watcher != nil {
			d.watcher.Stop()
		}

		if d.ipc != nil {
			if err := d.ipc.Stop(); err != nil {
				log.Printf("ipc stop: %v", err)
			}
		}

		if d.store != nil {
			if err := d.store.Close(); err != nil {
				log.Printf("store close: %v", err)
			}
		}

		_ = os.Remove(d.cfg.SocketPath)

		d.mu.Lock()
		d.running = false
		d.mu.Unlock()

		log.Println("daemon stopped")
	})
	return nil
}

// Running returns true if the daemon is currently running.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Store returns the daemon's data store (for use by IPC handlers).
func (d *Daemon) Store() *store.Store {
	return d.store
}

// Uptime returns how long the daemon has been running.
func (d *Daemon) Uptime() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startTime.IsZero() {
		return 0
	}
	return time.Since(d.startTime)
}

// WatcherStats returns the watcher's activity counters.
func (d *Daemon) WatcherStats() watcher.Stats {
	d.mu.Lock()
	w := d.watcher
	d.mu.Unlock()
	if w == nil {
		return watcher.Stats{}
	}
	return w.Stats()
}
