package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/starrysea/dialogsplit/internal/store"
	"github.com/starrysea/dialogsplit/internal/watcher"
)

// recentRunsShown bounds the run list in a status reply.
const recentRunsShown = 5

// DaemonQuerier is the interface the IPC server uses to query daemon state.
// This avoids importing the daemon package (which would be circular).
type DaemonQuerier interface {
	Uptime() time.Duration
	WatcherStats() watcher.Stats
	Stop()
}

// StoreQuerier provides data access methods needed by the IPC server.
type StoreQuerier interface {
	Lookup(keyword string) (*store.Record, error)
	SplitRunsCount() (int64, error)
	RecordsCount() (int64, error)
	RecentSplitRuns(limit int) ([]store.SplitRun, error)
	DBSizeBytes() (int64, error)
}

// Server is a Unix domain socket server for CLI-to-daemon communication.
type Server struct {
	daemon    DaemonQuerier
	store     StoreQuerier
	inputDir  string
	outputDir string

	listener net.Listener
	mu       sync.Mutex
	wg       sync.WaitGroup
	stopped  bool
}

// NewServer creates a new IPC server.
func NewServer(daemon DaemonQuerier, store StoreQuerier, inputDir, outputDir string) *Server {
	return &Server{
		daemon:    daemon,
		store:     store,
		inputDir:  inputDir,
		outputDir: outputDir,
	}
}

// Listen starts accepting connections on the given Unix socket path.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Listen(socketPath string, ctx context.Context) error {
	// Remove stale socket file if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", socketPath, err)
	}

	// Set socket permissions to owner-only.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.stopped = false
	s.mu.Unlock()

	log.Printf("ipc: listening on %s", socketPath)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Stop stops accepting connections and waits for in-flight connections to drain.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.stopped = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("drain timeout: connections still open after 5s")
	}
}

// SetStore updates the store reference after daemon startup.
// Accepts interface{} to satisfy daemon.StoreAware without circular imports.
// The concrete value must implement StoreQuerier.
func (s *Server) SetStore(st interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sq, ok := st.(StoreQuerier); ok {
		s.store = sq
	}
}

// SetDaemon sets the daemon reference. This is called after daemon creation
// to break the circular construction dependency (daemon needs server, server needs daemon).
func (s *Server) SetDaemon(d DaemonQuerier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daemon = d
}

func (s *Server) refs() (DaemonQuerier, StoreQuerier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.daemon, s.store
}

// handleConn reads a single JSON request, dispatches it, and writes the response.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		writeError(conn, "empty request")
		return
	}

	var req Request
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		writeError(conn, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	switch req.Command {
	case "ping":
		writeResponse(conn, Response{OK: true, Data: "pong"})

	case "status":
		s.handleStatus(conn)

	case "lookup":
		s.handleLookup(conn, req.Args["keyword"])

	case "stop":
		writeResponse(conn, Response{OK: true, Data: "shutting down"})
		if d, _ := s.refs(); d != nil {
			d.Stop()
		}

	default:
		writeError(conn, fmt.Sprintf("unknown command: %q", req.Command))
	}
}

func (s *Server) handleStatus(conn net.Conn) {
	d, st := s.refs()
	data := StatusData{
		InputDir:  s.inputDir,
		OutputDir: s.outputDir,
	}

	if d != nil {
		data.Uptime = d.Uptime().Truncate(time.Second).String()
		data.Watcher = d.WatcherStats()
	}

	if st != nil {
		if v, err := st.DBSizeBytes(); err == nil {
			data.DBSizeBytes = v
		}
		if v, err := st.SplitRunsCount(); err == nil {
			data.SplitRunCount = v
		}
		if v, err := st.RecordsCount(); err == nil {
			data.RecordCount = v
		}
		if runs, err := st.RecentSplitRuns(recentRunsShown); err == nil {
			data.RecentRuns = runs
		}
	}

	writeResponse(conn, Response{OK: true, Data: data})
}

func (s *Server) handleLookup(conn net.Conn, keyword string) {
	_, st := s.refs()
	if st == nil {
		writeError(conn, "store not ready")
		return
	}
	if strings.TrimSpace(keyword) == "" {
		writeError(conn, "lookup requires a keyword")
		return
	}

	rec, err := st.Lookup(keyword)
	if errors.Is(err, store.ErrNotFound) {
		writeError(conn, codeNotFound)
		return
	}
	if err != nil {
		writeError(conn, err.Error())
		return
	}
	writeResponse(conn, Response{OK: true, Data: rec})
}

func writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}

func writeError(conn net.Conn, msg string) {
	writeResponse(conn, Response{OK: false, Error: msg})
}
