package ipc

import (
	"github.com/starrysea/dialogsplit/internal/store"
	"github.com/starrysea/dialogsplit/internal/watcher"
)

// Request is a JSON message sent from client to server.
type Request struct {
	Command string            `json:"command"` // "status", "stop", "ping", "lookup"
	Args    map[string]string `json:"args,omitempty"`
}

// Response is a JSON message sent from server to client.
type Response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// StatusData is returned by the "status" command.
type StatusData struct {
	Uptime        string           `json:"uptime"`
	InputDir      string           `json:"input_dir"`
	OutputDir     string           `json:"output_dir"`
	DBSizeBytes   int64            `json:"db_size_bytes"`
	SplitRunCount int64            `json:"split_run_count"`
	RecordCount   int64            `json:"record_count"`
	Watcher       watcher.Stats    `json:"watcher"`
	RecentRuns    []store.SplitRun `json:"recent_runs,omitempty"`
}

// codeNotFound is the error text the server uses for an unknown keyword.
const codeNotFound = "not_found"
