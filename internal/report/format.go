// Package report renders daemon status, split ledgers and lookups for the
// terminal.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/starrysea/dialogsplit/internal/ipc"
	"github.com/starrysea/dialogsplit/internal/splitter"
	"github.com/starrysea/dialogsplit/internal/store"
)

// ANSI escape codes for terminal formatting.
const (
	bold   = "\033[1m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	reset  = "\033[0m"
)

// FormatStatus formats daemon StatusData as a terminal-friendly table.
func FormatStatus(status *ipc.StatusData) string {
	var b strings.Builder

	b.WriteString(bold + "dialogsplit - Daemon Status" + reset + "\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")

	b.WriteString(fmt.Sprintf("%-20s %s\n", "Uptime:", status.Uptime))
	b.WriteString(fmt.Sprintf("%-20s %s\n", "Input:", status.InputDir))
	b.WriteString(fmt.Sprintf("%-20s %s\n", "Output:", status.OutputDir))
	b.WriteString(fmt.Sprintf("%-20s %s\n", "DB Size:", humanBytes(status.DBSizeBytes)))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Split Runs:", status.SplitRunCount))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Records:", status.RecordCount))

	w := status.Watcher
	b.WriteString(fmt.Sprintf("\n%sWatcher%s\n", bold, reset))
	b.WriteString(strings.Repeat("-", 40) + "\n")
	state := red + "stopped" + reset
	if w.Running {
		state = green + "running" + reset
	}
	b.WriteString(fmt.Sprintf("%-20s %s\n", "State:", state))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Events:", w.Events))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Splits:", w.Splits))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Locked:", w.Locked))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Failures:", w.Failures))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Coalesced:", w.Coalesced))
	b.WriteString(fmt.Sprintf("%-20s %d active, %d queued, %d debouncing\n",
		"Workers:", w.Active, w.Pending, w.Debounced))
	if w.Blocked > 0 {
		b.WriteString(fmt.Sprintf("%-20s %s%d%s\n", "Back-pressure:", yellow, w.Blocked, reset))
	}

	if len(status.RecentRuns) > 0 {
		b.WriteString("\n")
		b.WriteString(FormatRuns(status.RecentRuns))
	}

	return b.String()
}

// FormatRuns formats split ledger entries, newest first, as a table.
func FormatRuns(runs []store.SplitRun) string {
	var b strings.Builder

	b.WriteString(bold + "Recent Splits" + reset + "\n")
	b.WriteString(strings.Repeat("-", 72) + "\n")
	b.WriteString(fmt.Sprintf("%-28s %-20s %5s %6s %8s\n", "Source", "Started", "Days", "Failed", "Outcome"))
	b.WriteString(strings.Repeat("-", 72) + "\n")

	for _, r := range runs {
		name := r.Source
		if len(name) > 27 {
			name = "..." + name[len(name)-24:]
		}
		b.WriteString(fmt.Sprintf("%-28s %-20s %5d %6d %s\n",
			name, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Days, r.Failed, outcome(r.Locked, r.Failed, r.Error)))
	}

	return b.String()
}

// FormatResult formats the outcome of a one-shot split.
func FormatResult(res splitter.Result, err error, took time.Duration) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s%s%s: %s", bold, res.Name, reset,
		outcome(res.Locked, res.Failed, errString(err))))
	switch {
	case res.Locked:
		b.WriteString(" (try again once the exporter has finished)\n")
		return b.String()
	case len(res.Days) == 0:
		b.WriteString(", no day files written")
	case len(res.Days) == 1:
		b.WriteString(fmt.Sprintf(", 1 day file (%s)", res.Days[0]))
	default:
		b.WriteString(fmt.Sprintf(", %d day files (%s .. %s)",
			len(res.Days), res.Days[0], res.Days[len(res.Days)-1]))
	}
	if res.Skipped > 0 {
		b.WriteString(fmt.Sprintf(", %d block(s) without a header skipped", res.Skipped))
	}
	b.WriteString(fmt.Sprintf(" in %s\n", took.Round(time.Millisecond)))
	if err != nil {
		b.WriteString(fmt.Sprintf("  %s%v%s\n", red, err, reset))
	}

	return b.String()
}

// FormatRecord formats a lookup result.
func FormatRecord(r *store.Record) string {
	return fmt.Sprintf("%s%s%s = %s\n  updated %s\n",
		bold, r.Keyword, reset, r.Value, r.UpdatedAt.Local().Format(time.RFC3339))
}

// FormatJSON marshals any value as indented JSON.
func FormatJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

// outcome returns a colored one-word summary of a split.
func outcome(locked bool, failed int, errText string) string {
	switch {
	case locked:
		return yellow + "locked" + reset
	case failed > 0 || errText != "":
		return red + "failed" + reset
	default:
		return green + "ok" + reset
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// humanBytes formats bytes as a human-readable string (KB, MB, GB).
func humanBytes(b int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)

	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
