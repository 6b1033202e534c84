package logging

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starrysea/dialogsplit/internal/config"
)

func TestSetupWritesToFile(t *testing.T) {
	cfg := config.Default()
	cfg.LogFile = filepath.Join(t.TempDir(), "logs", "dialogsplit.log")

	closer := Setup(cfg)
	log.Printf("splitter: test line")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	log.SetOutput(os.Stderr)

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "splitter: test line") {
		t.Errorf("log file = %q", data)
	}
}

func TestSetupWithoutFile(t *testing.T) {
	cfg := config.Default()
	closer := Setup(cfg)
	if err := closer.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
