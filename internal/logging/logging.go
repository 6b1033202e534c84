// Package logging routes the standard logger to a rotating file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starrysea/dialogsplit/internal/config"
)

// Setup points the standard logger at cfg.LogFile, rotated by size, or at
// stderr when no file is configured. The returned closer releases the file.
func Setup(cfg *config.Config) io.Closer {
	log.SetFlags(log.LstdFlags)
	if cfg.LogFile == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}
	}

	lj := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, lj))
	return lj
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
