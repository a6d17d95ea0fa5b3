// Package applog sets up the file logger. The terminal belongs to the UI, so
// log output goes to a size-rotated file instead of stderr.
package applog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
	"pkt.systems/pslog"

	"github.com/glabrego/tvguide-cli/internal/config"
)

// Open returns a structured logger writing to cfg.File with rotation. The
// returned closer flushes and closes the file.
func Open(cfg config.LogConfig) (pslog.Logger, io.Closer, error) {
	if strings.TrimSpace(cfg.File) == "" {
		return nil, nil, fmt.Errorf("log file is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	sink := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return New(sink, cfg.Level), sink, nil
}

// New builds a structured logger on w at the named minimum level.
func New(w io.Writer, level string) pslog.Logger {
	opts := pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		VerboseFields: true,
		MinLevel:      pslog.InfoLevel,
	}
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		opts.MinLevel = pslog.TraceLevel
	case "debug":
		opts.MinLevel = pslog.DebugLevel
	case "warn":
		opts.MinLevel = pslog.WarnLevel
	case "error":
		opts.MinLevel = pslog.ErrorLevel
	}
	return pslog.NewWithOptions(w, opts)
}
