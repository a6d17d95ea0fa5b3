package applog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glabrego/tvguide-cli/internal/config"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")
	log.Info("hidden message")
	log.Warn("visible message", "tab", "all")
	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Fatalf("expected info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "visible message") || !strings.Contains(out, "all") {
		t.Fatalf("expected warn entry with fields, got %q", out)
	}
}

func TestOpenWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tvguide.log")
	log, closer, err := Open(config.LogConfig{File: path, Level: "info", MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	log.Info("guide started")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "guide started") {
		t.Fatalf("expected entry in log file, got %q", data)
	}
}

func TestOpenRequiresFile(t *testing.T) {
	if _, _, err := Open(config.LogConfig{}); err == nil {
		t.Fatal("expected error without a file")
	}
}
