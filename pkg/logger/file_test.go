package logger

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerMirrorsToRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kolo.log")
	stdout := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Format: "console", Output: stdout, File: FileOptions{Path: path}})

	log.Info(log.WithGroupID(context.Background(), "grp-9"), "balance synced")
	if err := log.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"group_id":"grp-9"`) {
		t.Fatalf("expected JSON line in file, got %s", data)
	}
	if !strings.Contains(stdout.String(), "balance synced") {
		t.Fatalf("expected console output too, got %s", stdout.String())
	}
}

func TestCloseWithoutFile(t *testing.T) {
	if err := New(Options{ServiceName: "test", Output: &bytes.Buffer{}}).Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var nilLogger *Logger
	if err := nilLogger.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFileOptionsDefaults(t *testing.T) {
	w := FileOptions{Path: "x.log"}.writer()
	if w.MaxSize != 100 || w.MaxBackups != 5 || w.MaxAge != 14 {
		t.Fatalf("unexpected defaults %+v", w)
	}
}
