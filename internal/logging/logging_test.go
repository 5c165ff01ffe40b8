package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)

	l, err := Open(false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	if _, err := os.Stat(l.Path()); err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
	if filepath.Dir(l.Path()) != filepath.Join(dir, "stasis") {
		t.Fatalf("unexpected log dir: %s", l.Path())
	}
}

func TestCheckRotateTruncatesOversizeLog(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)

	l, err := Open(false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	big := make([]byte, maxLogSize+1)
	if _, err := l.file.Write(big); err != nil {
		t.Fatalf("writing oversize content: %v", err)
	}

	if err := l.CheckRotate(); err != nil {
		t.Fatalf("CheckRotate: %v", err)
	}

	info, err := l.file.Stat()
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("expected log truncated to 0 bytes, got %d", info.Size())
	}
}

func TestOpenRemovesPreexistingOversizeLog(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)

	logPath := filepath.Join(dir, "stasis", "stasis.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(logPath, make([]byte, maxLogSize+1), 0644); err != nil {
		t.Fatalf("writing oversize log: %v", err)
	}

	l, err := Open(false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	info, err := os.Stat(l.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() >= maxLogSize {
		t.Fatalf("expected rotated-then-reopened log to start small, got size %d", info.Size())
	}
}
