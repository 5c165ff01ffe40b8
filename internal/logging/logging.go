// Package logging sets up the daemon's append-only session log: a
// single log file opened O_APPEND under the user's own state
// directory, with the standard library logger redirected onto it.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

const maxLogSize = 50 * 1024 * 1024 // 50 MiB

// Logger owns the open log file and, when verbose, tees output to stderr.
type Logger struct {
	path string
	file *os.File
}

// Open creates (or appends to) the log file at
// $XDG_STATE_HOME/stasis/stasis.log (falling back to
// ~/.local/state/stasis), rotating it first if it has grown past
// maxLogSize. When verbose is true, log output is also echoed to
// stderr.
func Open(verbose bool) (*Logger, error) {
	dir, err := logDir()
	if err != nil {
		return nil, fmt.Errorf("resolving log directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	path := filepath.Join(dir, "stasis.log")
	if err := rotateIfOversize(path); err != nil {
		return nil, fmt.Errorf("rotating log file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	var out io.Writer = f
	if verbose {
		out = io.MultiWriter(f, os.Stderr)
	}
	log.SetOutput(out)
	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("---------------- stasis session start ----------------")

	return &Logger{path: path, file: f}, nil
}

// Path returns the active log file's path.
func (l *Logger) Path() string {
	return l.path
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	return l.file.Close()
}

// CheckRotate truncates the log file in place once it exceeds
// maxLogSize. The daemon calls this periodically (alongside startup)
// since nothing else rotates a log it keeps appending to for its
// entire lifetime.
func (l *Logger) CheckRotate() error {
	info, err := l.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < maxLogSize {
		return nil
	}
	if err := l.file.Truncate(0); err != nil {
		return err
	}
	_, err = l.file.Seek(0, io.SeekStart)
	return err
}

// rotateIfOversize deletes path outright if it has already grown past
// maxLogSize by the time Open runs, matching the blunt delete-and-restart
// behavior of a log that "rotates by deletion".
func rotateIfOversize(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < maxLogSize {
		return nil
	}
	return os.Remove(path)
}

func logDir() (string, error) {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "stasis"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "stasis"), nil
}
