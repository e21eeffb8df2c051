// Package recorder writes the per-window sample logs.
package recorder

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/motion.report/internal/fsutil"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/telemetry"
	"github.com/banshee-data/motion.report/internal/timeutil"
	"github.com/banshee-data/motion.report/internal/window"
)

// DataDir is the subdirectory of the output directory holding window logs.
const DataDir = "data"

// DataPath returns the log path of the window starting at start.
func DataPath(outDir string, start time.Time) string {
	return filepath.Join(outDir, DataDir, "data-"+timeutil.FormatFileStamp(start)+".jsonl")
}

// LogSink appends every sample as one JSON line to a file per window.
type LogSink struct {
	window.NopSink

	fs     fsutil.FileSystem
	outDir string

	mu    sync.Mutex
	file  io.WriteCloser
	path  string
	lines int64
	files int
}

// NewLogSink returns a LogSink writing under outDir/data.
func NewLogSink(fs fsutil.FileSystem, outDir string) *LogSink {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &LogSink{fs: fs, outDir: outDir}
}

// Open creates the log of the first window.
func (l *LogSink) Open(start time.Time, _ *window.Window) error {
	if err := l.fs.MkdirAll(filepath.Join(l.outDir, DataDir), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openLocked(start)
}

func (l *LogSink) openLocked(start time.Time) error {
	path := DataPath(l.outDir, start)
	f, err := l.fs.Create(path)
	if err != nil {
		return fmt.Errorf("create window log: %w", err)
	}
	l.file = f
	l.path = path
	l.files++
	monitoring.Logf("logging window to %s", path)
	return nil
}

// Record writes s to the current log.
func (l *LogSink) Record(s telemetry.Sample) error {
	line, err := s.Line()
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return fmt.Errorf("write sample %v: no open window log", s.S)
	}
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("write %s: %w", l.path, err)
	}
	l.lines++
	return nil
}

// OnRotate closes the outgoing log and opens one for the next window.
func (l *LogSink) OnRotate(_ *window.Window, next time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.closeLocked(); err != nil {
		return err
	}
	return l.openLocked(next)
}

// Close closes the current log.
func (l *LogSink) Close(*window.Window) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *LogSink) closeLocked() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", l.path, err)
	}
	return nil
}

// Path returns the path of the current (or last) window log.
func (l *LogSink) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Lines returns the number of samples written across all windows.
func (l *LogSink) Lines() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lines
}

// Files returns the number of window logs created.
func (l *LogSink) Files() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.files
}
