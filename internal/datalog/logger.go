// Package datalog appends readings to a tab separated log file at a bounded
// rate.
package datalog

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/envsensor/internal/fsutil"
	"github.com/banshee-data/envsensor/internal/sensor"
	"github.com/banshee-data/envsensor/internal/timeutil"
)

// DefaultInterval is the minimum spacing between two log lines.
const DefaultInterval = 60 * time.Second

// ShouldEmit reports whether a line may be written at now given the time of
// the previous emission. A zero last always allows emission.
func ShouldEmit(now, last time.Time, interval time.Duration) bool {
	return last.IsZero() || now.Sub(last) >= interval
}

// Logger writes readings to an append-only file. Each emission opens the
// file, writes one line and closes it, so the file is never held open
// between cycles.
type Logger struct {
	path     string
	interval time.Duration
	fs       fsutil.FileSystem
	clock    timeutil.Clock

	mu   sync.Mutex
	last time.Time
}

// NewLogger creates a Logger for path. A non-positive interval selects
// DefaultInterval; nil fs and clock select the OS and real clock.
func NewLogger(path string, interval time.Duration, fs fsutil.FileSystem, clock timeutil.Clock) *Logger {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Logger{path: path, interval: interval, fs: fs, clock: clock}
}

func (l *Logger) Path() string            { return l.path }
func (l *Logger) Interval() time.Duration { return l.interval }

// LastEmission returns when the last line was written, zero if none.
func (l *Logger) LastEmission() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// MaybeEmit writes r if the interval since the last emission has elapsed.
// The empty sentinel is never written. A failed write does not advance the
// emission time, so the next cycle retries.
func (l *Logger) MaybeEmit(r sensor.Reading) (bool, error) {
	if r.IsZero() {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if !ShouldEmit(now, l.last, l.interval) {
		return false, nil
	}
	if err := l.appendLocked(r); err != nil {
		return false, err
	}
	l.last = now
	return true, nil
}

// Emit writes r unconditionally and resets the throttle.
func (l *Logger) Emit(r sensor.Reading) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.appendLocked(r); err != nil {
		return err
	}
	l.last = l.clock.Now()
	return nil
}

func (l *Logger) appendLocked(r sensor.Reading) (err error) {
	if dir := filepath.Dir(l.path); dir != "." && dir != "" {
		if err := l.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}
	w, err := l.fs.OpenAppend(l.path)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close log: %w", cerr)
		}
	}()
	if _, err := io.WriteString(w, FormatLine(r)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
