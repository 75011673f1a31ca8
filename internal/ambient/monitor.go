// Package ambient keeps a camera snapshot fresh and derives a brightness
// value from it.
package ambient

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/envsensor/internal/fsutil"
	"github.com/banshee-data/envsensor/internal/monitoring"
	"github.com/banshee-data/envsensor/internal/timeutil"
)

const (
	DefaultPath            = "/root/camera_light.jpg"
	DefaultCaptureInterval = 60 * time.Second
	DefaultMaxBackoff      = 10 * time.Minute
	DefaultFreshnessBound  = 300 * time.Second
)

// Config controls capture cadence and how old a snapshot may be.
type Config struct {
	Path            string
	CaptureInterval time.Duration
	MaxBackoff      time.Duration
	FreshnessBound  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.CaptureInterval <= 0 {
		c.CaptureInterval = DefaultCaptureInterval
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	c.MaxBackoff = max(c.MaxBackoff, c.CaptureInterval)
	if c.FreshnessBound <= 0 {
		c.FreshnessBound = DefaultFreshnessBound
	}
	return c
}

// Monitor periodically refreshes the snapshot and answers brightness queries.
// Run and Brightness may be called from different goroutines; they share only
// the file at Config.Path.
type Monitor struct {
	cfg      Config
	capturer Capturer
	fs       fsutil.FileSystem
	clock    timeutil.Clock
	logger   *slog.Logger

	mu          sync.Mutex
	failures    int
	lastCapture time.Time
	lastErr     error
}

// NewMonitor creates a Monitor. A nil fs or clock selects the OS filesystem
// and the real clock.
func NewMonitor(cfg Config, capturer Capturer, fs fsutil.FileSystem, clock timeutil.Clock) *Monitor {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Monitor{
		cfg:      cfg.withDefaults(),
		capturer: capturer,
		fs:       fs,
		clock:    clock,
		logger:   monitoring.Logger().With("component", "ambient"),
	}
}

// Config returns the effective configuration.
func (m *Monitor) Config() Config { return m.cfg }

// Run captures immediately and then once per CaptureInterval until ctx is
// done. Failures are logged and back off exponentially up to MaxBackoff.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		wait := m.cfg.CaptureInterval
		if err := m.CaptureOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait = m.backoff()
			m.logger.Warn("snapshot capture failed", "error", err, "retry_in", wait)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-m.clock.After(wait):
		}
	}
}

// CaptureOnce writes a new snapshot to a temporary sibling and renames it
// into place.
func (m *Monitor) CaptureOnce(ctx context.Context) error {
	tmp := filepath.Join(filepath.Dir(m.cfg.Path), ".capture-"+filepath.Base(m.cfg.Path))
	err := m.capturer.Capture(ctx, tmp)
	if err == nil {
		err = m.fs.Rename(tmp, m.cfg.Path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
	if err != nil {
		m.failures++
		if m.fs.Exists(tmp) {
			_ = m.fs.Remove(tmp)
		}
		return err
	}
	m.failures = 0
	m.lastCapture = m.clock.Now()
	m.logger.Debug("snapshot saved", "path", m.cfg.Path)
	return nil
}

// backoff doubles the wait per consecutive failure, capped at MaxBackoff.
func (m *Monitor) backoff() time.Duration {
	m.mu.Lock()
	n := m.failures
	m.mu.Unlock()

	d := m.cfg.CaptureInterval
	for i := 1; i < n && d < m.cfg.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, m.cfg.MaxBackoff)
}

// Brightness returns the snapshot's mean brightness when the file exists, is
// no older than FreshnessBound and decodes. It has no side effects.
func (m *Monitor) Brightness() (float64, bool) {
	info, err := m.fs.Stat(m.cfg.Path)
	if err != nil || info.IsDir() {
		return 0, false
	}
	if m.clock.Since(info.ModTime()) > m.cfg.FreshnessBound {
		return 0, false
	}
	data, err := m.fs.ReadFile(m.cfg.Path)
	if err != nil {
		return 0, false
	}
	v, err := MeanBrightness(data)
	if err != nil {
		// a snapshot replaced mid-read fails to decode; treat as absent
		return 0, false
	}
	return v, true
}

// Status is a point-in-time view of the capture loop.
type Status struct {
	LastCapture         time.Time `json:"last_capture"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Status{LastCapture: m.lastCapture, ConsecutiveFailures: m.failures}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}
