// Package supervisor drives the polling cycle: it polls the sensor, merges
// the ambient brightness, keeps the store current, throttles the log and
// escalates to a reboot after repeated communication failures.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/banshee-data/envsensor/internal/monitoring"
	"github.com/banshee-data/envsensor/internal/sensor"
	"github.com/banshee-data/envsensor/internal/timeutil"
)

// ErrRebootTriggered is returned by Step and Run once the fatal action has
// been invoked.
var ErrRebootTriggered = errors.New("failure threshold reached, reboot triggered")

const (
	DefaultFailureThreshold = 3
	DefaultPollInterval     = time.Second
)

// Poller performs one sensor exchange.
type Poller interface {
	Poll(ctx context.Context) (sensor.RawReading, error)
}

// AmbientSource reports the current camera brightness, if fresh.
type AmbientSource interface {
	Brightness() (float64, bool)
}

// Emitter is the throttled reading log.
type Emitter interface {
	MaybeEmit(sensor.Reading) (bool, error)
}

// Sink receives every successful reading. Errors are logged only.
type Sink interface {
	Record(ctx context.Context, r sensor.Reading) error
}

// Config tunes the cycle. PollInterval of zero polls back to back.
type Config struct {
	FailureThreshold int
	PollInterval     time.Duration
}

// Options carries the supervisor's collaborators. Poller, Store and Fatal are
// required; the rest may be nil.
type Options struct {
	Poller  Poller
	Ambient AmbientSource
	Store   *sensor.Store
	Log     Emitter
	Sinks   []Sink
	Fatal   FatalAction
	Clock   timeutil.Clock
}

// Status is a snapshot for the status API.
type Status struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	FailureThreshold    int       `json:"failure_threshold"`
	Cycles              uint64    `json:"cycles"`
	LastError           string    `json:"last_error,omitempty"`
	LastErrorKind       string    `json:"last_error_kind,omitempty"`
	LastUpdate          time.Time `json:"last_update"`
	LastEmission        time.Time `json:"last_emission"`
}

type Supervisor struct {
	cfg    Config
	opts   Options
	clock  timeutil.Clock
	logger *slog.Logger

	mu           sync.Mutex
	state        State
	failures     int
	cycles       uint64
	lastErr      error
	lastEmission time.Time
	triggered    bool
}

func New(cfg Config, opts Options) *Supervisor {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.PollInterval < 0 {
		cfg.PollInterval = 0
	}
	if opts.Store == nil {
		opts.Store = sensor.NewStore()
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Supervisor{
		cfg:    cfg,
		opts:   opts,
		clock:  clock,
		logger: monitoring.Logger().With("component", "supervisor"),
		state:  StateInit,
	}
}

// Store returns the reading store the supervisor updates.
func (s *Supervisor) Store() *sensor.Store { return s.opts.Store }

// Run repeats Step until ctx is cancelled (returns nil, state Stopped) or the
// failure threshold is reached (returns ErrRebootTriggered).
func (s *Supervisor) Run(ctx context.Context) error {
	s.setState(StatePolling)
	s.logger.Info("supervisor started", "threshold", s.cfg.FailureThreshold, "poll_interval", s.cfg.PollInterval)

	for {
		if ctx.Err() != nil {
			return s.stop()
		}
		if err := s.Step(ctx); err != nil {
			if errors.Is(err, ErrRebootTriggered) {
				return err
			}
			if ctx.Err() != nil {
				return s.stop()
			}
		}

		if s.cfg.PollInterval > 0 {
			select {
			case <-ctx.Done():
				return s.stop()
			case <-s.clock.After(s.cfg.PollInterval):
			}
		}
	}
}

func (s *Supervisor) stop() error {
	s.setState(StateStopped)
	s.logger.Info("supervisor stopped")
	return nil
}

// Step runs one polling cycle. Poll failures are absorbed into the failure
// counter; Step reports an error only for cancellation or once the reboot
// has been triggered.
func (s *Supervisor) Step(ctx context.Context) error {
	s.mu.Lock()
	if s.triggered {
		s.mu.Unlock()
		return ErrRebootTriggered
	}
	if s.state == StateInit {
		s.state = StatePolling
	}
	s.cycles++
	s.mu.Unlock()

	raw, err := s.opts.Poller.Poll(ctx)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	if err == nil {
		s.handleSuccess(ctx, raw)
	} else {
		s.handleFailure(err)
	}

	s.maybeEmit()

	s.mu.Lock()
	reached := s.failures >= s.cfg.FailureThreshold
	if reached {
		s.state = StateReboot
		s.triggered = true
	}
	failures := s.failures
	lastErr := s.lastErr
	s.mu.Unlock()

	if !reached {
		return nil
	}

	s.logger.Error("consecutive failure threshold reached, triggering reboot", "failures", failures, "error", lastErr)
	if ferr := s.opts.Fatal.Trigger(ctx, lastErr); ferr != nil {
		s.logger.Error("reboot action failed", "error", ferr)
		return errors.Join(ErrRebootTriggered, ferr)
	}
	return ErrRebootTriggered
}

func (s *Supervisor) handleSuccess(ctx context.Context, raw sensor.RawReading) {
	var camera *float64
	if s.opts.Ambient != nil {
		if v, ok := s.opts.Ambient.Brightness(); ok {
			camera = &v
		}
	}
	r := sensor.NewReading(raw, camera, s.clock.Now())
	s.opts.Store.Update(r)

	s.mu.Lock()
	if s.failures > 0 {
		s.logger.Info("sensor recovered", "after_failures", s.failures)
	}
	s.failures = 0
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Debug("reading updated", "temperature", r.Temperature, "humidity", r.Humidity, "camera_light", camera != nil)

	for _, sink := range s.opts.Sinks {
		if err := sink.Record(ctx, r); err != nil {
			s.logger.Warn("reading sink failed", "error", err)
		}
	}
}

func (s *Supervisor) handleFailure(err error) {
	s.mu.Lock()
	s.failures++
	s.lastErr = err
	failures := s.failures
	s.mu.Unlock()

	s.logger.Warn("sensor poll failed", "error", err, "kind", errorKind(err), "failures", failures)
}

// maybeEmit logs the last known reading, whether or not this cycle's poll
// succeeded.
func (s *Supervisor) maybeEmit() {
	if s.opts.Log == nil {
		return
	}
	emitted, err := s.opts.Log.MaybeEmit(s.opts.Store.Current())
	if err != nil {
		s.logger.Error("writing reading log", "error", err)
		return
	}
	if emitted {
		s.mu.Lock()
		s.lastEmission = s.clock.Now()
		s.mu.Unlock()
	}
}

func errorKind(err error) string {
	var ce *sensor.CommError
	if errors.As(err, &ce) {
		return ce.Kind.String()
	}
	return "unknown"
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.triggered {
		return
	}
	s.state = st
}

// Status returns a consistent snapshot of the supervisor.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:               s.state,
		ConsecutiveFailures: s.failures,
		FailureThreshold:    s.cfg.FailureThreshold,
		Cycles:              s.cycles,
		LastUpdate:          s.opts.Store.LastUpdateTime(),
		LastEmission:        s.lastEmission,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
		st.LastErrorKind = errorKind(s.lastErr)
	}
	return st
}
