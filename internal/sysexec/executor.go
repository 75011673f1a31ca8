// Package sysexec runs local system commands such as the camera capture tool
// and the reboot command.
package sysexec

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Logger defines the interface for debug logging.
type Logger interface {
	Debugf(format string, args ...interface{})
}

// nopLogger is a no-op logger implementation.
type nopLogger struct{}

func (n nopLogger) Debugf(format string, args ...interface{}) {}

// SlogLogger adapts an *slog.Logger to Logger.
type SlogLogger struct{ L *slog.Logger }

func (s SlogLogger) Debugf(format string, args ...interface{}) {
	s.L.Debug(fmt.Sprintf(format, args...))
}

// Runner runs a named program with arguments and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// Executor handles local command execution.
type Executor struct {
	DryRun bool
	Logger Logger
}

// NewExecutor creates a new command executor.
func NewExecutor(dryRun bool) *Executor {
	return &Executor{
		DryRun: dryRun,
		Logger: nopLogger{},
	}
}

// SetLogger sets the debug logger for the executor.
func (e *Executor) SetLogger(logger Logger) {
	if logger != nil {
		e.Logger = logger
	}
}

// Run executes name with args directly, without a shell. The process is
// killed if ctx is cancelled.
func (e *Executor) Run(ctx context.Context, name string, args ...string) (string, error) {
	line := Describe(name, args...)
	if e.DryRun {
		return fmt.Sprintf("[DRY-RUN] Would execute: %s", line), nil
	}

	e.logger().Debugf("Executing: %s", line)

	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		e.logger().Debugf("Command failed: %v, output: %s", err, output)
		return string(output), fmt.Errorf("%s: %w", name, err)
	}
	return string(output), nil
}

func (e *Executor) logger() Logger {
	if e.Logger == nil {
		return nopLogger{}
	}
	return e.Logger
}

// Describe renders a command line for logs.
func Describe(name string, args ...string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}

// SplitCommand splits a configured command string on whitespace into a
// program and its arguments. Quoting is not supported.
func SplitCommand(command string) (string, []string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("empty command")
	}
	return fields[0], fields[1:], nil
}
