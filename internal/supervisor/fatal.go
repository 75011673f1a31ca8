package supervisor

import (
	"context"
	"fmt"

	"github.com/banshee-data/envsensor/internal/sysexec"
)

// FatalAction is invoked once when consecutive failures reach the threshold.
type FatalAction interface {
	Trigger(ctx context.Context, reason error) error
}

// FatalFunc adapts a function to FatalAction.
type FatalFunc func(ctx context.Context, reason error) error

func (f FatalFunc) Trigger(ctx context.Context, reason error) error { return f(ctx, reason) }

// DefaultRebootCommand restarts the host.
const DefaultRebootCommand = "reboot"

// RebootAction runs a configured command such as "reboot" to power cycle the
// host and, with it, the sensor board.
type RebootAction struct {
	Runner  sysexec.Runner
	Program string
	Args    []string
}

// NewRebootAction parses command (split on whitespace) into a RebootAction.
// An empty command selects DefaultRebootCommand.
func NewRebootAction(runner sysexec.Runner, command string) (*RebootAction, error) {
	if command == "" {
		command = DefaultRebootCommand
	}
	program, args, err := sysexec.SplitCommand(command)
	if err != nil {
		return nil, err
	}
	return &RebootAction{Runner: runner, Program: program, Args: args}, nil
}

func (a *RebootAction) Trigger(ctx context.Context, reason error) error {
	if out, err := a.Runner.Run(ctx, a.Program, a.Args...); err != nil {
		return fmt.Errorf("reboot command %q: %w (output: %s)", sysexec.Describe(a.Program, a.Args...), err, out)
	}
	return nil
}
