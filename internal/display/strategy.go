package display

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
)

// Strategy switches display power through one mechanism.
type Strategy interface {
	Name() string
	SetPower(ctx context.Context, on bool) error
}

// Runner executes an external command with extra environment variables.
type Runner func(ctx context.Context, env []string, name string, args ...string) error

// ExecRunner runs commands with os/exec and folds their output into errors.
func ExecRunner(ctx context.Context, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	// children left holding the output pipe must not outlive the deadline
	cmd.WaitDelay = waitDelay
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}

	return nil
}

const (
	DefaultCommandTimeout = 5 * time.Second

	waitDelay = time.Second
)

// StrategyOptions carries the target of the command strategies.
type StrategyOptions struct {
	// Output is the connector name for xrandr and wlr-randr.
	Output string
	// XDisplay is exported as DISPLAY for X11 tools.
	XDisplay string
	// CommandTimeout bounds each command run.
	CommandTimeout time.Duration
	Runner         Runner
}

type commandStrategy struct {
	name    string
	env     []string
	args    func(on bool) []string
	run     Runner
	bin     string
	timeout time.Duration
}

func (s *commandStrategy) Name() string { return s.name }

func (s *commandStrategy) SetPower(ctx context.Context, on bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.run(ctx, s.env, s.bin, s.args(on)...); err != nil {
		return errors.New().Wrap(ErrCommandFailed, err).WithMessage(s.name + " failed")
	}

	return nil
}

func onOff(on bool, yes, no string) string {
	if on {
		return yes
	}
	return no
}

// NewStrategy builds a named strategy: xset, xrandr, vcgencmd, tvservice
// or wlr-randr.
func NewStrategy(name string, opts StrategyOptions) (Strategy, error) {
	run := opts.Runner
	if run == nil {
		run = ExecRunner
	}

	var xenv []string
	if opts.XDisplay != "" {
		xenv = []string{"DISPLAY=" + opts.XDisplay}
	}

	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	s := &commandStrategy{name: name, run: run, bin: name, timeout: timeout}

	switch name {
	case "xset":
		s.env = xenv
		s.args = func(on bool) []string {
			return []string{"dpms", "force", onOff(on, "on", "off")}
		}
	case "xrandr":
		s.env = xenv
		s.args = func(on bool) []string {
			return []string{"--output", opts.Output, onOff(on, "--auto", "--off")}
		}
	case "vcgencmd":
		s.args = func(on bool) []string {
			return []string{"display_power", onOff(on, "1", "0")}
		}
	case "tvservice":
		s.args = func(on bool) []string {
			return []string{onOff(on, "-p", "-o")}
		}
	case "wlr-randr":
		s.args = func(on bool) []string {
			return []string{"--output", opts.Output, onOff(on, "--on", "--off")}
		}
	default:
		return nil, errors.New().WithData(ErrUnsupportedMethod, name)
	}

	return s, nil
}

// NewStrategies builds strategies in the given order.
func NewStrategies(names []string, opts StrategyOptions) ([]Strategy, error) {
	strategies := make([]Strategy, 0, len(names))
	for _, name := range names {
		s, err := NewStrategy(name, opts)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}

	return strategies, nil
}
