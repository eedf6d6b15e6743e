package launcher

import (
	"context"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// Command is one external process invocation.
type Command struct {
	Name string
	Args []string
	Env  []string
}

// Runner executes a command and blocks until it exits.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands as child processes sharing the given output streams.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
	// KillGrace is how long a cancelled child gets between SIGTERM and SIGKILL.
	KillGrace time.Duration
}

func (r ExecRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Env = c.Env
	cmd.Stdin = os.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.KillGrace
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 30 * time.Second
	}

	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "%s exited", c.Name)
	}
	return nil
}

type exitCoder interface {
	ExitCode() int
}

// ExitCode extracts the child exit status carried by err: 0 for nil, the
// process status when known, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec exitCoder
	if errors.As(err, &ec) {
		if code := ec.ExitCode(); code > 0 {
			return code
		}
	}
	return 1
}
