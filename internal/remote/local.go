// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package remote

import (
	"bytes"
	"context"
	"os/exec"
	"syscall"
	"time"

	"grimm.is/peerbench/internal/errors"
)

// LocalChannel runs commands through /bin/sh on this host.
type LocalChannel struct {
	Shell string
	// WaitDelay bounds how long Exec waits for output pipes after the shell
	// has been killed.
	WaitDelay time.Duration
}

// NewLocalChannel returns a LocalChannel using /bin/sh.
func NewLocalChannel() *LocalChannel {
	return &LocalChannel{Shell: "/bin/sh", WaitDelay: 2 * time.Second}
}

// Exec implements Channel.
func (c *LocalChannel) Exec(ctx context.Context, ep HostEndpoint, command string) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Shell, "-c", command)
	// Own process group so cancellation reaches every child of the shell.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = c.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, errors.Wrapf(err, errors.KindRemoteExecution, "failed to start shell on %s", ep)
	}
	return res, nil
}
