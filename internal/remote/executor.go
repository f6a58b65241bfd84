// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package remote

import (
	"context"
	"strings"
	"time"

	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/invocation"
	"grimm.is/peerbench/internal/logging"
)

// ErrTimeout marks a call that exceeded its deadline. It is always wrapped
// in a KindRemoteExecution error.
var ErrTimeout = errors.New(errors.KindRemoteExecution, "command timed out")

// timeoutExitCode is what coreutils timeout(1) exits with when it fires.
const timeoutExitCode = 124

// channelGrace is added to the channel deadline so that the timeout(1) wrapper
// on the far side fires first and the exit status still comes back.
const channelGrace = 5 * time.Second

// ExitStatus is the outcome of a synchronous command.
type ExitStatus struct {
	Code     int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success reports a zero exit code.
func (s ExitStatus) Success() bool {
	return s.Code == 0
}

// LaunchStatus is the outcome of a detached launch. Accepted only means the
// launching shell took the command; it says nothing about completion.
type LaunchStatus struct {
	Accepted bool
	Code     int
	Stderr   string
}

// Executor dispatches commands to the channel matching an endpoint's role.
type Executor struct {
	local  Channel
	remote Channel
	logger *logging.Logger
}

// NewExecutor creates an Executor. Either channel may be nil if the run never
// targets that role.
func NewExecutor(local, remote Channel, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.WithComponent("remote")
	}
	return &Executor{local: local, remote: remote, logger: logger}
}

func (e *Executor) channel(ep HostEndpoint) (Channel, error) {
	ch := e.local
	if ep.Role == RoleRemote {
		ch = e.remote
	}
	if ch == nil {
		return nil, errors.Errorf(errors.KindConfiguration, "no channel configured for %s endpoints", ep.Role)
	}
	return ch, nil
}

func (e *Executor) exec(ctx context.Context, ep HostEndpoint, line string, timeout time.Duration) (Result, error) {
	ch, err := e.channel(ep)
	if err != nil {
		return Result{}, err
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout+channelGrace)
		defer cancel()
	}

	e.logger.Debug("exec", "endpoint", ep.String(), "command", line)
	res, err := ch.Exec(callCtx, ep, line)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = errors.Wrapf(ErrTimeout, errors.KindRemoteExecution, "%s exceeded %s", ep, timeout)
		} else if !errors.IsKind(err, errors.KindRemoteExecution) && !errors.IsKind(err, errors.KindConfiguration) {
			err = errors.Wrapf(err, errors.KindRemoteExecution, "exec on %s failed", ep)
		}
		return res, errors.Attr(errors.Attr(err, "endpoint", ep.Address), "command", line)
	}
	return res, nil
}

// RunSync runs cmd on ep and waits for it, bounded by timeout (zero means no
// bound). A timeout or channel failure is returned as a KindRemoteExecution
// error; a non-zero exit is reported in ExitStatus only.
func (e *Executor) RunSync(ctx context.Context, ep HostEndpoint, cmd invocation.Command, timeout time.Duration) (ExitStatus, error) {
	line := cmd.WithTimeout(timeout).String()
	res, err := e.exec(ctx, ep, line, timeout)
	status := ExitStatus{
		Code:     res.ExitCode,
		Stdout:   string(res.Stdout),
		Stderr:   string(res.Stderr),
		Duration: res.Duration,
	}
	if err != nil {
		return status, err
	}
	if timeout > 0 && res.ExitCode == timeoutExitCode {
		err = errors.Wrapf(ErrTimeout, errors.KindRemoteExecution, "%s exceeded %s", ep, timeout)
		return status, errors.Attr(errors.Attr(err, "endpoint", ep.Address), "command", line)
	}
	return status, nil
}

// RunAsyncDetached starts cmd on ep without waiting for it to finish. Output
// goes to logTarget on the same endpoint. The command itself is bounded by
// timeout through timeout(1); the launch call is bounded by the same deadline.
func (e *Executor) RunAsyncDetached(ctx context.Context, ep HostEndpoint, cmd invocation.Command, timeout time.Duration, logTarget string) (LaunchStatus, error) {
	line := cmd.WithTimeout(timeout).Detached(logTarget)
	res, err := e.exec(ctx, ep, line, timeout)
	if err != nil {
		return LaunchStatus{}, err
	}
	status := LaunchStatus{
		Accepted: res.ExitCode == 0,
		Code:     res.ExitCode,
		Stderr:   strings.TrimSpace(string(res.Stderr)),
	}
	if !status.Accepted {
		e.logger.Warn("detached launch rejected", "endpoint", ep.String(), "code", res.ExitCode, "stderr", status.Stderr)
	}
	return status, nil
}

// FetchAndClear returns the content of logTarget on ep and removes the file.
// Any failure, including a non-zero exit of the fetch itself, is a
// KindRemoteExecution error: it means the control path is unusable.
func (e *Executor) FetchAndClear(ctx context.Context, ep HostEndpoint, logTarget string, timeout time.Duration) (string, error) {
	line := invocation.FetchAndClear(logTarget, timeout)
	res, err := e.exec(ctx, ep, line, timeout)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		err := errors.Errorf(errors.KindRemoteExecution, "fetching %s from %s failed with exit code %d: %s",
			logTarget, ep, res.ExitCode, strings.TrimSpace(string(res.Stderr)))
		return "", errors.Attr(errors.Attr(err, "endpoint", ep.Address), "exit_code", res.ExitCode)
	}
	return string(res.Stdout), nil
}
