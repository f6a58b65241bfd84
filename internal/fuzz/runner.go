// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package fuzz

import (
	"context"
	"strconv"
	"strings"

	"github.com/anmitsu/go-shlex"
	"grimm.is/peerbench/internal/config"
	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/invocation"
	"grimm.is/peerbench/internal/logging"
	"grimm.is/peerbench/internal/remote"
)

// Runner executes the fuzz binary for a provisioned Session.
type Runner struct {
	exec   *remote.Executor
	ep     remote.HostEndpoint
	cfg    *config.FuzzConfig
	logger *logging.Logger
}

// NewRunner creates a Runner acting on ep.
func NewRunner(exec *remote.Executor, ep remote.HostEndpoint, cfg *config.FuzzConfig, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.WithComponent("fuzz")
	}
	return &Runner{exec: exec, ep: ep, cfg: cfg, logger: logger}
}

// Command returns the shell line that runs the fuzzer as the session user.
func (r *Runner) Command(s *Session, args string, iterations int) (invocation.Command, error) {
	if strings.TrimSpace(r.cfg.Binary) == "" {
		return invocation.Command{}, errors.New(errors.KindConfiguration, "fuzz binary is not configured")
	}
	extra, err := shlex.Split(args, true)
	if err != nil {
		return invocation.Command{}, errors.Wrapf(err, errors.KindConfiguration, "cannot parse fuzz args %q", args)
	}

	inner := invocation.Raw(append(append([]string{r.cfg.Binary}, extra...), "-N", strconv.Itoa(iterations))...)
	argv := []string{"su", "-", s.User, "-c", inner.String()}
	if r.cfg.Sudo {
		argv = append([]string{"sudo"}, argv...)
	}
	return invocation.Raw(argv...), nil
}

// Execute runs the fuzzer to completion with no time bound, then classifies
// the kernel log. A non-zero fuzzer exit is logged and does not fail the
// run; a channel error or an unreadable kernel log does.
func (r *Runner) Execute(ctx context.Context, s *Session, args string, iterations int) (LogClassification, error) {
	cmd, err := r.Command(s, args, iterations)
	if err != nil {
		return LogClassification{}, err
	}
	if err := s.transition(StateRunning); err != nil {
		return LogClassification{}, err
	}

	r.logger.Info("Starting fuzz run", "session", s.ID, "user", s.User, "iterations", iterations)
	status, err := r.exec.RunSync(ctx, r.ep, cmd, 0)
	if err != nil {
		return LogClassification{}, errors.Attr(err, "session", s.ID)
	}
	if !status.Success() {
		r.logger.Warn("Fuzzer exited non-zero", "session", s.ID, "code", status.Code, "duration", status.Duration)
	} else {
		r.logger.Info("Fuzzer finished", "session", s.ID, "duration", status.Duration)
	}

	kernelLog, err := r.kernelLog(ctx)
	if err != nil {
		return LogClassification{}, errors.Attr(err, "session", s.ID)
	}

	c := Classify(kernelLog)
	c.Log(r.logger)
	if err := s.transition(StateCompleted); err != nil {
		return c, err
	}
	return c, nil
}

func (r *Runner) kernelLog(ctx context.Context) (string, error) {
	argv, err := shlex.Split(r.cfg.KernelLogCommand, true)
	if err != nil || len(argv) == 0 {
		return "", errors.Errorf(errors.KindConfiguration, "invalid kernel log command %q", r.cfg.KernelLogCommand)
	}
	if r.cfg.Sudo {
		argv = append([]string{"sudo"}, argv...)
	}
	status, err := r.exec.RunSync(ctx, r.ep, invocation.Raw(argv...), stepTimeout)
	if err != nil {
		return "", err
	}
	if !status.Success() {
		return "", errors.Attr(errors.Errorf(errors.KindEnvironment, "%s exited with %d: %s",
			argv[0], status.Code, strings.TrimSpace(status.Stderr)), "exit_code", status.Code)
	}
	return status.Stdout, nil
}
