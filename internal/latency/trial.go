// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package latency runs paired client/server latency tools across a variant
// matrix and reduces the results to a verdict.
package latency

import (
	"context"
	"time"

	"grimm.is/peerbench/internal/clock"
	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/invocation"
	"grimm.is/peerbench/internal/logging"
	"grimm.is/peerbench/internal/matrix"
	"grimm.is/peerbench/internal/remote"
)

// Outcome is the result of one trial. Build it with NewOutcome so that
// Succeeded always agrees with the two flags.
type Outcome struct {
	Variant        matrix.Variant `json:"variant" yaml:"variant"`
	RemoteLaunchOK bool           `json:"remote_launch_ok" yaml:"remote_launch_ok"`
	LocalRunOK     bool           `json:"local_run_ok" yaml:"local_run_ok"`
	Succeeded      bool           `json:"succeeded" yaml:"succeeded"`
	ClientCode     int            `json:"client_code" yaml:"client_code"`
	Duration       time.Duration  `json:"duration" yaml:"duration"`
}

// NewOutcome builds an Outcome.
func NewOutcome(v matrix.Variant, launchOK, runOK bool) Outcome {
	return Outcome{
		Variant:        v,
		RemoteLaunchOK: launchOK,
		LocalRunOK:     runOK,
		Succeeded:      launchOK && runOK,
	}
}

// TrialConfig holds the fixed parameters shared by every trial of a run.
type TrialConfig struct {
	Local  remote.HostEndpoint
	Peer   remote.HostEndpoint
	Target string // address the client dials; defaults to Peer.Address

	Timeout     time.Duration
	SettleDelay time.Duration
	RemoteLog   string

	Clock  clock.Clock
	Logger *logging.Logger
}

// Trial runs one server/client pair per call.
type Trial struct {
	exec *remote.Executor
	cfg  TrialConfig
}

// NewTrial creates a Trial.
func NewTrial(exec *remote.Executor, cfg TrialConfig) *Trial {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.WithComponent("latency")
	}
	if cfg.Target == "" {
		cfg.Target = cfg.Peer.Address
	}
	return &Trial{exec: exec, cfg: cfg}
}

// Execute runs variant v of tool: launch the server on the peer, wait the
// settle delay, run the client locally, then fetch and clear the peer log.
//
// The peer log is fetched on every path that reached the launch, including a
// failed client run. A fetch failure is returned as an error and ends the run.
// A client run that hits its timeout counts as a failed run; any other channel
// error on either side is returned.
func (t *Trial) Execute(ctx context.Context, tool string, v matrix.Variant) (Outcome, error) {
	log := t.cfg.Logger.With("tool", tool, "variant", v.Option)
	started := t.cfg.Clock.Now()

	server, err := invocation.ToolInvocation{
		ToolID:     tool,
		Adapter:    t.cfg.Peer.Adapter,
		Port:       t.cfg.Peer.AdapterPort,
		PrimaryArg: v.Option,
	}.Render(t.cfg.Timeout)
	if err != nil {
		return Outcome{}, err
	}
	client, err := invocation.ToolInvocation{
		ToolID:     tool,
		Adapter:    t.cfg.Local.Adapter,
		Port:       t.cfg.Local.AdapterPort,
		Target:     t.cfg.Target,
		PrimaryArg: v.Option,
	}.Render(t.cfg.Timeout)
	if err != nil {
		return Outcome{}, err
	}

	launch, err := t.exec.RunAsyncDetached(ctx, t.cfg.Peer, server, t.cfg.Timeout, t.cfg.RemoteLog)
	if err != nil {
		return Outcome{}, errors.Attr(err, "variant", v.Option)
	}
	log.Debug("server launched", "accepted", launch.Accepted)

	if err := t.cfg.Clock.Sleep(ctx, t.cfg.SettleDelay); err != nil {
		return Outcome{}, t.cleanupAfter(ctx, v, errors.Wrap(err, errors.KindInternal, "settle wait interrupted"))
	}

	runOK := false
	status, runErr := t.exec.RunSync(ctx, t.cfg.Local, client, t.cfg.Timeout)
	switch {
	case runErr == nil:
		runOK = status.Success()
		if !runOK {
			log.Warn("client failed", "code", status.Code, "stderr", status.Stderr)
		}
	case errors.Is(runErr, remote.ErrTimeout):
		log.Warn("client timed out", "timeout", t.cfg.Timeout)
	default:
		return Outcome{}, t.cleanupAfter(ctx, v, runErr)
	}

	serverLog, err := t.exec.FetchAndClear(ctx, t.cfg.Peer, t.cfg.RemoteLog, t.cfg.Timeout)
	if err != nil {
		return Outcome{}, errors.Attr(err, "variant", v.Option)
	}
	if serverLog != "" {
		log.Debug("server output", "log", serverLog)
	}

	out := NewOutcome(v, launch.Accepted, runOK)
	out.ClientCode = status.Code
	out.Duration = t.cfg.Clock.Now().Sub(started)
	return out, nil
}

// cleanupTimeout bounds the log cleanup that runs after the run was cancelled.
const cleanupTimeout = 30 * time.Second

// cleanupAfter still clears the peer log before reporting cause.
func (t *Trial) cleanupAfter(ctx context.Context, v matrix.Variant, cause error) error {
	cleanCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		cleanCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
	}
	if _, err := t.exec.FetchAndClear(cleanCtx, t.cfg.Peer, t.cfg.RemoteLog, t.cfg.Timeout); err != nil {
		t.cfg.Logger.Warn("peer log cleanup failed", "variant", v.Option, "error", err)
	}
	return errors.Attr(cause, "variant", v.Option)
}
