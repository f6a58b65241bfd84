// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package fuzz

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"grimm.is/peerbench/internal/config"
	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/invocation"
	"grimm.is/peerbench/internal/logging"
	"grimm.is/peerbench/internal/remote"
)

// IdentityProvisioner creates and removes the restricted identity a fuzz
// run executes under.
//
// Provision returns a non-nil Session as soon as the identity exists, even if
// a later step fails, so that the caller can still tear it down.
type IdentityProvisioner interface {
	Provision(ctx context.Context) (*Session, error)
	Deprovision(ctx context.Context, s *Session) error
}

// stepTimeout bounds each account management command.
const stepTimeout = time.Minute

// UserProvisioner manages a local OS user and group through an Executor.
type UserProvisioner struct {
	exec   *remote.Executor
	ep     remote.HostEndpoint
	cfg    *config.FuzzConfig
	logger *logging.Logger
}

// NewUserProvisioner creates a UserProvisioner acting on ep.
func NewUserProvisioner(exec *remote.Executor, ep remote.HostEndpoint, cfg *config.FuzzConfig, logger *logging.Logger) *UserProvisioner {
	if logger == nil {
		logger = logging.WithComponent("fuzz")
	}
	return &UserProvisioner{exec: exec, ep: ep, cfg: cfg, logger: logger}
}

// Provision creates the group and user if absent, ensures membership, then
// prepares the workspace and an empty log file owned by the user.
func (p *UserProvisioner) Provision(ctx context.Context) (*Session, error) {
	s := &Session{
		ID:      uuid.NewString(),
		User:    p.cfg.User,
		Group:   p.cfg.Group,
		Workdir: p.cfg.Home,
		LogPath: path.Join(p.cfg.Home, p.cfg.LogFile),
	}

	exists, err := p.probe(ctx, "getent", "group", s.Group)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := p.step(ctx, "groupadd", s.Group); err != nil {
			return nil, err
		}
	}

	exists, err = p.probe(ctx, "getent", "passwd", s.User)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := p.step(ctx, "useradd", "-g", s.Group, "-m", "-d", s.Workdir, s.User); err != nil {
			// useradd can fail after writing the account, e.g. exit 12 when
			// the home directory cannot be created.
			if created, _ := p.probe(ctx, "getent", "passwd", s.User); created {
				if terr := s.transition(StateProvisioned); terr != nil {
					return nil, errors.Join(err, terr)
				}
				return s, err
			}
			return nil, err
		}
	}
	// From here on the identity exists and must be removed by the caller.
	if err := s.transition(StateProvisioned); err != nil {
		return nil, err
	}

	steps := [][]string{
		{"usermod", "-a", "-G", s.Group, s.User},
		{"mkdir", "-p", s.Workdir},
		{"truncate", "-s", "0", s.LogPath},
		{"chown", "-R", s.User + ":" + s.Group, s.Workdir},
	}
	for _, argv := range steps {
		if err := p.step(ctx, argv...); err != nil {
			return s, err
		}
	}

	p.logger.Info("Fuzz identity provisioned", "session", s.ID, "user", s.User, "workdir", s.Workdir)
	return s, nil
}

// Deprovision removes the user and its home directory.
func (p *UserProvisioner) Deprovision(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	err := p.step(ctx, "userdel", "-r", s.User)
	if terr := s.transition(StateTornDown); terr != nil && err == nil {
		err = terr
	}
	if err == nil {
		p.logger.Info("Fuzz identity removed", "session", s.ID, "user", s.User)
	}
	return err
}

// command applies the sudo prefix when configured.
func (p *UserProvisioner) command(argv ...string) invocation.Command {
	if p.cfg.Sudo {
		argv = append([]string{"sudo"}, argv...)
	}
	return invocation.Raw(argv...)
}

// probe runs a lookup and reports whether it found something.
func (p *UserProvisioner) probe(ctx context.Context, argv ...string) (bool, error) {
	status, err := p.exec.RunSync(ctx, p.ep, invocation.Raw(argv...), stepTimeout)
	if err != nil {
		return false, errors.Wrapf(err, errors.KindEnvironment, "%s failed", strings.Join(argv, " "))
	}
	return status.Success(), nil
}

func (p *UserProvisioner) step(ctx context.Context, argv ...string) error {
	status, err := p.exec.RunSync(ctx, p.ep, p.command(argv...), stepTimeout)
	if err != nil {
		return errors.Wrapf(err, errors.KindEnvironment, "%s failed", argv[0])
	}
	if !status.Success() {
		err := errors.Errorf(errors.KindEnvironment, "%s exited with %d: %s", argv[0], status.Code, strings.TrimSpace(status.Stderr))
		return errors.Attr(err, "exit_code", status.Code)
	}
	return nil
}
