// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package fuzz

import (
	"context"
	"sync"
	"time"

	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/logging"
)

// Only one session may be live in a process.
var live sync.Mutex

// teardownTimeout bounds Deprovision when the run context is already done.
const teardownTimeout = 2 * time.Minute

// WithSession provisions a Session, calls fn with it and always deprovisions
// it afterwards, exactly once, whatever fn returns.
func WithSession(ctx context.Context, prov IdentityProvisioner, logger *logging.Logger, fn func(context.Context, *Session) error) (err error) {
	if !live.TryLock() {
		return errors.New(errors.KindConflict, "a fuzz session is already live")
	}
	defer live.Unlock()

	if logger == nil {
		logger = logging.WithComponent("fuzz")
	}

	s, err := prov.Provision(ctx)
	if s != nil {
		defer func() {
			tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
			defer cancel()
			if derr := prov.Deprovision(tctx, s); derr != nil {
				logger.Error("Fuzz teardown failed", "session", s.ID, "error", derr)
				err = errors.Join(err, derr)
			}
		}()
	}
	if err != nil {
		return err
	}
	return fn(ctx, s)
}

// Run provisions a session, runs the fuzzer once and tears the session down.
// The returned Session is nil when no identity was ever created.
func Run(ctx context.Context, prov IdentityProvisioner, runner *Runner, args string, iterations int) (*Session, LogClassification, error) {
	var (
		session *Session
		c       LogClassification
	)
	err := WithSession(ctx, prov, runner.logger, func(ctx context.Context, s *Session) error {
		session = s
		var err error
		c, err = runner.Execute(ctx, s, args, iterations)
		return err
	})
	return session, c, err
}
