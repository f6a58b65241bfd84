// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"flag"
	"net"
	"time"

	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/ssh"
)

// RunServe implements 'peerbench serve'.
func RunServe(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	return DefaultEnv().Serve(ctx, args, nil)
}

// Serve runs the peer exec server until ctx is done. When ready is not nil
// it receives the bound address once the listener is up.
func (e *Env) Serve(ctx context.Context, args []string, ready chan<- string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(e.Stderr)
	var configPath string
	explicit := configFlag(fs, &configPath)
	listen := fs.String("listen", "", "Address to listen on")
	hostKey := fs.String("host-key", "", "Host key path (generated if missing)")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, errors.KindConfiguration, "invalid arguments")
	}

	cfg, err := loadConfig(configPath, explicit())
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Serve.Listen = *listen
	}
	if *hostKey != "" {
		cfg.Serve.HostKeyPath = *hostKey
	}

	logger, closeLog, err := setupLogging(cfg.Log, e.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := checkValidation(cfg.ValidateServe(), logger.WithComponent("cmd")); err != nil {
		return err
	}

	srv, err := ssh.NewServer(cfg.Serve, logger.WithComponent("ssh"))
	if err != nil {
		return errors.Wrap(err, errors.KindConfiguration, "failed to create exec server")
	}
	l, err := net.Listen("tcp", cfg.Serve.Listen)
	if err != nil {
		return errors.Wrapf(err, errors.KindEnvironment, "cannot listen on %s", cfg.Serve.Listen)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()
	if ready != nil {
		ready <- l.Addr().String()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	stats := srv.Stats()
	logger.Info("Exec server stopped", "connections", stats.TotalConnections, "commands", stats.CommandsRun, "auth_failures", stats.AuthFailures)
	return nil
}
