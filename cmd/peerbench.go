// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package cmd implements the peerbench subcommands.
package cmd

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/peerbench/internal/clock"
	"grimm.is/peerbench/internal/config"
	"grimm.is/peerbench/internal/envprep"
	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/logging"
	"grimm.is/peerbench/internal/remote"
)

// Env holds the process-level collaborators of a subcommand. Tests replace
// them; DefaultEnv wires the real ones.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer

	// Local runs commands on this host.
	Local remote.Channel
	// Dial opens the channel to the peer.
	Dial func(cfg *config.SSHConfig, logger *logging.Logger) (remote.Channel, io.Closer, error)
	// Links looks up local interfaces during preparation.
	Links envprep.LinkInspector
	Clock clock.Clock
}

// DefaultEnv returns the production environment.
func DefaultEnv() *Env {
	return &Env{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Local:  remote.NewLocalChannel(),
		Dial: func(cfg *config.SSHConfig, logger *logging.Logger) (remote.Channel, io.Closer, error) {
			ch, err := remote.NewSSHChannel(cfg, logger)
			if err != nil {
				return nil, nil, err
			}
			return ch, ch, nil
		},
		Links: envprep.NetlinkInspector{},
		Clock: clock.RealClock{},
	}
}

// loadConfig reads path. A missing file at the default location is not an
// error: flags alone may be enough.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if !explicit {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.LoadFile(path)
}

// configFlag registers -c and returns a func reporting whether it was set.
func configFlag(fs *flag.FlagSet, path *string) func() bool {
	fs.StringVar(path, "c", config.DefaultConfigPath, "Path to configuration file")
	return func() bool {
		set := false
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "c" {
				set = true
			}
		})
		return set
	}
}

// setupLogging builds the process logger from the log block and installs it
// as the default. The returned func closes the log file, if any.
func setupLogging(cfg *config.LogConfig, stderr io.Writer) (*logging.Logger, func(), error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.KindConfiguration, "invalid log level")
	}

	out := stderr
	closer := func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, errors.Wrapf(err, errors.KindConfiguration, "cannot open log file %s", cfg.File)
		}
		out = io.MultiWriter(stderr, f)
		closer = func() { f.Close() }
	}

	logger := logging.New(logging.Config{
		Output: out,
		Level:  level,
		JSON:   cfg.Format == "json",
		Logfmt: cfg.Format == "logfmt",
	})
	logging.SetDefault(logger)
	return logger, closer, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// checkValidation logs warnings and returns blocking problems as an error.
func checkValidation(errs config.ValidationErrors, logger *logging.Logger) error {
	for _, w := range errs.Warnings() {
		logger.Warn("Configuration warning", "field", w.Field, "message", w.Message)
	}
	return errs.Err()
}
