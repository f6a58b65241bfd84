// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"flag"

	"grimm.is/peerbench/internal/envprep"
	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/fuzz"
	"grimm.is/peerbench/internal/metrics"
	"grimm.is/peerbench/internal/remote"
	"grimm.is/peerbench/internal/report"
)

// RunFuzz implements 'peerbench fuzz'.
func RunFuzz(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	return DefaultEnv().Fuzz(ctx, args)
}

// Fuzz runs the fuzzer once under a throwaway identity. Kernel log findings
// are reported but never fail the command.
func (e *Env) Fuzz(ctx context.Context, args []string) (err error) {
	fs := flag.NewFlagSet("fuzz", flag.ContinueOnError)
	fs.SetOutput(e.Stderr)
	var configPath string
	explicit := configFlag(fs, &configPath)
	binary := fs.String("binary", "", "Path to the fuzz binary")
	fuzzArgs := fs.String("args", "", "Extra arguments for the fuzz binary")
	iterations := fs.Int("iterations", 0, "Iteration bound passed as -N")
	skipPrepare := fs.Bool("skip-prepare", false, "Skip environment preparation")
	reportPath := fs.String("report", "", "Write a YAML run report to this file")
	metricsPath := fs.String("metrics", "", "Write Prometheus textfile metrics to this file")
	color := fs.String("color", "", "Color output: auto, always, never")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, errors.KindConfiguration, "invalid arguments")
	}

	cfg, err := loadConfig(configPath, explicit())
	if err != nil {
		return err
	}
	f := cfg.Fuzz
	if *binary != "" {
		f.Binary = *binary
	}
	if *fuzzArgs != "" {
		f.Args = *fuzzArgs
	}
	if *iterations != 0 {
		f.Iterations = *iterations
	}
	if *reportPath != "" {
		cfg.Report.File = *reportPath
	}
	if *metricsPath != "" {
		cfg.Report.MetricsFile = *metricsPath
	}
	if *color != "" {
		cfg.Report.Color = *color
	}

	logger, closeLog, err := setupLogging(cfg.Log, e.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	log := logger.WithComponent("cmd")

	if err := checkValidation(cfg.ValidateFuzz(), log); err != nil {
		return err
	}

	started := e.Clock.Now()
	rep := report.New("fuzz", started)
	reg := metrics.NewRegistry(rep.RunID, "fuzz")
	defer func() {
		rep.Finish(e.Clock.Now(), err)
		e.writeOutputs(cfg.Report, rep, reg, log)
	}()
	log.Info("Starting fuzz run", "run_id", rep.RunID, "binary", f.Binary, "iterations", f.Iterations)

	exec := remote.NewExecutor(e.Local, nil, logger.WithComponent("remote"))
	ep := remote.Local("", "")

	if !*skipPrepare {
		prep := envprep.New(exec, ep, cfg.Prepare, logger.WithComponent("envprep"), envprep.WithLinkInspector(e.Links))
		if err := prep.PrepareFuzz(ctx, f.Binary); err != nil {
			return err
		}
	}

	fuzzLog := logger.WithComponent("fuzz")
	prov := fuzz.NewUserProvisioner(exec, ep, f, fuzzLog)
	runner := fuzz.NewRunner(exec, ep, f, fuzzLog)

	session, class, err := fuzz.Run(ctx, prov, runner, f.Args, f.Iterations)
	if err != nil {
		return err
	}
	elapsed := e.Clock.Now().Sub(started)
	rep.SetFuzz(session.ID, session.User, f.Iterations, class, elapsed)
	reg.ObserveFuzz(class, elapsed)

	report.NewPrinter(e.Stdout, cfg.Report.Color).Classification(class)
	return nil
}
