// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"flag"

	"grimm.is/peerbench/internal/config"
	"grimm.is/peerbench/internal/envprep"
	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/latency"
	"grimm.is/peerbench/internal/logging"
	"grimm.is/peerbench/internal/matrix"
	"grimm.is/peerbench/internal/metrics"
	"grimm.is/peerbench/internal/remote"
	"grimm.is/peerbench/internal/report"
)

// RunLatency implements 'peerbench latency'.
func RunLatency(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	return DefaultEnv().Latency(ctx, args)
}

// Latency runs the latency benchmark across the configured variant matrix.
// A failing verdict is returned as a KindToolFailure error carrying the full
// failure manifest.
func (e *Env) Latency(ctx context.Context, args []string) (err error) {
	fs := flag.NewFlagSet("latency", flag.ContinueOnError)
	fs.SetOutput(e.Stderr)
	var configPath string
	explicit := configFlag(fs, &configPath)
	tool := fs.String("tool", "", "Latency tool to run (ib_send_lat, ib_write_lat, ib_read_lat, ib_atomic_lat)")
	peer := fs.String("peer", "", "Peer node address")
	iface := fs.String("interface", "", "Local interface that must be up")
	opts := fs.String("opts", "", "Comma-separated mandatory test options")
	extOpts := fs.String("ext-opts", "", "Comma-separated extended test options")
	ext := fs.Bool("ext", false, "Run extended test options")
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
	l := cfg.Latency
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["tool"] {
		l.Tool = *tool
	}
	if set["peer"] {
		l.PeerIP = *peer
	}
	if set["interface"] {
		l.Interface = *iface
	}
	if set["opts"] {
		l.TestOpts = config.SplitOptions(*opts)
	}
	if set["ext-opts"] {
		l.ExtOpts = config.SplitOptions(*extOpts)
	}
	if set["ext"] {
		l.ExtEnabled = *ext
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

	if err := checkValidation(cfg.ValidateLatency(), log); err != nil {
		return err
	}
	m, err := matrix.New(l.Tool, l.TestOpts, l.ExtOpts, l.ExtEnabled)
	if err != nil {
		return err
	}

	rep := report.New("latency", e.Clock.Now())
	rep.Peer = l.PeerIP
	reg := metrics.NewRegistry(rep.RunID, "latency")
	defer func() {
		rep.Finish(e.Clock.Now(), fatalOnly(err))
		e.writeOutputs(cfg.Report, rep, reg, log)
	}()
	log.Info("Starting latency run", "run_id", rep.RunID, "tool", m.Tool(), "peer", l.PeerIP, "variants", m.Len())

	peerCh, closer, err := e.Dial(cfg.SSH, logger.WithComponent("remote"))
	if err != nil {
		return err
	}
	defer closer.Close()

	exec := remote.NewExecutor(e.Local, peerCh, logger.WithComponent("remote"))
	local := remote.Local(l.CAName, l.Port)
	peerEP := remote.Remote(l.PeerIP, l.PeerCA, l.PeerPort)

	if !*skipPrepare {
		prep := envprep.New(exec, local, cfg.Prepare, logger.WithComponent("envprep"),
			envprep.WithPeer(peerEP), envprep.WithLinkInspector(e.Links), envprep.WithSudo(cfg.Prepare.Sudo))
		if err := prep.PrepareLatency(ctx, m.Tool(), l.Interface); err != nil {
			return err
		}
	}

	trial := latency.NewTrial(exec, latency.TrialConfig{
		Local:       local,
		Peer:        peerEP,
		Timeout:     l.Timeout(),
		SettleDelay: l.Settle(),
		RemoteLog:   l.RemoteLog,
		Clock:       e.Clock,
		Logger:      logger.WithComponent("latency"),
	})
	agg := latency.NewAggregator(trial, logger.WithComponent("latency"), reg)

	verdict, err := agg.RunMatrix(ctx, m)
	if verdict != nil {
		rep.SetVerdict(verdict)
		reg.ObserveVerdict(verdict)
	}
	if err != nil {
		return err
	}

	printer := report.NewPrinter(e.Stdout, cfg.Report.Color)
	printer.Skipped(m.Tool(), m.Skipped())
	printer.Verdict(verdict)
	return verdict.Err()
}

// fatalOnly drops the verdict failure so the report only records errors
// that aborted the run.
func fatalOnly(err error) error {
	if errors.IsKind(err, errors.KindToolFailure) {
		return nil
	}
	return err
}

func (e *Env) writeOutputs(cfg *config.ReportConfig, rep *report.Report, reg *metrics.Registry, log *logging.Logger) {
	if cfg.File != "" {
		if err := rep.WriteFile(cfg.File); err != nil {
			log.Warn("Failed to write report", "path", cfg.File, "error", err)
		} else {
			log.Info("Report written", "path", cfg.File)
		}
	}
	if cfg.MetricsFile != "" {
		if err := reg.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn("Failed to write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}
}
