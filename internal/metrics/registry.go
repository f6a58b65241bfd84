// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes run results as Prometheus metrics. A run is a
// short-lived process, so metrics are written to a node_exporter textfile
// rather than served.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/fuzz"
	"grimm.is/peerbench/internal/latency"
)

// Registry holds all peerbench metrics on a private registry.
type Registry struct {
	reg *prometheus.Registry

	RunInfo       *prometheus.GaugeVec
	TrialsTotal   *prometheus.CounterVec
	TrialDuration *prometheus.HistogramVec
	VerdictPassed *prometheus.GaugeVec
	Failures      *prometheus.GaugeVec

	FuzzCrash    prometheus.Gauge
	FuzzTrace    prometheus.Gauge
	FuzzDuration prometheus.Gauge
}

// NewRegistry creates and registers all metrics.
func NewRegistry(runID, mode string) *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		RunInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "peerbench_run_info",
			Help: "Always 1; labels identify the run",
		}, []string{"run_id", "mode"}),

		TrialsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peerbench_trials_total",
			Help: "Latency trials run, by outcome",
		}, []string{"tool", "result"}),

		TrialDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "peerbench_trial_duration_seconds",
			Help:    "Wall time of one latency trial including settle delay",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"tool"}),

		VerdictPassed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "peerbench_verdict_passed",
			Help: "1 if every variant of the tool succeeded, 0 otherwise",
		}, []string{"tool"}),

		Failures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "peerbench_verdict_failures",
			Help: "Number of failed variants in the final verdict",
		}, []string{"tool"}),

		FuzzCrash: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "peerbench_fuzz_crash_detected",
			Help: "1 if the kernel log showed an unhandled fault after the fuzz run",
		}),
		FuzzTrace: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "peerbench_fuzz_trace_detected",
			Help: "1 if the kernel log showed a call trace after the fuzz run",
		}),
		FuzzDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "peerbench_fuzz_duration_seconds",
			Help: "Wall time of the fuzz run",
		}),
	}

	r.reg.MustRegister(
		r.RunInfo,
		r.TrialsTotal,
		r.TrialDuration,
		r.VerdictPassed,
		r.Failures,
		r.FuzzCrash,
		r.FuzzTrace,
		r.FuzzDuration,
	)
	r.RunInfo.WithLabelValues(runID, mode).Set(1)
	return r
}

// Gatherer returns the underlying registry for exposition.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// TrialResult names the outcome of a trial for the result label.
func TrialResult(o latency.Outcome) string {
	switch {
	case o.Succeeded:
		return "pass"
	case !o.RemoteLaunchOK && !o.LocalRunOK:
		return "both_failed"
	case !o.RemoteLaunchOK:
		return "launch_failed"
	default:
		return "client_failed"
	}
}

// ObserveTrial implements latency.Observer.
func (r *Registry) ObserveTrial(tool string, o latency.Outcome) {
	r.TrialsTotal.WithLabelValues(tool, TrialResult(o)).Inc()
	r.TrialDuration.WithLabelValues(tool).Observe(o.Duration.Seconds())
}

// ObserveVerdict records the final verdict of a latency run.
func (r *Registry) ObserveVerdict(v *latency.Verdict) {
	passed := 0.0
	if v.Passed() {
		passed = 1
	}
	r.VerdictPassed.WithLabelValues(v.Tool).Set(passed)
	r.Failures.WithLabelValues(v.Tool).Set(float64(len(v.Failures)))
}

// ObserveFuzz records the classification of a fuzz run.
func (r *Registry) ObserveFuzz(c fuzz.LogClassification, d time.Duration) {
	r.FuzzCrash.Set(boolGauge(c.CrashDetected))
	r.FuzzTrace.Set(boolGauge(c.TraceDetected))
	r.FuzzDuration.Set(d.Seconds())
}

// WriteTextfile writes all metrics in the text exposition format to path,
// atomically, for the node_exporter textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return errors.Wrapf(err, errors.KindInternal, "writing metrics to %s", path)
	}
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
