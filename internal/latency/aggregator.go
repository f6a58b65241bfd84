// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package latency

import (
	"context"
	"fmt"
	"strings"

	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/logging"
	"grimm.is/peerbench/internal/matrix"
)

// Executor runs a single trial. *Trial implements it.
type Executor interface {
	Execute(ctx context.Context, tool string, v matrix.Variant) (Outcome, error)
}

// Observer is notified after every completed trial.
type Observer interface {
	ObserveTrial(tool string, o Outcome)
}

// Verdict is the terminal result of a run. It passes when Failures is empty.
type Verdict struct {
	Tool     string    `json:"tool" yaml:"tool"`
	Total    int       `json:"total" yaml:"total"`
	Failures []string  `json:"failures" yaml:"failures"`
	Outcomes []Outcome `json:"outcomes" yaml:"outcomes"`
}

// Passed reports whether every trial succeeded.
func (v *Verdict) Passed() bool {
	return len(v.Failures) == 0
}

// Manifest returns the failure descriptions joined by newlines.
func (v *Verdict) Manifest() string {
	return strings.Join(v.Failures, "\n")
}

// Err returns nil for a passing verdict and a KindToolFailure error carrying
// the full failure list otherwise.
func (v *Verdict) Err() error {
	if v.Passed() {
		return nil
	}
	err := errors.New(errors.KindToolFailure, "Some tests failed. Details below:\n"+v.Manifest())
	return errors.Attr(err, "failures", len(v.Failures))
}

// FailureText is the manifest line recorded for a failed variant.
func FailureText(tool, option string) string {
	return fmt.Sprintf("client cmd fail: %s %s", tool, option)
}

// Aggregator runs every variant of a matrix and collects the failures.
type Aggregator struct {
	trial     Executor
	logger    *logging.Logger
	observers []Observer
}

// NewAggregator creates an Aggregator.
func NewAggregator(trial Executor, logger *logging.Logger, observers ...Observer) *Aggregator {
	if logger == nil {
		logger = logging.WithComponent("latency")
	}
	return &Aggregator{trial: trial, logger: logger, observers: observers}
}

// Run executes every mandatory variant and, when runExtended is set, every
// extended variant. A failed trial never stops the run; a trial error does,
// since it means the control path is broken.
func (a *Aggregator) Run(ctx context.Context, tool string, mandatory, extended []matrix.Variant, runExtended bool) (*Verdict, error) {
	verdict := &Verdict{Tool: tool, Failures: []string{}, Outcomes: []Outcome{}}

	if err := a.runGroup(ctx, tool, mandatory, verdict); err != nil {
		return verdict, err
	}

	if !runExtended {
		a.logger.Info("Extended test option skipped", "tool", tool, "skipped", len(extended))
		return verdict, nil
	}
	if err := a.runGroup(ctx, tool, extended, verdict); err != nil {
		return verdict, err
	}
	return verdict, nil
}

// RunMatrix runs m with its own extended setting.
func (a *Aggregator) RunMatrix(ctx context.Context, m *matrix.Matrix) (*Verdict, error) {
	if m.ExtendedEnabled() {
		return a.Run(ctx, m.Tool(), m.Mandatory(), m.Extended(), true)
	}
	return a.Run(ctx, m.Tool(), m.Mandatory(), m.Skipped(), false)
}

func (a *Aggregator) runGroup(ctx context.Context, tool string, variants []matrix.Variant, verdict *Verdict) error {
	for _, v := range variants {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.KindInternal, "run cancelled")
		}

		a.logger.Info("Running trial", "tool", tool, "variant", v.Option, "extended", v.Extended)
		out, err := a.trial.Execute(ctx, tool, v)
		if err != nil {
			return err
		}

		verdict.Total++
		verdict.Outcomes = append(verdict.Outcomes, out)
		if !out.Succeeded {
			verdict.Failures = append(verdict.Failures, FailureText(tool, v.Option))
			a.logger.Warn("Trial failed", "tool", tool, "variant", v.Option,
				"remote_launch_ok", out.RemoteLaunchOK, "local_run_ok", out.LocalRunOK)
		}
		for _, o := range a.observers {
			o.ObserveTrial(tool, out)
		}
	}
	return nil
}
