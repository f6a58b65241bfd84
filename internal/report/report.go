// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package report

import (
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/fuzz"
	"grimm.is/peerbench/internal/latency"
)

// Report is the machine-readable record of one run.
type Report struct {
	RunID      string         `yaml:"run_id"`
	Mode       string         `yaml:"mode"`
	StartedAt  time.Time      `yaml:"started_at"`
	FinishedAt time.Time      `yaml:"finished_at,omitempty"`
	Peer       string         `yaml:"peer,omitempty"`
	Latency    *LatencyReport `yaml:"latency,omitempty"`
	Fuzz       *FuzzReport    `yaml:"fuzz,omitempty"`
	Error      string         `yaml:"error,omitempty"`
}

// LatencyReport summarises a verdict.
type LatencyReport struct {
	Tool     string        `yaml:"tool"`
	Total    int           `yaml:"total"`
	Passed   bool          `yaml:"passed"`
	Failures []string      `yaml:"failures"`
	Trials   []TrialReport `yaml:"trials"`
}

// TrialReport is one outcome.
type TrialReport struct {
	Option         string `yaml:"option"`
	Extended       bool   `yaml:"extended,omitempty"`
	RemoteLaunchOK bool   `yaml:"remote_launch_ok"`
	LocalRunOK     bool   `yaml:"local_run_ok"`
	Succeeded      bool   `yaml:"succeeded"`
	ClientCode     int    `yaml:"client_code"`
	Duration       string `yaml:"duration"`
}

// FuzzReport summarises a fuzz run.
type FuzzReport struct {
	Session       string `yaml:"session"`
	User          string `yaml:"user"`
	Iterations    int    `yaml:"iterations"`
	CrashDetected bool   `yaml:"crash_detected"`
	TraceDetected bool   `yaml:"trace_detected"`
	Duration      string `yaml:"duration"`
}

// New starts a report with a fresh run ID.
func New(mode string, started time.Time) *Report {
	return &Report{RunID: uuid.NewString(), Mode: mode, StartedAt: started.UTC()}
}

// SetVerdict records a latency verdict.
func (r *Report) SetVerdict(v *latency.Verdict) {
	lr := &LatencyReport{
		Tool:     v.Tool,
		Total:    v.Total,
		Passed:   v.Passed(),
		Failures: append([]string{}, v.Failures...),
	}
	for _, o := range v.Outcomes {
		lr.Trials = append(lr.Trials, TrialReport{
			Option:         o.Variant.Option,
			Extended:       o.Variant.Extended,
			RemoteLaunchOK: o.RemoteLaunchOK,
			LocalRunOK:     o.LocalRunOK,
			Succeeded:      o.Succeeded,
			ClientCode:     o.ClientCode,
			Duration:       o.Duration.String(),
		})
	}
	r.Latency = lr
}

// SetFuzz records a fuzz classification.
func (r *Report) SetFuzz(session, user string, iterations int, c fuzz.LogClassification, d time.Duration) {
	r.Fuzz = &FuzzReport{
		Session:       session,
		User:          user,
		Iterations:    iterations,
		CrashDetected: c.CrashDetected,
		TraceDetected: c.TraceDetected,
		Duration:      d.String(),
	}
}

// Finish stamps the end time and the fatal error, if any.
func (r *Report) Finish(at time.Time, err error) {
	r.FinishedAt = at.UTC()
	if err != nil {
		r.Error = err.Error()
	}
}

// Marshal encodes the report as YAML.
func (r *Report) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "encoding report")
	}
	return data, nil
}

// WriteFile writes the YAML report to path.
func (r *Report) WriteFile(path string) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, errors.KindInternal, "writing report to %s", path)
	}
	return nil
}

// Load reads a report written by WriteFile.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "reading report %s", path)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "decoding report %s", path)
	}
	return &r, nil
}
