// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grimm.is/peerbench/internal/fuzz"
	"grimm.is/peerbench/internal/latency"
	"grimm.is/peerbench/internal/matrix"
)

func TestTrialResult(t *testing.T) {
	v := matrix.Variant{Option: "-s"}
	assert.Equal(t, "pass", TrialResult(latency.NewOutcome(v, true, true)))
	assert.Equal(t, "client_failed", TrialResult(latency.NewOutcome(v, true, false)))
	assert.Equal(t, "launch_failed", TrialResult(latency.NewOutcome(v, false, true)))
	assert.Equal(t, "both_failed", TrialResult(latency.NewOutcome(v, false, false)))
}

func TestRegistry_ObserveTrial(t *testing.T) {
	r := NewRegistry("run-1", "latency")

	ok := latency.NewOutcome(matrix.Variant{Option: "-s"}, true, true)
	ok.Duration = 3 * time.Second
	bad := latency.NewOutcome(matrix.Variant{Option: "-w"}, true, false)

	r.ObserveTrial("ib_send_lat", ok)
	r.ObserveTrial("ib_send_lat", ok)
	r.ObserveTrial("ib_send_lat", bad)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.TrialsTotal.WithLabelValues("ib_send_lat", "pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.TrialsTotal.WithLabelValues("ib_send_lat", "client_failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.TrialDuration))
}

func TestRegistry_ObserveVerdict(t *testing.T) {
	r := NewRegistry("run-1", "latency")

	r.ObserveVerdict(&latency.Verdict{Tool: "ib_read_lat", Total: 2, Failures: []string{"client cmd fail: ib_read_lat -s"}})
	assert.Equal(t, 0.0, testutil.ToFloat64(r.VerdictPassed.WithLabelValues("ib_read_lat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Failures.WithLabelValues("ib_read_lat")))

	r.ObserveVerdict(&latency.Verdict{Tool: "ib_read_lat", Total: 2})
	assert.Equal(t, 1.0, testutil.ToFloat64(r.VerdictPassed.WithLabelValues("ib_read_lat")))
}

func TestRegistry_ObserveFuzz(t *testing.T) {
	r := NewRegistry("run-2", "fuzz")

	r.ObserveFuzz(fuzz.LogClassification{CrashDetected: true}, 90*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FuzzCrash))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.FuzzTrace))
	assert.Equal(t, 90.0, testutil.ToFloat64(r.FuzzDuration))
}

func TestRegistry_WriteTextfile(t *testing.T) {
	r := NewRegistry("run-3", "latency")
	r.ObserveTrial("ib_send_lat", latency.NewOutcome(matrix.Variant{Option: "-s"}, true, true))

	path := filepath.Join(t.TempDir(), "peerbench.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `peerbench_trials_total{result="pass",tool="ib_send_lat"} 1`)
	assert.Contains(t, string(data), `peerbench_run_info{mode="latency",run_id="run-3"} 1`)

	err = r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"))
	assert.Error(t, err)
}
