// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grimm.is/peerbench/internal/clock"
	"grimm.is/peerbench/internal/config"
	"grimm.is/peerbench/internal/envprep"
	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/logging"
	"grimm.is/peerbench/internal/remote"
	"grimm.is/peerbench/internal/remote/remotetest"
	"grimm.is/peerbench/internal/report"
)

const latencyConfig = `
log {
  level = "error"
}
ssh {
  password                 = "lab"
  insecure_ignore_host_key = true
}
latency {
  tool        = "ib_send_lat"
  peer_ip     = "10.0.0.2"
  test_opts   = ["-s", "-w"]
  ext_opts    = ["-a"]
  ext_enabled = false
}
`

type fakeLinks struct{}

func (fakeLinks) Inspect(name string) (envprep.LinkInfo, error) {
	return envprep.LinkInfo{Name: name, Up: true}, nil
}

type testEnv struct {
	*Env
	stdout, stderr bytes.Buffer
	local, peer    *remotetest.Channel
	dials          int
	closed         int
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newTestEnv() *testEnv {
	te := &testEnv{local: remotetest.New(), peer: remotetest.New()}
	te.Env = &Env{
		Stdout: &te.stdout,
		Stderr: &te.stderr,
		Local:  te.local,
		Dial: func(*config.SSHConfig, *logging.Logger) (remote.Channel, io.Closer, error) {
			te.dials++
			return te.peer, closerFunc(func() error { te.closed++; return nil }), nil
		},
		Links: fakeLinks{},
		Clock: clock.NewMockClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)),
	}
	return te
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peerbench.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLatency_Pass(t *testing.T) {
	te := newTestEnv()
	path := writeConfig(t, latencyConfig)

	err := te.Latency(context.Background(), []string{"-c", path, "-skip-prepare", "-color", "never"})
	require.NoError(t, err)

	assert.Contains(t, te.stdout.String(), "PASS ib_send_lat -s")
	assert.Contains(t, te.stdout.String(), "All 2 variants passed")
	assert.Contains(t, te.stdout.String(), "Extended test option skipped")
	assert.Equal(t, 1, te.dials)
	assert.Equal(t, 1, te.closed)
	assert.Len(t, te.local.Calls(), 2)
	assert.False(t, te.peer.FileExists(remote.Remote("10.0.0.2", "mlx4_0", "1"), "/tmp/ib_log"))
}

func TestLatency_FailingVerdictWithOutputs(t *testing.T) {
	te := newTestEnv()
	te.local.On("-w", remote.Result{ExitCode: 1}, nil)
	path := writeConfig(t, latencyConfig)
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "report.yaml")
	metricsPath := filepath.Join(dir, "peerbench.prom")

	err := te.Latency(context.Background(), []string{
		"-c", path, "-skip-prepare", "-ext",
		"-report", reportPath, "-metrics", metricsPath, "-color", "never",
	})
	require.Error(t, err)
	assert.Equal(t, errors.KindToolFailure, errors.GetKind(err))
	assert.Equal(t, "Some tests failed. Details below:\nclient cmd fail: ib_send_lat -w", err.Error())
	assert.Contains(t, te.stdout.String(), "FAIL ib_send_lat -w")
	assert.Contains(t, te.stdout.String(), "PASS ib_send_lat -a [extended]")

	rep, err := report.Load(reportPath)
	require.NoError(t, err)
	assert.Empty(t, rep.Error)
	require.NotNil(t, rep.Latency)
	assert.Equal(t, 3, rep.Latency.Total)
	assert.Equal(t, []string{"client cmd fail: ib_send_lat -w"}, rep.Latency.Failures)

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `peerbench_verdict_failures{tool="ib_send_lat"} 1`)
	assert.Contains(t, string(prom), `peerbench_trials_total{result="client_failed",tool="ib_send_lat"} 1`)
}

func TestLatency_FlagsOverrideConfig(t *testing.T) {
	te := newTestEnv()
	path := writeConfig(t, latencyConfig)

	err := te.Latency(context.Background(), []string{
		"-c", path, "-skip-prepare", "-tool", "ib_read_lat", "-peer", "10.0.0.9",
		"-opts", "-s 64, -a", "-color", "never",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"timeout 600 ib_read_lat -d mlx4_0 -i 1 10.0.0.9 -s 64",
		"timeout 600 ib_read_lat -d mlx4_0 -i 1 10.0.0.9 -a",
	}, te.local.Commands())
}

func TestLatency_ConfigurationErrorBeforeAnyTrial(t *testing.T) {
	te := newTestEnv()
	path := writeConfig(t, strings.Replace(latencyConfig, `tool        = "ib_send_lat"`, "", 1))

	err := te.Latency(context.Background(), []string{"-c", path})
	require.Error(t, err)
	assert.Equal(t, errors.KindConfiguration, errors.GetKind(err))
	assert.Contains(t, err.Error(), "latency.tool")
	assert.Zero(t, te.dials)
	assert.Empty(t, te.local.Calls())
}

func TestLatency_PreparationFailureIsFatal(t *testing.T) {
	te := newTestEnv()
	te.peer.On("command -v", remote.Result{ExitCode: 1}, nil)
	path := writeConfig(t, latencyConfig)

	err := te.Latency(context.Background(), []string{"-c", path})
	require.Error(t, err)
	assert.Equal(t, errors.KindEnvironment, errors.GetKind(err))
	for _, c := range te.local.Commands() {
		assert.NotContains(t, c, "10.0.0.2 -s", "no trial may run after a failed preparation")
	}
}

func TestLatency_PrepareSudo(t *testing.T) {
	te := newTestEnv()
	te.local.On("os-release", remote.Result{Stdout: []byte("ID=opensuse-leap\n")}, nil)
	te.peer.On("os-release", remote.Result{Stdout: []byte("ID=ubuntu\n")}, nil)
	path := writeConfig(t, latencyConfig+`
prepare {
  sudo = true
}
`)

	require.NoError(t, te.Latency(context.Background(), []string{"-c", path, "-color", "never"}))
	assert.Contains(t, te.local.Commands(), "timeout 120 sudo rcSuSEfirewall2 stop")
	assert.Contains(t, te.peer.Commands(), "timeout 120 sudo service ufw stop")
}

func TestLatency_FetchFailureAborts(t *testing.T) {
	te := newTestEnv()
	te.peer.On("cat /tmp/ib_log", remote.Result{ExitCode: 1}, nil)
	path := writeConfig(t, latencyConfig)
	reportPath := filepath.Join(t.TempDir(), "report.yaml")

	err := te.Latency(context.Background(), []string{"-c", path, "-skip-prepare", "-report", reportPath})
	require.Error(t, err)
	assert.Equal(t, errors.KindRemoteExecution, errors.GetKind(err))
	assert.Len(t, te.local.Calls(), 1)

	rep, err := report.Load(reportPath)
	require.NoError(t, err)
	assert.NotEmpty(t, rep.Error)
}

const fuzzConfig = `
log {
  level = "error"
}
fuzz {
  binary     = "/home/trinity/trinity-master/trinity"
  args       = "-c mmap"
  iterations = 500
}
`

func TestFuzz_AdvisoryClassification(t *testing.T) {
	te := newTestEnv()
	te.local.On("dmesg", remote.Result{Stdout: []byte("[  42.1] Call Trace:\n")}, nil)
	path := writeConfig(t, fuzzConfig)
	reportPath := filepath.Join(t.TempDir(), "report.yaml")

	err := te.Fuzz(context.Background(), []string{"-c", path, "-report", reportPath, "-color", "never"})
	require.NoError(t, err)

	assert.Equal(t, "crash detected: no\ncall trace detected: yes (advisory)\n", te.stdout.String())

	var fuzzCmd string
	userdels := 0
	for _, c := range te.local.Commands() {
		if strings.Contains(c, "-N 500") {
			fuzzCmd = c
		}
		if strings.Contains(c, "userdel -r trinity") {
			userdels++
		}
	}
	assert.Equal(t, "su - trinity -c '/home/trinity/trinity-master/trinity -c mmap -N 500'", fuzzCmd)
	assert.Equal(t, 1, userdels)
	assert.Zero(t, te.dials)

	rep, err := report.Load(reportPath)
	require.NoError(t, err)
	require.NotNil(t, rep.Fuzz)
	assert.True(t, rep.Fuzz.TraceDetected)
	assert.Equal(t, 500, rep.Fuzz.Iterations)
}

func TestFuzz_TeardownOnFailure(t *testing.T) {
	te := newTestEnv()
	te.local.On("-N 500", remote.Result{}, errors.New(errors.KindRemoteExecution, "killed"))
	path := writeConfig(t, fuzzConfig)

	err := te.Fuzz(context.Background(), []string{"-c", path, "-skip-prepare"})
	require.Error(t, err)

	userdels := 0
	for _, c := range te.local.Commands() {
		if strings.Contains(c, "userdel") {
			userdels++
		}
	}
	assert.Equal(t, 1, userdels)
}

func TestValidate_PrintDefaults(t *testing.T) {
	te := newTestEnv()

	require.NoError(t, te.Validate([]string{"-print-defaults"}))
	out := te.stdout.Bytes()
	assert.Contains(t, string(out), "latency {")

	cfg, err := config.LoadBytes("defaults.hcl", out)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultRemoteLog, cfg.Latency.RemoteLog)
	assert.Equal(t, config.DefaultIterations, cfg.Fuzz.Iterations)
}

func TestValidate_Modes(t *testing.T) {
	path := writeConfig(t, latencyConfig)

	te := newTestEnv()
	require.NoError(t, te.Validate([]string{"-c", path}))
	assert.Contains(t, te.stdout.String(), "valid for latency")

	te = newTestEnv()
	err := te.Validate([]string{"-c", path, "-mode", "fuzz"})
	require.Error(t, err)
	assert.Contains(t, te.stdout.String(), "error   fuzz.binary: fuzz binary path is required")

	te = newTestEnv()
	err = te.Validate([]string{"-c", path, "-mode", "nope"})
	assert.Equal(t, errors.KindConfiguration, errors.GetKind(err))
}

func TestServe_ExecOverSSH(t *testing.T) {
	te := newTestEnv()
	dir := t.TempDir()
	path := writeConfig(t, `
log {
  level = "error"
}
serve {
  password = "s3cret"
}
`)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- te.Serve(ctx, []string{"-c", path, "-listen", "127.0.0.1:0", "-host-key", filepath.Join(dir, "host_key")}, ready)
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not start")
	}

	ch, err := remote.NewSSHChannel(&config.SSHConfig{
		User:                  "bench",
		Password:              "s3cret",
		InsecureIgnoreHostKey: true,
		DialTimeout:           "5s",
	}, nil)
	require.NoError(t, err)
	defer ch.Close()

	res, err := ch.Exec(context.Background(), remote.Remote(addr, "", ""), "echo peer-ok")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "peer-ok\n", string(res.Stdout))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
