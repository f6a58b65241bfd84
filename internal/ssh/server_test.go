// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ssh_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grimm.is/peerbench/internal/config"
	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/invocation"
	"grimm.is/peerbench/internal/logging"
	"grimm.is/peerbench/internal/remote"
	peerssh "grimm.is/peerbench/internal/ssh"
)

const password = "s3cret"

func startServer(t *testing.T) (*peerssh.Server, string) {
	t.Helper()
	logger := logging.New(logging.Config{Level: logging.LevelError})

	srv, err := peerssh.NewServer(&config.ServeConfig{
		Listen:      "127.0.0.1:0",
		HostKeyPath: filepath.Join(t.TempDir(), "host_ed25519"),
		Password:    password,
	}, logger)
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv, l.Addr().String()
}

func client(t *testing.T, pw string) *remote.SSHChannel {
	t.Helper()
	ch, err := remote.NewSSHChannel(&config.SSHConfig{
		User:                  "bench",
		Password:              pw,
		InsecureIgnoreHostKey: true,
		DialTimeout:           "5s",
	}, logging.New(logging.Config{Level: logging.LevelError}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func TestServer_Exec(t *testing.T) {
	srv, addr := startServer(t)
	ch := client(t, password)
	ep := remote.Remote(addr, "mlx4_0", "1")

	res, err := ch.Exec(context.Background(), ep, "echo hello; echo oops >&2; exit 2")
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExitCode)
	assert.Equal(t, "hello\n", string(res.Stdout))
	assert.Equal(t, "oops\n", string(res.Stderr))

	assert.Equal(t, uint64(1), srv.Stats().CommandsRun)
}

func TestServer_RejectsBadPassword(t *testing.T) {
	srv, addr := startServer(t)
	ch := client(t, "wrong")

	_, err := ch.Exec(context.Background(), remote.Remote(addr, "", ""), "true")
	require.Error(t, err)
	assert.Equal(t, errors.KindRemoteExecution, errors.GetKind(err))
	assert.GreaterOrEqual(t, srv.Stats().AuthFailures, uint64(1))
}

func TestNewServer_RequiresAuthentication(t *testing.T) {
	_, err := peerssh.NewServer(&config.ServeConfig{
		Listen:      "127.0.0.1:0",
		HostKeyPath: filepath.Join(t.TempDir(), "host_ed25519"),
	}, logging.New(logging.Config{Level: logging.LevelError}))
	require.Error(t, err)
	assert.Equal(t, errors.KindConfiguration, errors.GetKind(err))
}

func TestServer_RejectsMissingCredentials(t *testing.T) {
	srv, addr := startServer(t)
	ch := client(t, "")

	_, err := ch.Exec(context.Background(), remote.Remote(addr, "", ""), "echo reached")
	require.Error(t, err)
	assert.Equal(t, errors.KindRemoteExecution, errors.GetKind(err))
	assert.Zero(t, srv.Stats().CommandsRun)
}

func TestSSHChannel_CancelledCallDoesNotPoisonNext(t *testing.T) {
	_, addr := startServer(t)
	ch := client(t, password)
	ep := remote.Remote(addr, "", "")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := ch.Exec(ctx, ep, "sleep 5")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	res, err := ch.Exec(context.Background(), ep, "echo again")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "again\n", string(res.Stdout))
}

func TestServer_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	ch := client(t, password)
	_, err = ch.Exec(context.Background(), remote.Remote(addr, "", ""), "true")
	require.Error(t, err)
	assert.Equal(t, errors.KindRemoteExecution, errors.GetKind(err))
	assert.Equal(t, addr, errors.GetAttributes(err)["endpoint"])
}

func TestServer_DetachedLaunchAndFetch(t *testing.T) {
	_, addr := startServer(t)
	exec := remote.NewExecutor(nil, client(t, password), logging.New(logging.Config{Level: logging.LevelError}))
	ep := remote.Remote(addr, "", "")
	logPath := filepath.Join(t.TempDir(), "ib_log")

	launch, err := exec.RunAsyncDetached(context.Background(), ep, invocation.Raw("sh", "-c", "sleep 0.2; echo bound"), 10*time.Second, logPath)
	require.NoError(t, err)
	assert.True(t, launch.Accepted)

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(logPath)
		return err == nil && len(data) > 0
	}, 5*time.Second, 50*time.Millisecond)

	content, err := exec.FetchAndClear(context.Background(), ep, logPath, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "bound\n", content)
	assert.NoFileExists(t, logPath)
}
