// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package remote

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"grimm.is/peerbench/internal/config"
	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/logging"
)

// SSHChannel runs commands on a peer over SSH. Each Exec dials its own
// connection, so a broken call never poisons the next one.
type SSHChannel struct {
	clientConfig *ssh.ClientConfig
	port         int
	dialTimeout  time.Duration
	agentConn    net.Conn
	logger       *logging.Logger
}

// NewSSHChannel builds an SSHChannel from configuration.
func NewSSHChannel(cfg *config.SSHConfig, logger *logging.Logger) (*SSHChannel, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindConfiguration, "ssh configuration is nil")
	}
	if logger == nil {
		logger = logging.WithComponent("remote")
	}

	c := &SSHChannel{
		port:        cfg.Port,
		dialTimeout: cfg.DialTimeoutDuration(),
		logger:      logger,
	}

	var auth []ssh.AuthMethod
	if cfg.IdentityFile != "" {
		signer, err := loadSigner(cfg.IdentityFile)
		if err != nil {
			return nil, err
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.UseAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			conn, err := net.Dial("unix", sock)
			if err != nil {
				logger.Warn("ssh agent unavailable", "socket", sock, "error", err)
			} else {
				c.agentConn = conn
				auth = append(auth, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			}
		}
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if !cfg.InsecureIgnoreHostKey {
		cb, err := knownhosts.New(expandHome(cfg.KnownHosts))
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindConfiguration, "failed to load known_hosts %s", cfg.KnownHosts)
		}
		hostKeyCallback = cb
	}

	c.clientConfig = &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.dialTimeout,
	}
	return c, nil
}

func loadSigner(path string) (ssh.Signer, error) {
	pem, err := os.ReadFile(expandHome(path))
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindConfiguration, "failed to read identity file %s", path)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindConfiguration, "failed to parse identity file %s", path)
	}
	return signer, nil
}

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}

// Close releases the agent connection, if any.
func (c *SSHChannel) Close() error {
	if c.agentConn != nil {
		return c.agentConn.Close()
	}
	return nil
}

func (c *SSHChannel) addr(ep HostEndpoint) string {
	if _, _, err := net.SplitHostPort(ep.Address); err == nil {
		return ep.Address
	}
	return net.JoinHostPort(ep.Address, strconv.Itoa(c.port))
}

func (c *SSHChannel) dial(ctx context.Context, ep HostEndpoint) (*ssh.Client, error) {
	addr := c.addr(ep)
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Attr(errors.Wrapf(err, errors.KindRemoteExecution, "cannot reach %s", addr), "endpoint", ep.Address)
	}
	// Bound the handshake by the same deadline as the dial.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(c.dialTimeout))
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, c.clientConfig)
	if err != nil {
		conn.Close()
		return nil, errors.Attr(errors.Wrapf(err, errors.KindRemoteExecution, "ssh handshake with %s failed", addr), "endpoint", ep.Address)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Exec implements Channel.
func (c *SSHChannel) Exec(ctx context.Context, ep HostEndpoint, command string) (Result, error) {
	start := time.Now()
	client, err := c.dial(ctx, ep)
	if err != nil {
		return Result{}, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return Result{}, errors.Wrapf(err, errors.KindRemoteExecution, "cannot open session on %s", ep)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	c.logger.Debug("ssh exec", "endpoint", ep.Address, "command", command)
	if err := session.Start(command); err != nil {
		return Result{}, errors.Wrapf(err, errors.KindRemoteExecution, "cannot start command on %s", ep)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		client.Close()
		<-done
		return Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Duration: time.Since(start)}, ctx.Err()
	case err = <-done:
	}

	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Duration: time.Since(start)}
	if err == nil {
		return res, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitStatus()
		return res, nil
	}
	return res, errors.Wrapf(err, errors.KindRemoteExecution, "command on %s ended without exit status", ep)
}
