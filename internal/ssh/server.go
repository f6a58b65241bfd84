// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ssh provides the peer-side exec server. A peer node can run it
// instead of a system sshd to serve the benchmark's command channel.
package ssh

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	wishlog "github.com/charmbracelet/wish/logging"
	"grimm.is/peerbench/internal/config"
	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/logging"
)

// DefaultHostKeyPath is used when the config leaves host_key_path empty.
// The key is generated on first start.
const DefaultHostKeyPath = "/var/lib/peerbench/ssh_host_ed25519"

// Stats is a snapshot of server counters.
type Stats struct {
	ActiveSessions   int32
	TotalConnections uint64
	CommandsRun      uint64
	AuthFailures     uint64
}

// Server wraps the Wish SSH server
type Server struct {
	srv    *ssh.Server
	addr   string
	shell  string
	logger *logging.Logger

	activeSessions   int32
	totalConnections uint64
	commandsRun      uint64
	authFailures     uint64
}

// NewServer creates a new exec server. A password or an authorized_keys
// file is required; without either every client would get a shell.
func NewServer(cfg *config.ServeConfig, logger *logging.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindConfiguration, "serve configuration is nil")
	}
	if cfg.Password == "" && cfg.AuthorizedKeys == "" {
		return nil, errors.New(errors.KindConfiguration, "serve requires a password or authorized_keys")
	}
	if logger == nil {
		logger = logging.WithComponent("ssh")
	}

	addr := cfg.Listen
	if addr == "" {
		addr = config.DefaultServeListen
	}
	hostKey := cfg.HostKeyPath
	if hostKey == "" {
		hostKey = DefaultHostKeyPath
	}

	srv := &Server{
		addr:   addr,
		shell:  "/bin/sh",
		logger: logger,
	}

	opts := []ssh.Option{
		wish.WithAddress(addr),
		wish.WithHostKeyPath(hostKey),
		wish.WithMiddleware(
			srv.execMiddleware(),
			wishlog.MiddlewareWithLogger(newAdapter(logger)),
			srv.measureMiddleware(),
		),
	}
	if cfg.Password != "" {
		want := []byte(cfg.Password)
		opts = append(opts, wish.WithPasswordAuth(func(ctx ssh.Context, password string) bool {
			if subtle.ConstantTimeCompare([]byte(password), want) != 1 {
				atomic.AddUint64(&srv.authFailures, 1)
				logger.Warn("auth failed", "user", ctx.User(), "remote", ctx.RemoteAddr().String())
				return false
			}
			return true
		}))
	}
	if cfg.AuthorizedKeys != "" {
		opts = append(opts, wish.WithAuthorizedKeys(cfg.AuthorizedKeys))
	}

	ws, err := wish.NewServer(opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindConfiguration, "creating SSH server")
	}
	srv.srv = ws
	return srv, nil
}

// Serve accepts connections on l until the server is stopped.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("Serving command channel", "addr", l.Addr().String())
	if err := s.srv.Serve(l); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping SSH server")
	return s.srv.Shutdown(ctx)
}

// Stats returns current counters.
func (s *Server) Stats() Stats {
	return Stats{
		ActiveSessions:   atomic.LoadInt32(&s.activeSessions),
		TotalConnections: atomic.LoadUint64(&s.totalConnections),
		CommandsRun:      atomic.LoadUint64(&s.commandsRun),
		AuthFailures:     atomic.LoadUint64(&s.authFailures),
	}
}

// execMiddleware runs the session's command line through the shell and
// reports its exit status. Background jobs started by the command keep
// running after the session closes.
func (s *Server) execMiddleware() wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			raw := sess.RawCommand()
			if raw == "" {
				fmt.Fprintln(sess.Stderr(), "interactive sessions are not supported")
				_ = sess.Exit(1)
				return
			}

			atomic.AddUint64(&s.commandsRun, 1)
			cmd := exec.CommandContext(sess.Context(), s.shell, "-c", raw)
			cmd.Stdout = sess
			cmd.Stderr = sess.Stderr()
			cmd.WaitDelay = 2 * time.Second

			code := 0
			if err := cmd.Run(); err != nil {
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					code = exitErr.ExitCode()
					if code < 0 {
						code = 255
					}
				} else {
					fmt.Fprintln(sess.Stderr(), err)
					code = 255
				}
			}
			s.logger.Debug("command finished", "user", sess.User(), "command", raw, "code", code)
			_ = sess.Exit(code)
			next(sess)
		}
	}
}

func (s *Server) measureMiddleware() wish.Middleware {
	return func(sh ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			atomic.AddInt32(&s.activeSessions, 1)
			atomic.AddUint64(&s.totalConnections, 1)
			defer atomic.AddInt32(&s.activeSessions, -1)
			sh(sess)
		}
	}
}

// adapter routes wish's request logging into our logger.
type adapter struct {
	logger *logging.Logger
}

func newAdapter(logger *logging.Logger) *adapter {
	return &adapter{logger: logger}
}

func (a *adapter) Printf(format string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}
