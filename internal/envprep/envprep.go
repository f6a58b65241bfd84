// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package envprep readies both hosts before a benchmark or fuzz run: it
// checks that tools and interfaces exist, stops host firewalls and runs any
// configured setup commands. Every failure is a KindEnvironment error.
package envprep

import (
	"bufio"
	"context"
	"strings"
	"time"

	"grimm.is/peerbench/internal/config"
	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/invocation"
	"grimm.is/peerbench/internal/logging"
	"grimm.is/peerbench/internal/remote"
)

// stepTimeout bounds each preparation command.
const stepTimeout = 2 * time.Minute

// firewallStop maps os-release IDs to the command that stops the host firewall.
var firewallStop = map[string][]string{
	"ubuntu":   {"service", "ufw", "stop"},
	"rhel":     {"systemctl", "stop", "firewalld"},
	"fedora":   {"systemctl", "stop", "firewalld"},
	"redhat":   {"systemctl", "stop", "firewalld"},
	"suse":     {"rcSuSEfirewall2", "stop"},
	"sles":     {"rcSuSEfirewall2", "stop"},
	"opensuse": {"rcSuSEfirewall2", "stop"},
	"centos":   {"service", "iptables", "stop"},
}

// FirewallCommand returns the firewall stop command for a distribution.
// ids are tried in order, typically ID followed by the ID_LIKE entries.
func FirewallCommand(ids ...string) ([]string, error) {
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if cmd, ok := firewallStop[id]; ok {
			return cmd, nil
		}
		if strings.HasPrefix(id, "opensuse") {
			return firewallStop["opensuse"], nil
		}
	}
	return nil, errors.Errorf(errors.KindEnvironment, "distro not supported: %s", strings.Join(ids, ","))
}

// ParseOSRelease extracts ID and ID_LIKE from /etc/os-release content.
func ParseOSRelease(content string) []string {
	var id string
	var like []string
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		val = strings.Trim(val, `"'`)
		switch key {
		case "ID":
			id = val
		case "ID_LIKE":
			like = strings.Fields(val)
		}
	}
	if id == "" {
		return like
	}
	return append([]string{id}, like...)
}

// Preparer runs the preparation steps through an Executor.
type Preparer struct {
	exec   *remote.Executor
	local  remote.HostEndpoint
	peer   *remote.HostEndpoint
	cfg    *config.PrepareConfig
	links  LinkInspector
	logger *logging.Logger
	sudo   bool
}

// Option configures a Preparer.
type Option func(*Preparer)

// WithPeer adds the remote endpoint; without it only local steps run.
func WithPeer(ep remote.HostEndpoint) Option {
	return func(p *Preparer) { p.peer = &ep }
}

// WithLinkInspector replaces the netlink-backed interface lookup.
func WithLinkInspector(li LinkInspector) Option {
	return func(p *Preparer) { p.links = li }
}

// WithSudo runs the firewall command through sudo.
func WithSudo(sudo bool) Option {
	return func(p *Preparer) { p.sudo = sudo }
}

// New creates a Preparer.
func New(exec *remote.Executor, local remote.HostEndpoint, cfg *config.PrepareConfig, logger *logging.Logger, opts ...Option) *Preparer {
	if cfg == nil {
		cfg = &config.PrepareConfig{}
	}
	if logger == nil {
		logger = logging.WithComponent("envprep")
	}
	p := &Preparer{
		exec:   exec,
		local:  local,
		cfg:    cfg,
		links:  NetlinkInspector{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Preparer) endpoints() []remote.HostEndpoint {
	eps := []remote.HostEndpoint{p.local}
	if p.peer != nil {
		eps = append(eps, *p.peer)
	}
	return eps
}

// PrepareLatency readies both hosts for a latency run with tool over iface.
func (p *Preparer) PrepareLatency(ctx context.Context, tool, iface string) error {
	if !p.cfg.SkipToolCheck {
		for _, ep := range p.endpoints() {
			if err := p.CheckTool(ctx, ep, tool); err != nil {
				return err
			}
		}
	}
	if !p.cfg.SkipInterfaceCheck && iface != "" {
		if err := p.CheckInterface(iface); err != nil {
			return err
		}
	}
	if !p.cfg.SkipFirewall {
		for _, ep := range p.endpoints() {
			if err := p.StopFirewall(ctx, ep); err != nil {
				return err
			}
		}
	}
	return p.RunSteps(ctx)
}

// PrepareFuzz checks the fuzz binary is executable and runs local steps.
func (p *Preparer) PrepareFuzz(ctx context.Context, binary string) error {
	if !p.cfg.SkipToolCheck {
		if err := p.run(ctx, p.local, invocation.Raw("test", "-x", binary), "fuzz binary "+binary+" is not executable"); err != nil {
			return err
		}
	}
	return p.runSteps(ctx, p.local, p.cfg.Local)
}

// CheckTool verifies tool is on the PATH of ep.
func (p *Preparer) CheckTool(ctx context.Context, ep remote.HostEndpoint, tool string) error {
	cmd := invocation.Raw("sh", "-c", "command -v "+invocation.Quote(tool))
	if err := p.run(ctx, ep, cmd, tool+" is not installed on "+ep.String()); err != nil {
		return err
	}
	p.logger.Debug("tool present", "endpoint", ep.String(), "tool", tool)
	return nil
}

// CheckInterface verifies a local interface exists and is up.
func (p *Preparer) CheckInterface(name string) error {
	info, err := p.links.Inspect(name)
	if err != nil {
		return errors.Attr(errors.Wrapf(err, errors.KindEnvironment, "%s interface is not available", name), "interface", name)
	}
	if !info.Up {
		return errors.Attr(errors.Errorf(errors.KindEnvironment, "%s interface is down", name), "interface", name)
	}
	p.logger.Info("Interface ready", "interface", name, "type", info.Type, "driver", info.Driver, "mtu", info.MTU)
	return nil
}

// StopFirewall detects the distribution of ep and stops its firewall.
func (p *Preparer) StopFirewall(ctx context.Context, ep remote.HostEndpoint) error {
	status, err := p.exec.RunSync(ctx, ep, invocation.Raw("cat", "/etc/os-release"), stepTimeout)
	if err != nil {
		return errors.Wrapf(err, errors.KindEnvironment, "cannot detect distro on %s", ep)
	}
	if !status.Success() {
		return errors.Errorf(errors.KindEnvironment, "cannot read /etc/os-release on %s", ep)
	}

	argv, err := FirewallCommand(ParseOSRelease(status.Stdout)...)
	if err != nil {
		return errors.Attr(err, "endpoint", ep.Address)
	}
	if p.sudo {
		argv = append([]string{"sudo"}, argv...)
	}
	if err := p.run(ctx, ep, invocation.Raw(argv...), "Unable to disable firewall on "+ep.String()); err != nil {
		return err
	}
	p.logger.Info("Firewall stopped", "endpoint", ep.String(), "command", strings.Join(argv, " "))
	return nil
}

// RunSteps runs the configured free-form setup commands on each side.
func (p *Preparer) RunSteps(ctx context.Context) error {
	if err := p.runSteps(ctx, p.local, p.cfg.Local); err != nil {
		return err
	}
	if p.peer != nil {
		return p.runSteps(ctx, *p.peer, p.cfg.Remote)
	}
	return nil
}

func (p *Preparer) runSteps(ctx context.Context, ep remote.HostEndpoint, steps []string) error {
	for _, step := range steps {
		if strings.TrimSpace(step) == "" {
			continue
		}
		p.logger.Info("Running setup step", "endpoint", ep.String(), "step", step)
		if err := p.run(ctx, ep, invocation.Raw("sh", "-c", step), "setup step failed on "+ep.String()); err != nil {
			return errors.Attr(err, "step", step)
		}
	}
	return nil
}

func (p *Preparer) run(ctx context.Context, ep remote.HostEndpoint, cmd invocation.Command, failure string) error {
	status, err := p.exec.RunSync(ctx, ep, cmd, stepTimeout)
	if err != nil {
		return errors.Attr(errors.Wrap(err, errors.KindEnvironment, failure), "endpoint", ep.Address)
	}
	if !status.Success() {
		err := errors.Errorf(errors.KindEnvironment, "%s (exit %d)", failure, status.Code)
		return errors.Attr(errors.Attr(err, "endpoint", ep.Address), "exit_code", status.Code)
	}
	return nil
}
