// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads and validates peerbench configuration files.
package config

import (
	"strings"
	"time"
)

// Defaults taken from the perftest and trinity runners this tool replaces.
const (
	DefaultConfigPath   = "/etc/peerbench/peerbench.hcl"
	DefaultCAName       = "mlx4_0"
	DefaultPortNum      = "1"
	DefaultTimeoutSec   = 600
	DefaultSettleDelay  = 2 * time.Second
	DefaultRemoteLog    = "/tmp/ib_log"
	DefaultSSHPort      = 22
	DefaultDialTimeout  = 10 * time.Second
	DefaultFuzzUser     = "trinity"
	DefaultFuzzHome     = "/home/trinity"
	DefaultFuzzLogFile  = "trinity.log"
	DefaultIterations   = 1000000
	DefaultKernelLogCmd = "dmesg"
	DefaultServeListen  = ":2222"
)

// Config is the top-level configuration.
type Config struct {
	Log     *LogConfig     `hcl:"log,block" json:"log,omitempty"`
	SSH     *SSHConfig     `hcl:"ssh,block" json:"ssh,omitempty"`
	Latency *LatencyConfig `hcl:"latency,block" json:"latency,omitempty"`
	Fuzz    *FuzzConfig    `hcl:"fuzz,block" json:"fuzz,omitempty"`
	Prepare *PrepareConfig `hcl:"prepare,block" json:"prepare,omitempty"`
	Report  *ReportConfig  `hcl:"report,block" json:"report,omitempty"`
	Serve   *ServeConfig   `hcl:"serve,block" json:"serve,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `hcl:"level,optional" json:"level,omitempty"`
	Format string `hcl:"format,optional" json:"format,omitempty"` // text, logfmt, json
	File   string `hcl:"file,optional" json:"file,omitempty"`
}

// SSHConfig configures the client side of the remote command channel.
type SSHConfig struct {
	User         string `hcl:"user,optional" json:"user,omitempty"`
	Port         int    `hcl:"port,optional" json:"port,omitempty"`
	IdentityFile string `hcl:"identity_file,optional" json:"identity_file,omitempty"`
	Password     string `hcl:"password,optional" json:"password,omitempty"`
	UseAgent     bool   `hcl:"use_agent,optional" json:"use_agent,omitempty"`
	KnownHosts   string `hcl:"known_hosts,optional" json:"known_hosts,omitempty"`
	// InsecureIgnoreHostKey disables host key verification. Lab use only.
	InsecureIgnoreHostKey bool   `hcl:"insecure_ignore_host_key,optional" json:"insecure_ignore_host_key,omitempty"`
	DialTimeout           string `hcl:"dial_timeout,optional" json:"dial_timeout,omitempty"`
}

// DialTimeoutDuration returns the parsed dial timeout.
func (s *SSHConfig) DialTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.DialTimeout)
	if err != nil || d <= 0 {
		return DefaultDialTimeout
	}
	return d
}

// LatencyConfig drives the two-node latency benchmark.
type LatencyConfig struct {
	Tool        string   `hcl:"tool,optional" json:"tool,omitempty"`
	Interface   string   `hcl:"interface,optional" json:"interface,omitempty"`
	PeerIP      string   `hcl:"peer_ip,optional" json:"peer_ip,omitempty"`
	CAName      string   `hcl:"ca_name,optional" json:"ca_name,omitempty"`
	Port        string   `hcl:"port,optional" json:"port,omitempty"`
	PeerCA      string   `hcl:"peer_ca,optional" json:"peer_ca,omitempty"`
	PeerPort    string   `hcl:"peer_port,optional" json:"peer_port,omitempty"`
	TimeoutSec  int      `hcl:"timeout,optional" json:"timeout,omitempty"`
	SettleDelay string   `hcl:"settle_delay,optional" json:"settle_delay,omitempty"`
	RemoteLog   string   `hcl:"remote_log,optional" json:"remote_log,omitempty"`
	TestOpts    []string `hcl:"test_opts,optional" json:"test_opts,omitempty"`
	ExtOpts     []string `hcl:"ext_opts,optional" json:"ext_opts,omitempty"`
	ExtEnabled  bool     `hcl:"ext_enabled,optional" json:"ext_enabled,omitempty"`
}

// Timeout returns the per-command timeout.
func (l *LatencyConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSec) * time.Second
}

// Settle returns the parsed settle delay, falling back to DefaultSettleDelay.
func (l *LatencyConfig) Settle() time.Duration {
	d, err := time.ParseDuration(l.SettleDelay)
	if err != nil || d < 0 {
		return DefaultSettleDelay
	}
	return d
}

// FuzzConfig drives the restricted-identity fuzz run.
type FuzzConfig struct {
	Binary           string `hcl:"binary,optional" json:"binary,omitempty"`
	Args             string `hcl:"args,optional" json:"args,omitempty"`
	Iterations       int    `hcl:"iterations,optional" json:"iterations,omitempty"`
	User             string `hcl:"user,optional" json:"user,omitempty"`
	Group            string `hcl:"group,optional" json:"group,omitempty"`
	Home             string `hcl:"home,optional" json:"home,omitempty"`
	LogFile          string `hcl:"log_file,optional" json:"log_file,omitempty"`
	Sudo             bool   `hcl:"sudo,optional" json:"sudo,omitempty"`
	KernelLogCommand string `hcl:"kernel_log_command,optional" json:"kernel_log_command,omitempty"`
}

// PrepareConfig configures the environment-preparation steps run before the core.
type PrepareConfig struct {
	SkipToolCheck      bool     `hcl:"skip_tool_check,optional" json:"skip_tool_check,omitempty"`
	SkipFirewall       bool     `hcl:"skip_firewall,optional" json:"skip_firewall,omitempty"`
	SkipInterfaceCheck bool     `hcl:"skip_interface_check,optional" json:"skip_interface_check,omitempty"`
	Sudo               bool     `hcl:"sudo,optional" json:"sudo,omitempty"` // firewall stop through sudo
	Local              []string `hcl:"local,optional" json:"local,omitempty"`
	Remote             []string `hcl:"remote,optional" json:"remote,omitempty"`
}

// ReportConfig configures optional run outputs.
type ReportConfig struct {
	File        string `hcl:"file,optional" json:"file,omitempty"`
	MetricsFile string `hcl:"metrics_file,optional" json:"metrics_file,omitempty"`
	Color       string `hcl:"color,optional" json:"color,omitempty"` // auto, always, never
}

// ServeConfig configures the embedded peer exec server.
type ServeConfig struct {
	Listen         string `hcl:"listen,optional" json:"listen,omitempty"`
	HostKeyPath    string `hcl:"host_key_path,optional" json:"host_key_path,omitempty"`
	Password       string `hcl:"password,optional" json:"password,omitempty"`
	AuthorizedKeys string `hcl:"authorized_keys,optional" json:"authorized_keys,omitempty"`
}

// Default returns a configuration with every block populated with defaults.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset blocks and fields in place.
func (c *Config) ApplyDefaults() {
	if c.Log == nil {
		c.Log = &LogConfig{}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.SSH == nil {
		c.SSH = &SSHConfig{}
	}
	if c.SSH.User == "" {
		c.SSH.User = "root"
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = DefaultSSHPort
	}
	if c.SSH.DialTimeout == "" {
		c.SSH.DialTimeout = DefaultDialTimeout.String()
	}

	if c.Latency == nil {
		c.Latency = &LatencyConfig{}
	}
	l := c.Latency
	if l.CAName == "" {
		l.CAName = DefaultCAName
	}
	if l.Port == "" {
		l.Port = DefaultPortNum
	}
	if l.PeerCA == "" {
		l.PeerCA = DefaultCAName
	}
	if l.PeerPort == "" {
		l.PeerPort = DefaultPortNum
	}
	if l.TimeoutSec == 0 {
		l.TimeoutSec = DefaultTimeoutSec
	}
	if l.SettleDelay == "" {
		l.SettleDelay = DefaultSettleDelay.String()
	}
	if l.RemoteLog == "" {
		l.RemoteLog = DefaultRemoteLog
	}
	// Empty rather than nil lists keep EncodeHCL from writing nulls.
	if l.TestOpts == nil {
		l.TestOpts = []string{}
	}
	if l.ExtOpts == nil {
		l.ExtOpts = []string{}
	}

	if c.Fuzz == nil {
		c.Fuzz = &FuzzConfig{}
	}
	f := c.Fuzz
	if f.User == "" {
		f.User = DefaultFuzzUser
	}
	if f.Group == "" {
		f.Group = f.User
	}
	if f.Home == "" {
		f.Home = DefaultFuzzHome
	}
	if f.LogFile == "" {
		f.LogFile = DefaultFuzzLogFile
	}
	if f.Iterations == 0 {
		f.Iterations = DefaultIterations
	}
	if f.KernelLogCommand == "" {
		f.KernelLogCommand = DefaultKernelLogCmd
	}

	if c.Prepare == nil {
		c.Prepare = &PrepareConfig{}
	}
	if c.Prepare.Local == nil {
		c.Prepare.Local = []string{}
	}
	if c.Prepare.Remote == nil {
		c.Prepare.Remote = []string{}
	}
	if c.Report == nil {
		c.Report = &ReportConfig{}
	}
	if c.Report.Color == "" {
		c.Report.Color = "auto"
	}
	if c.Serve == nil {
		c.Serve = &ServeConfig{}
	}
	if c.Serve.Listen == "" {
		c.Serve.Listen = DefaultServeListen
	}
}

// SplitOptions parses a comma-separated option list. Entries are trimmed but
// kept even when empty: an empty entry runs the tool with no extra option.
func SplitOptions(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
