// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"grimm.is/peerbench/internal/errors"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field    string
	Message  string
	Severity string // "error" (default), "warning"
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if any entry is not a warning.
func (e ValidationErrors) HasErrors() bool {
	for _, v := range e {
		if v.Severity != "warning" {
			return true
		}
	}
	return false
}

// Warnings returns only the warning entries.
func (e ValidationErrors) Warnings() ValidationErrors {
	var out ValidationErrors
	for _, v := range e {
		if v.Severity == "warning" {
			out = append(out, v)
		}
	}
	return out
}

// Err converts blocking entries into a KindConfiguration error, or nil.
func (e ValidationErrors) Err() error {
	if !e.HasErrors() {
		return nil
	}
	var blocking ValidationErrors
	for _, v := range e {
		if v.Severity != "warning" {
			blocking = append(blocking, v)
		}
	}
	return errors.Wrap(blocking, errors.KindConfiguration, "invalid configuration")
}

// ValidateLatency checks everything the latency benchmark needs before any trial runs.
func (c *Config) ValidateLatency() ValidationErrors {
	var errs ValidationErrors
	l := c.Latency
	if l == nil {
		return ValidationErrors{{Field: "latency", Message: "block is required"}}
	}

	if strings.TrimSpace(l.Tool) == "" {
		errs = append(errs, ValidationError{Field: "latency.tool", Message: "tool identifier is required"})
	}
	if strings.TrimSpace(l.PeerIP) == "" {
		errs = append(errs, ValidationError{Field: "latency.peer_ip", Message: "peer address is required"})
	} else if net.ParseIP(l.PeerIP) == nil {
		errs = append(errs, ValidationError{Field: "latency.peer_ip", Message: "not an IP literal, will be resolved as a host name", Severity: "warning"})
	}
	if l.TimeoutSec < 0 {
		errs = append(errs, ValidationError{Field: "latency.timeout", Message: "must not be negative"})
	}
	if d, err := time.ParseDuration(l.SettleDelay); err != nil || d < 0 {
		errs = append(errs, ValidationError{Field: "latency.settle_delay", Message: fmt.Sprintf("invalid duration %q", l.SettleDelay)})
	}
	if l.RemoteLog == "" || !strings.HasPrefix(l.RemoteLog, "/") {
		errs = append(errs, ValidationError{Field: "latency.remote_log", Message: "must be an absolute path"})
	}
	if len(l.TestOpts) == 0 {
		errs = append(errs, ValidationError{Field: "latency.test_opts", Message: "no mandatory variants, the tool will not run", Severity: "warning"})
	}
	if l.ExtEnabled && len(l.ExtOpts) == 0 {
		errs = append(errs, ValidationError{Field: "latency.ext_opts", Message: "extended testing enabled with no extended variants", Severity: "warning"})
	}

	errs = append(errs, c.validateSSH()...)
	return errs
}

func (c *Config) validateSSH() ValidationErrors {
	var errs ValidationErrors
	s := c.SSH
	if s == nil {
		return errs
	}
	if s.Port <= 0 || s.Port > 65535 {
		errs = append(errs, ValidationError{Field: "ssh.port", Message: fmt.Sprintf("invalid port %d", s.Port)})
	}
	if s.IdentityFile == "" && s.Password == "" && !s.UseAgent {
		errs = append(errs, ValidationError{Field: "ssh", Message: "no authentication method configured", Severity: "warning"})
	}
	if s.KnownHosts == "" && !s.InsecureIgnoreHostKey {
		errs = append(errs, ValidationError{Field: "ssh.known_hosts", Message: "required unless insecure_ignore_host_key is set"})
	}
	if _, err := time.ParseDuration(s.DialTimeout); err != nil {
		errs = append(errs, ValidationError{Field: "ssh.dial_timeout", Message: fmt.Sprintf("invalid duration %q", s.DialTimeout)})
	}
	return errs
}

// ValidateFuzz checks the fuzz block.
func (c *Config) ValidateFuzz() ValidationErrors {
	var errs ValidationErrors
	f := c.Fuzz
	if f == nil {
		return ValidationErrors{{Field: "fuzz", Message: "block is required"}}
	}
	if strings.TrimSpace(f.Binary) == "" {
		errs = append(errs, ValidationError{Field: "fuzz.binary", Message: "fuzz binary path is required"})
	}
	if f.User == "" || f.User == "root" {
		errs = append(errs, ValidationError{Field: "fuzz.user", Message: "a dedicated non-root user is required"})
	}
	if f.Iterations <= 0 {
		errs = append(errs, ValidationError{Field: "fuzz.iterations", Message: "must be positive"})
	}
	if !strings.HasPrefix(f.Home, "/") {
		errs = append(errs, ValidationError{Field: "fuzz.home", Message: "must be an absolute path"})
	}
	if strings.Contains(f.LogFile, "/") {
		errs = append(errs, ValidationError{Field: "fuzz.log_file", Message: "must be a bare file name inside the workdir"})
	}
	return errs
}

// ValidateServe checks the serve block.
func (c *Config) ValidateServe() ValidationErrors {
	var errs ValidationErrors
	s := c.Serve
	if s == nil {
		return ValidationErrors{{Field: "serve", Message: "block is required"}}
	}
	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		errs = append(errs, ValidationError{Field: "serve.listen", Message: err.Error()})
	}
	if s.Password == "" && s.AuthorizedKeys == "" {
		errs = append(errs, ValidationError{Field: "serve", Message: "password or authorized_keys is required"})
	}
	return errs
}
