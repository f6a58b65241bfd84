// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package invocation turns structured diagnostic commands into shell text.
// Every command that reaches a remote shell is rendered here, so quoting
// lives in exactly one place.
package invocation

import (
	"strconv"
	"strings"
	"time"

	"github.com/anmitsu/go-shlex"
	"grimm.is/peerbench/internal/errors"
)

// ToolInvocation is one concrete perftest-style command.
// Adapter and Port identify the local HCA the tool binds to (-d / -i).
// Target is empty for the server role and the peer address for the client role.
type ToolInvocation struct {
	ToolID     string
	Adapter    string
	Port       string
	Target     string
	PrimaryArg string
	ExtraArg   string
}

// Args returns the argv for the invocation. PrimaryArg and ExtraArg are option
// strings and may hold several shell words ("-s 4096"); they are split with
// POSIX rules.
func (t ToolInvocation) Args() ([]string, error) {
	if strings.TrimSpace(t.ToolID) == "" {
		return nil, errors.New(errors.KindConfiguration, "tool identifier is empty")
	}

	args := []string{t.ToolID}
	if t.Adapter != "" {
		args = append(args, "-d", t.Adapter)
	}
	if t.Port != "" {
		args = append(args, "-i", t.Port)
	}
	if t.Target != "" {
		args = append(args, t.Target)
	}
	for _, opt := range []string{t.PrimaryArg, t.ExtraArg} {
		words, err := shlex.Split(opt, true)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindConfiguration, "cannot parse option %q", opt)
		}
		args = append(args, words...)
	}
	return args, nil
}

// Command is a rendered, shell-ready command line.
type Command struct {
	Argv []string
	// Timeout, when positive, wraps the command in coreutils timeout(1) so the
	// process is bounded even if the channel that started it goes away.
	Timeout time.Duration
}

// Render builds a Command from the invocation.
func (t ToolInvocation) Render(timeout time.Duration) (Command, error) {
	argv, err := t.Args()
	if err != nil {
		return Command{}, err
	}
	return Command{Argv: argv, Timeout: timeout}, nil
}

// Raw builds a Command from already separated words.
func Raw(argv ...string) Command {
	return Command{Argv: argv}
}

// WithTimeout returns a copy of c bounded by d.
func (c Command) WithTimeout(d time.Duration) Command {
	c.Timeout = d
	return c
}

// String renders the command as a single POSIX shell line.
func (c Command) String() string {
	words := make([]string, 0, len(c.Argv)+2)
	if secs := timeoutSeconds(c.Timeout); secs > 0 {
		words = append(words, "timeout", strconv.Itoa(secs))
	}
	for _, a := range c.Argv {
		words = append(words, Quote(a))
	}
	return strings.Join(words, " ")
}

// Detached renders the command so that it keeps running after the launching
// shell exits, with stdout and stderr sent to logPath.
func (c Command) Detached(logPath string) string {
	return "nohup " + c.String() + " > " + Quote(logPath) + " 2>&1 < /dev/null &"
}

// FetchAndClear renders the shell line that prints logPath and removes it.
// The removal only happens when the read succeeded.
func FetchAndClear(logPath string, timeout time.Duration) string {
	read := Command{Argv: []string{"cat", logPath}, Timeout: timeout}
	return read.String() + " && rm -f " + Quote(logPath)
}

// Quote returns s quoted for a POSIX shell. Words made only of safe characters
// are returned unchanged.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !isSafe(r) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func isSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("-_./:=,+@%", r)
}

// timeout(1) takes whole seconds; sub-second values round up to one.
func timeoutSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
