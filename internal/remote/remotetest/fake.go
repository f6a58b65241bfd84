// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package remotetest provides a scripted remote.Channel for tests.
package remotetest

import (
	"context"
	"strings"
	"sync"

	"grimm.is/peerbench/internal/remote"
)

// Call records one Exec invocation.
type Call struct {
	Endpoint remote.HostEndpoint
	Command  string
}

// Rule answers commands containing Match. The first matching rule wins.
type Rule struct {
	Match  string
	Result remote.Result
	Err    error
	// Times limits how often the rule applies; zero means unlimited.
	Times int
	// NoEffects leaves the emulated file store untouched, as when the
	// remote shell never got far enough to open a redirect.
	NoEffects bool
	used      int
}

// Channel is a fake remote.Channel. Unmatched commands succeed with exit 0,
// except cat of a file that was never written, which exits 1 like a shell.
// It also models a file store per endpoint so that detached launches and
// fetch-and-clear calls can be observed.
type Channel struct {
	mu    sync.Mutex
	rules []*Rule
	calls []Call
	files map[string]string
}

// New returns an empty fake channel.
func New() *Channel {
	return &Channel{files: make(map[string]string)}
}

// On adds a rule.
func (c *Channel) On(match string, res remote.Result, err error) *Rule {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := &Rule{Match: match, Result: res, Err: err}
	c.rules = append(c.rules, r)
	return r
}

// Once adds a rule that applies a single time.
func (c *Channel) Once(match string, res remote.Result, err error) {
	r := c.On(match, res, err)
	c.mu.Lock()
	r.Times = 1
	c.mu.Unlock()
}

// Exec implements remote.Channel.
func (c *Channel) Exec(ctx context.Context, ep remote.HostEndpoint, command string) (remote.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Endpoint: ep, Command: command})

	if err := ctx.Err(); err != nil {
		return remote.Result{}, err
	}

	for _, r := range c.rules {
		if r.Times > 0 && r.used >= r.Times {
			continue
		}
		if strings.Contains(command, r.Match) {
			r.used++
			if r.Err == nil && !r.NoEffects {
				c.applyFileEffects(ep, command, r.Result.ExitCode == 0)
			}
			return r.Result, r.Err
		}
	}

	if path, ok := catTarget(command); ok {
		if _, exists := c.files[key(ep, path)]; !exists {
			return remote.Result{
				ExitCode: 1,
				Stderr:   []byte("cat: " + path + ": No such file or directory\n"),
			}, nil
		}
	}
	c.applyFileEffects(ep, command, true)
	return remote.Result{}, nil
}

// applyFileEffects emulates "> path" redirects and "rm -f path". The shell
// opens redirects before the command runs, so they apply whatever the exit
// status; removals only follow a successful command.
func (c *Channel) applyFileEffects(ep remote.HostEndpoint, command string, ok bool) {
	fields := strings.Fields(command)
	for i, f := range fields {
		if f == ">" && i+1 < len(fields) {
			c.files[key(ep, fields[i+1])] = command
		}
		if ok && f == "-f" && i > 0 && fields[i-1] == "rm" && i+1 < len(fields) {
			delete(c.files, key(ep, fields[i+1]))
		}
	}
}

// catTarget returns the file read by a cat command.
func catTarget(command string) (string, bool) {
	fields := strings.Fields(command)
	for i, f := range fields {
		if f == "cat" && i+1 < len(fields) {
			return fields[i+1], true
		}
	}
	return "", false
}

func key(ep remote.HostEndpoint, path string) string {
	return ep.Address + ":" + path
}

// Calls returns a copy of the recorded calls.
func (c *Channel) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Commands returns the recorded command lines in order.
func (c *Channel) Commands() []string {
	var out []string
	for _, call := range c.Calls() {
		out = append(out, call.Command)
	}
	return out
}

// FileExists reports whether path currently exists on ep in the emulated store.
func (c *Channel) FileExists(ep remote.HostEndpoint, path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.files[key(ep, path)]
	return ok
}
