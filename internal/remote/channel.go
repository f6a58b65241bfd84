// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package remote runs commands on the local host and on the peer node.
package remote

import (
	"context"
	"time"
)

// Result is the outcome of one completed shell command.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Channel executes a shell command line on an endpoint and waits for the shell
// to exit. A non-zero exit is reported in Result; the error return is reserved
// for channel failures (unreachable host, authentication, cancelled context).
type Channel interface {
	Exec(ctx context.Context, ep HostEndpoint, command string) (Result, error)
}
