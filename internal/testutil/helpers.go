// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package testutil

import (
	"os"
	"testing"
)

// RequirePeer skips the test unless PEERBENCH_PEER names a reachable peer
// node, and returns its address. Such tests talk to real InfiniBand hosts.
func RequirePeer(t *testing.T) string {
	t.Helper()
	peer := os.Getenv("PEERBENCH_PEER")
	if peer == "" {
		t.Skip("Skipping test: requires PEERBENCH_PEER environment")
	}
	return peer
}

// RequireRoot skips the test unless it runs as root, as account management
// and firewall tests need.
func RequireRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("Skipping test: requires root")
	}
	if os.Getenv("PEERBENCH_HOST_TEST") == "" {
		t.Skip("Skipping test: requires PEERBENCH_HOST_TEST environment")
	}
}
