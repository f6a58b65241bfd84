// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package fuzz

import (
	"context"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grimm.is/peerbench/internal/config"
	"grimm.is/peerbench/internal/remote"
	"grimm.is/peerbench/internal/testutil"
)

func TestRun_RealHost(t *testing.T) {
	testutil.RequireRoot(t)

	cfg := config.Default().Fuzz
	cfg.User = "pbfuzztest"
	cfg.Group = "pbfuzztest"
	cfg.Home = filepath.Join(t.TempDir(), "home")
	cfg.Binary = "/bin/true"

	exec := remote.NewExecutor(remote.NewLocalChannel(), nil, quietLogger())
	ep := remote.Local("", "")
	prov := NewUserProvisioner(exec, ep, cfg, quietLogger())
	runner := NewRunner(exec, ep, cfg, quietLogger())

	_, _, err := Run(context.Background(), prov, runner, "", 10)
	require.NoError(t, err)

	_, err = user.Lookup(cfg.User)
	assert.Error(t, err, "user should be removed after the run")
}
