// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package invocation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grimm.is/peerbench/internal/errors"
)

func TestToolInvocation_Args(t *testing.T) {
	tests := []struct {
		name string
		inv  ToolInvocation
		want []string
	}{
		{
			name: "server role",
			inv:  ToolInvocation{ToolID: "ib_send_lat", Adapter: "mlx4_0", Port: "1", PrimaryArg: "-s"},
			want: []string{"ib_send_lat", "-d", "mlx4_0", "-i", "1", "-s"},
		},
		{
			name: "client role with target",
			inv:  ToolInvocation{ToolID: "ib_send_lat", Adapter: "mlx5_1", Port: "2", Target: "10.0.0.2", PrimaryArg: "-s 4096 -n 1000"},
			want: []string{"ib_send_lat", "-d", "mlx5_1", "-i", "2", "10.0.0.2", "-s", "4096", "-n", "1000"},
		},
		{
			name: "empty option is a bare run",
			inv:  ToolInvocation{ToolID: "ib_read_lat", Target: "peer"},
			want: []string{"ib_read_lat", "peer"},
		},
		{
			name: "quoted option stays one word",
			inv:  ToolInvocation{ToolID: "tool", PrimaryArg: `--label "a b"`, ExtraArg: "-x"},
			want: []string{"tool", "--label", "a b", "-x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.inv.Args()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToolInvocation_Errors(t *testing.T) {
	_, err := ToolInvocation{}.Args()
	assert.Equal(t, errors.KindConfiguration, errors.GetKind(err))

	_, err = ToolInvocation{ToolID: "tool", PrimaryArg: `"unterminated`}.Args()
	assert.Equal(t, errors.KindConfiguration, errors.GetKind(err))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "''", Quote(""))
	assert.Equal(t, "-s", Quote("-s"))
	assert.Equal(t, "/tmp/ib_log", Quote("/tmp/ib_log"))
	assert.Equal(t, "'a b'", Quote("a b"))
	assert.Equal(t, `'x; rm -rf /'`, Quote("x; rm -rf /"))
	assert.Equal(t, `'it'"'"'s'`, Quote("it's"))
}

func TestCommand_String(t *testing.T) {
	cmd, err := ToolInvocation{ToolID: "ib_send_lat", Adapter: "mlx4_0", Port: "1", PrimaryArg: "-s"}.Render(600 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "timeout 600 ib_send_lat -d mlx4_0 -i 1 -s", cmd.String())

	assert.Equal(t, "echo 'a b'", Raw("echo", "a b").String())
	assert.Equal(t, "timeout 1 sleep 5", Raw("sleep", "5").WithTimeout(10*time.Millisecond).String())
}

func TestCommand_Detached(t *testing.T) {
	cmd := Raw("ib_send_lat", "-s").WithTimeout(time.Minute)
	assert.Equal(t, "nohup timeout 60 ib_send_lat -s > /tmp/ib_log 2>&1 < /dev/null &", cmd.Detached("/tmp/ib_log"))
}

func TestFetchAndClear(t *testing.T) {
	assert.Equal(t, "timeout 30 cat /tmp/ib_log && rm -f /tmp/ib_log", FetchAndClear("/tmp/ib_log", 30*time.Second))
	assert.Equal(t, "cat '/tmp/my log' && rm -f '/tmp/my log'", FetchAndClear("/tmp/my log", 0))
}
