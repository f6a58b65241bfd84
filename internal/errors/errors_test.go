// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	err := New(KindConfiguration, "tool identifier is required")
	assert.Equal(t, "tool identifier is required", err.Error())

	wrapped := Wrap(err, KindEnvironment, "prepare failed")
	assert.Equal(t, "prepare failed: tool identifier is required", wrapped.Error())
	assert.Nil(t, Wrap(nil, KindInternal, "nothing"))
}

func TestGetKind(t *testing.T) {
	err := New(KindRemoteExecution, "dial failed")
	assert.Equal(t, KindRemoteExecution, GetKind(err))

	wrapped := Wrap(err, KindToolFailure, "trial")
	assert.Equal(t, KindToolFailure, GetKind(wrapped))
	assert.True(t, Is(wrapped, err))

	assert.Equal(t, KindUnknown, GetKind(errors.New("std error")))
	assert.False(t, IsKind(nil, KindUnknown))
}

func TestKind_Fatal(t *testing.T) {
	tests := []struct {
		kind  Kind
		fatal bool
	}{
		{KindConfiguration, true},
		{KindRemoteExecution, true},
		{KindEnvironment, true},
		{KindToolFailure, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.fatal, tt.kind.Fatal())
		})
	}
}

func TestAttributes(t *testing.T) {
	err := New(KindRemoteExecution, "fetch failed")
	err = Attr(err, "endpoint", "10.0.0.2")
	err = Attr(err, "exit_code", 1)

	attrs := GetAttributes(err)
	assert.Equal(t, "10.0.0.2", attrs["endpoint"])
	assert.Equal(t, 1, attrs["exit_code"])

	wrapped := Wrap(err, KindInternal, "run aborted")
	wrapped = Attr(wrapped, "variant", "-s")

	all := GetAttributes(wrapped)
	assert.Equal(t, "10.0.0.2", all["endpoint"])
	assert.Equal(t, "-s", all["variant"])

	plain := Attr(errors.New("boom"), "k", "v")
	assert.Equal(t, KindInternal, GetKind(plain))
}

func TestFields(t *testing.T) {
	assert.Nil(t, Fields(nil))

	err := Errorf(KindEnvironment, "step %q failed", "modprobe ib_umad")
	err = Attr(err, "exit_code", 1)
	err = Attr(err, "endpoint", "peer")

	assert.Equal(t, []any{"kind", "environment", "endpoint", "peer", "exit_code", 1}, Fields(err))
	assert.Equal(t, []any{"kind", "unknown"}, Fields(errors.New("plain")))
}
