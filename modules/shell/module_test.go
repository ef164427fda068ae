package shell_test

import (
	. "github.com/vk/flowgridgo/modules/shell"

	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

func shellHandler(t *testing.T) registry.Handler {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell unit requires /bin/sh")
	}
	r := registry.New()
	(&Module{}).Register(r)
	h, ok := r.Handler("shell")
	require.True(t, ok)
	return h
}

func TestShell_CapturesOutput(t *testing.T) {
	h := shellHandler(t)
	ctx, _ := testutil.Context()

	out, err := h(ctx, registry.Call{
		TaskID: "t",
		Args:   map[string]cty.Value{"command": cty.StringVal("echo hello")},
	})
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, "hello\n", m["stdout"])
	assert.Equal(t, 0, m["exit_code"])
}

func TestShell_NonZeroExitIsError(t *testing.T) {
	h := shellHandler(t)
	ctx, _ := testutil.Context()

	out, err := h(ctx, registry.Call{
		TaskID: "t",
		Args:   map[string]cty.Value{"command": cty.StringVal("echo oops >&2; exit 3")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code 3")

	m := out.(map[string]any)
	assert.Equal(t, 3, m["exit_code"])
	assert.Equal(t, "oops\n", m["stderr"])
}

func TestShell_EnvAndDir(t *testing.T) {
	h := shellHandler(t)
	ctx, _ := testutil.Context()
	dir := t.TempDir()

	out, err := h(ctx, registry.Call{
		TaskID: "t",
		Args: map[string]cty.Value{
			"command": cty.StringVal("echo $GREETING; pwd"),
			"dir":     cty.StringVal(dir),
			"env":     cty.ObjectVal(map[string]cty.Value{"GREETING": cty.StringVal("hi")}),
		},
	})
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Contains(t, m["stdout"], "hi\n")
	assert.Contains(t, m["stdout"], dir)
}

func TestShell_MissingCommand(t *testing.T) {
	h := shellHandler(t)
	ctx, _ := testutil.Context()

	_, err := h(ctx, registry.Call{TaskID: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command")
}
