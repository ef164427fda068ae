package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_WorkflowFlag(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"-workflow", "demo.flow.hcl"}, &out)
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, "demo.flow.hcl", cfg.WorkflowPath)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Serve)
}

func TestParse_ShorthandAndPositional(t *testing.T) {
	var out bytes.Buffer

	cfg, _, err := Parse([]string{"-w", "short.flow.hcl"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "short.flow.hcl", cfg.WorkflowPath)

	cfg, _, err = Parse([]string{"positional.flow.hcl"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "positional.flow.hcl", cfg.WorkflowPath)
}

func TestParse_ServeWithoutWorkflow(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"-serve", "-api-port", "9000"}, &out)
	require.NoError(t, err)
	require.False(t, exit)

	assert.True(t, cfg.Serve)
	assert.Equal(t, 9000, cfg.APIPort)
	assert.Empty(t, cfg.WorkflowPath)
}

func TestParse_NoArgsPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse(nil, &out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParse_AllOverrides(t *testing.T) {
	var out bytes.Buffer
	cfg, _, err := Parse([]string{
		"-workflow", "w.flow.hcl",
		"-config", "svc.yaml",
		"-log-format", "json",
		"-log-level", "DEBUG",
		"-workers", "12",
		"-failure-policy", "continue",
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, "svc.yaml", cfg.ConfigPath)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 12, cfg.Workers)
	assert.Equal(t, "continue", cfg.FailurePolicy)
}

func TestParse_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"bad log format", []string{"-log-format", "xml", "w.flow.hcl"}},
		{"bad log level", []string{"-log-level", "loud", "w.flow.hcl"}},
		{"bad failure policy", []string{"-failure-policy", "explode", "w.flow.hcl"}},
		{"unknown flag", []string{"-frobnicate", "w.flow.hcl"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			_, _, err := Parse(tc.args, &out)
			require.Error(t, err)

			exitErr, ok := err.(*ExitError)
			require.True(t, ok)
			assert.Equal(t, 2, exitErr.Code)
			assert.NotEmpty(t, exitErr.Error())
		})
	}
}

func TestParse_HelpExitsCleanly(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"-h"}, &out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
}
