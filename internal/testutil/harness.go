package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/app"
	"github.com/vk/flowgridgo/internal/registry"
)

// HarnessResult holds the outcomes of an end-to-end workflow run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
}

// RunWorkflowTest writes the given workflow files into a temp directory and
// runs them one-shot through the full application, with the provided modules
// replacing the built-in ones. It returns the captured logs and run error.
func RunWorkflowTest(t *testing.T, files map[string]string, modules ...registry.Module) *HarnessResult {
	t.Helper()
	return RunWorkflowTestWithContext(context.Background(), t, files, modules...)
}

// RunWorkflowTestWithContext is RunWorkflowTest with a caller-owned context,
// for tests that cancel mid-run.
func RunWorkflowTestWithContext(ctx context.Context, t *testing.T, files map[string]string, modules ...registry.Module) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	for name, content := range files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
	}

	appConfig, err := app.NewConfig(app.Config{
		WorkflowPath: tmpDir,
		LogLevel:     "debug",
		LogFormat:    "text",
		Workers:      4,
	})
	require.NoError(t, err)

	logBuffer := &SafeBuffer{}
	testApp, err := app.NewApp(logBuffer, appConfig, modules...)
	if err != nil {
		return &HarnessResult{LogOutput: logBuffer.String(), Err: err}
	}

	runErr := testApp.Run(ctx)

	if os.Getenv("FLOWGRID_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Err:       runErr,
		App:       testApp,
	}
}
