package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/flowgridgo/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("flowgridgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
FlowGridGo - A concurrent workflow dispatch engine.

Usage:
  flowgridgo [options] [WORKFLOW_PATH]

Arguments:
  WORKFLOW_PATH
    Path to a single .flow.hcl file or a directory containing .flow.hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	workflowFlag := flagSet.String("workflow", "", "Path to the workflow file or directory.")
	wFlag := flagSet.String("w", "", "Path to the workflow file or directory (shorthand).")
	configFlag := flagSet.String("config", "", "Path to the YAML service configuration file.")
	serveFlag := flagSet.Bool("serve", false, "Run as a long-lived service with the HTTP API.")
	apiPortFlag := flagSet.Int("api-port", 0, "Port for the HTTP API in serve mode. 0 uses the configured port.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 0, "Maximum concurrent task attempts per dispatch. 0 uses the configured default.")
	policyFlag := flagSet.String("failure-policy", "", "Failure policy: 'fail_fast' or 'continue'. Empty uses the configured default.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := ""
	if *workflowFlag != "" {
		path = *workflowFlag
	} else if *wFlag != "" {
		path = *wFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}

	if path == "" && !*serveFlag {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	switch *policyFlag {
	case "", "fail_fast", "continue":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid failure-policy: must be 'fail_fast' or 'continue'"}
	}

	config, err := app.NewConfig(app.Config{
		WorkflowPath:  path,
		ConfigPath:    *configFlag,
		Serve:         *serveFlag,
		APIPort:       *apiPortFlag,
		LogFormat:     logFormat,
		LogLevel:      logLevel,
		Workers:       *workersFlag,
		FailurePolicy: *policyFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}
