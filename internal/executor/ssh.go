package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/ctyutil"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/crypto/ssh"
)

// SSH runs command-style units on a remote host over SSH. It only supports
// tasks whose arguments carry a "command" string; units with arbitrary Go
// logic must stay on the local backend.
//
// Descriptor configuration: host (required, "addr:port"), user (required),
// password or private_key_path (one required), connect_timeout (optional
// duration, default 10s).
type SSH struct {
	host    string
	config  *ssh.ClientConfig
	timeout time.Duration
}

// NewSSH builds the remote backend from descriptor configuration.
func NewSSH(config map[string]cty.Value) (*SSH, error) {
	host, err := ctyutil.StringArg(config, "host")
	if err != nil {
		return nil, err
	}
	user, err := ctyutil.StringArg(config, "user")
	if err != nil {
		return nil, err
	}
	timeout, err := ctyutil.DurationArgDefault(config, "connect_timeout", 10*time.Second)
	if err != nil {
		return nil, err
	}

	var auth []ssh.AuthMethod
	if password, err := ctyutil.StringArgDefault(config, "password", ""); err != nil {
		return nil, err
	} else if password != "" {
		auth = append(auth, ssh.Password(password))
	}
	if keyPath, err := ctyutil.StringArgDefault(config, "private_key_path", ""); err != nil {
		return nil, err
	} else if keyPath != "" {
		raw, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key '%s': %w", keyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing private key '%s': %w", keyPath, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("ssh backend requires 'password' or 'private_key_path'")
	}

	return &SSH{
		host: host,
		config: &ssh.ClientConfig{
			User: user,
			Auth: auth,
			// Workflow targets are operator-configured; host key pinning is
			// left to the SSH agent / known_hosts of the deployment.
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         timeout,
		},
		timeout: timeout,
	}, nil
}

// Name implements Executor.
func (s *SSH) Name() string { return "ssh" }

// Execute implements Executor. The command is taken from the task's
// arguments; stdout becomes the task output.
func (s *SSH) Execute(ctx context.Context, inv *Invocation) (any, error) {
	logger := ctxlog.FromContext(ctx).With("task", inv.TaskID, "host", s.host)

	command, err := ctyutil.StringArg(inv.Call.Args, "command")
	if err != nil {
		return nil, fmt.Errorf("ssh backend can only run command units: %w", err)
	}

	logger.Debug("Dialing remote host.")
	client, err := ssh.Dial("tcp", s.host, s.config)
	if err != nil {
		return nil, fmt.Errorf("connecting to '%s': %w", s.host, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("opening session on '%s': %w", s.host, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	// The SSH session has no native context support; a cancelled context
	// tears the connection down, which aborts the remote command.
	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		client.Close()
		return nil, ctx.Err()
	}

	if err != nil {
		return nil, fmt.Errorf("remote command failed: %w (stderr: %s)", err, stderr.String())
	}

	logger.Debug("Remote command finished.", "stdout_bytes", stdout.Len())
	return map[string]any{
		"stdout": stdout.String(),
		"stderr": stderr.String(),
	}, nil
}
