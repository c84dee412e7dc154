// Package ssh runs the jig script on a remote host, typically the machine the
// jig is attached to. It keeps a multiplexed master connection so repeated
// runs do not pay for a new handshake.
package ssh

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Client manages an SSH connection to a specific remote host.
type Client struct {
	logger         zerolog.Logger
	host           string
	controlPath    string
	identityFile   string
	knownHostsFile string
	extraOptions   []string
}

// SSHOption is a function that configures an SSH client.
type SSHOption func(*Client)

// WithIdentityFile sets the identity file (private key) to use for authentication.
func WithIdentityFile(path string) SSHOption {
	return func(c *Client) {
		c.identityFile = path
	}
}

// WithKnownHostsFile sets the known hosts file to use for host verification.
func WithKnownHostsFile(path string) SSHOption {
	return func(c *Client) {
		c.knownHostsFile = path
	}
}

// WithExtraOptions adds extra SSH options to the connection.
func WithExtraOptions(options ...string) SSHOption {
	return func(c *Client) {
		c.extraOptions = append(c.extraOptions, options...)
	}
}

// New creates a new SSH client and establishes a multiplexed connection to the host.
func New(logger zerolog.Logger, host string, opts ...SSHOption) (*Client, error) {
	c := &Client{
		logger: logger,
		host:   host,
	}

	for _, opt := range opts {
		opt(c)
	}

	controlPath, err := c.setupMultiplexing()
	if err != nil {
		return nil, fmt.Errorf("failed to setup SSH multiplexing: %w", err)
	}
	c.controlPath = controlPath

	return c, nil
}

// Close closes the SSH connection and cleans up the control socket.
func (c *Client) Close() {
	c.logger.Debug().Str("controlPath", c.controlPath).Msg("Cleaning up SSH multiplexing")

	args := []string{
		"-o", fmt.Sprintf("ControlPath=%s", c.controlPath),
		"-O", "exit",
		c.host,
	}
	cmd := exec.Command("ssh", args...)
	_ = cmd.Run() // Ignore errors on cleanup

	_ = os.Remove(c.controlPath)
}

// RunCommand executes a command on the remote host and returns the output.
func (c *Client) RunCommand(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "ssh", c.CommandArgs(command)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug().
		Str("host", c.host).
		Str("command", command).
		Msg("Running remote command")

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("command failed: %w (stderr: %s)", err, stderr.String())
	}

	return stdout.String(), nil
}

// CommandArgs returns the ssh arguments that run command on the remote host,
// for callers that manage the ssh process themselves.
func (c *Client) CommandArgs(command string) []string {
	args := c.buildSSHArgs()
	return append(args, c.host, command)
}

// buildSSHArgs constructs the SSH arguments with all configured options.
func (c *Client) buildSSHArgs() []string {
	args := []string{"-o", "BatchMode=yes"}

	if c.controlPath != "" {
		args = append(args,
			"-o", fmt.Sprintf("ControlPath=%s", c.controlPath),
			"-o", "ControlMaster=no",
		)
	}

	args = append(args, c.authArgs()...)
	return args
}

func (c *Client) authArgs() []string {
	var args []string
	if c.identityFile != "" {
		args = append(args, "-i", c.identityFile)
	}
	if c.knownHostsFile != "" {
		args = append(args, "-o", fmt.Sprintf("UserKnownHostsFile=%s", c.knownHostsFile))
	}
	for _, opt := range c.extraOptions {
		args = append(args, "-o", opt)
	}
	return args
}

// Host returns the remote host this client is connected to.
func (c *Client) Host() string {
	return c.host
}

// setupMultiplexing establishes an SSH master connection for multiplexing.
func (c *Client) setupMultiplexing() (string, error) {
	controlDir := controlSocketDir()
	if err := os.MkdirAll(controlDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create control directory: %w", err)
	}

	// Unix domain socket paths are limited to ~104 chars, so use a short hash.
	hash := sha256.Sum256([]byte(c.host))
	hostHash := hex.EncodeToString(hash[:])[:12]
	controlPath := filepath.Join(controlDir, fmt.Sprintf("ssh-%s", hostHash))

	c.logger.Debug().
		Str("host", c.host).
		Str("controlPath", controlPath).
		Msg("Setting up SSH multiplexing")

	args := []string{
		"-o", "ControlMaster=auto",
		"-o", fmt.Sprintf("ControlPath=%s", controlPath),
		"-o", "ControlPersist=10m",
		"-o", "ConnectTimeout=10",
		"-o", "ServerAliveInterval=15",
		"-o", "ServerAliveCountMax=3",
		"-o", "BatchMode=yes",
	}
	args = append(args, c.authArgs()...)
	args = append(args,
		"-f", // Run in background
		"-N", // Don't execute a remote command
		c.host,
	)

	cmd := exec.Command("ssh", args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to establish SSH master connection: %w (stderr: %s)", err, stderr.String())
	}

	c.logger.Debug().Str("host", c.host).Msg("SSH master connection established")
	return controlPath, nil
}

// controlSocketDir returns the directory to use for SSH control sockets.
func controlSocketDir() string {
	if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
		return filepath.Join(xdgRuntime, "flashjig")
	}

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		if home := os.Getenv("HOME"); home != "" {
			configHome = filepath.Join(home, ".config")
		}
	}
	if configHome != "" {
		return filepath.Join(configHome, "flashjig")
	}

	return filepath.Join(os.TempDir(), "flashjig")
}
