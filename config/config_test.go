package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, ":3001", cfg.Addr)
	require.Equal(t, "python3", cfg.Python)
	require.Equal(t, "~/Documents/sonora/jig.py", cfg.Script)
	require.Equal(t, 6, cfg.Boards)
	require.Equal(t, 1024, cfg.QueueSize)
	require.Equal(t, 5*time.Second, cfg.KillTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestLoad_Merge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
script: /opt/jig/jig.py
script_args: ["--port", "/dev/ttyUSB1"]
boards: 8
kill_timeout: 2s
ssh_known_hosts: ~/.ssh/jig_known_hosts
ssh_options: ["StrictHostKeyChecking=accept-new"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/opt/jig/jig.py", cfg.Script)
	require.Equal(t, []string{"--port", "/dev/ttyUSB1"}, cfg.ScriptArgs)
	require.Equal(t, 8, cfg.Boards)
	require.Equal(t, 2*time.Second, cfg.KillTimeout)
	require.Equal(t, "~/.ssh/jig_known_hosts", cfg.SSHKnownHosts)
	require.Equal(t, []string{"StrictHostKeyChecking=accept-new"}, cfg.SSHOptions)
	// untouched fields keep their defaults
	require.Equal(t, "python3", cfg.Python)
	require.Equal(t, 1024, cfg.QueueSize)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("boards: [1, 2"), 0o644))
	_, err := Load(bad)
	require.Error(t, err)

	negative := filepath.Join(dir, "negative.yaml")
	require.NoError(t, os.WriteFile(negative, []byte("boards: -2\n"), 0o644))
	_, err = Load(negative)
	require.ErrorContains(t, err, "boards must be at least 1")

	timeout := filepath.Join(dir, "timeout.yaml")
	require.NoError(t, os.WriteFile(timeout, []byte("kill_timeout: -1s\n"), 0o644))
	_, err = Load(timeout)
	require.ErrorContains(t, err, "kill_timeout must be positive")
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Defaults()
	cfg.RemoteHost = "jig-pi.local"
	cfg.QueueSize = 64
	cfg.KillTimeout = 1500 * time.Millisecond
	cfg.SSHOptions = []string{"ConnectTimeout=3"}

	require.NoError(t, Save(cfg, path))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	require.Equal(t, filepath.Join(home, "Documents", "jig.py"), ExpandHome("~/Documents/jig.py"))
	require.Equal(t, "/abs/path", ExpandHome("/abs/path"))
	require.Equal(t, "~user/x", ExpandHome("~user/x"))
}
