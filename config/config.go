package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flashjig/flashjig/model"
)

const (
	DefaultAddr      = ":3001"
	DefaultPython    = "python3"
	DefaultScript    = "~/Documents/sonora/jig.py"
	DefaultQueueSize   = 1024
	DefaultKillTimeout = 5 * time.Second
)

// Config holds all flashjig server configuration.
type Config struct {
	Addr   string `yaml:"addr,omitempty"`
	Python string `yaml:"python,omitempty"`
	Script string `yaml:"script,omitempty"`
	// Extra arguments passed to the script
	ScriptArgs []string `yaml:"script_args,omitempty"`
	// Run the script on this host over ssh instead of locally
	RemoteHost    string `yaml:"remote_host,omitempty"`
	SSHIdentity   string `yaml:"ssh_identity,omitempty"`
	SSHKnownHosts string `yaml:"ssh_known_hosts,omitempty"`
	// Extra ssh -o options, e.g. "StrictHostKeyChecking=accept-new"
	SSHOptions []string `yaml:"ssh_options,omitempty"`
	Boards     int      `yaml:"boards,omitempty"`
	QueueSize  int      `yaml:"queue_size,omitempty"`
	// How long a kill waits for the script to be reaped
	KillTimeout time.Duration `yaml:"kill_timeout,omitempty"`
	// Directory holding the check database and run history
	DataDir string `yaml:"data_dir,omitempty"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Addr:        DefaultAddr,
		Python:      DefaultPython,
		Script:      DefaultScript,
		Boards:      model.DefaultBoardCount,
		QueueSize:   DefaultQueueSize,
		KillTimeout: DefaultKillTimeout,
		DataDir:     defaultDataDir(),
	}
}

// DefaultPath is ~/.config/flashjig/config.yaml, or empty if the home
// directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "flashjig", "config.yaml")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flashjig"
	}
	return filepath.Join(home, ".local", "share", "flashjig")
}

// Load merges the YAML file at path over Defaults. A missing file is not an
// error.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.Merge(fileCfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Merge overrides c with every non-zero field of o.
func (c *Config) Merge(o Config) {
	if o.Addr != "" {
		c.Addr = o.Addr
	}
	if o.Python != "" {
		c.Python = o.Python
	}
	if o.Script != "" {
		c.Script = o.Script
	}
	if len(o.ScriptArgs) > 0 {
		c.ScriptArgs = o.ScriptArgs
	}
	if o.RemoteHost != "" {
		c.RemoteHost = o.RemoteHost
	}
	if o.SSHIdentity != "" {
		c.SSHIdentity = o.SSHIdentity
	}
	if o.SSHKnownHosts != "" {
		c.SSHKnownHosts = o.SSHKnownHosts
	}
	if len(o.SSHOptions) > 0 {
		c.SSHOptions = o.SSHOptions
	}
	if o.Boards != 0 {
		c.Boards = o.Boards
	}
	if o.QueueSize != 0 {
		c.QueueSize = o.QueueSize
	}
	if o.KillTimeout != 0 {
		c.KillTimeout = o.KillTimeout
	}
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
}

func (c Config) Validate() error {
	if c.Boards < 1 {
		return fmt.Errorf("boards must be at least 1, got %d", c.Boards)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", c.QueueSize)
	}
	if c.KillTimeout <= 0 {
		return fmt.Errorf("kill_timeout must be positive, got %s", c.KillTimeout)
	}
	if c.Python == "" || c.Script == "" {
		return errors.New("python and script are required")
	}
	return nil
}

// Save writes c to path as YAML, creating parent directories.
func Save(c Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// CheckDBPath is the location of the required-check database.
func (c Config) CheckDBPath() string {
	return filepath.Join(ExpandHome(c.DataDir), "checks.db")
}

// HistoryDir is the root of the run history.
func (c Config) HistoryDir() string {
	return filepath.Join(ExpandHome(c.DataDir), "history")
}

// ExpandHome replaces a leading ~ with the user's home directory. Remote
// paths are left alone since ~ is expanded by the remote shell.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
