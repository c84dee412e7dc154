package jig

// command.go contains utilities for building the jig script command line.

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/urfave/cli/v2"
)

// UnbufferedEnv forces line-by-line output from Python scripts even when
// stdout is a pipe.
const UnbufferedEnv = "PYTHONUNBUFFERED=1"

// Options contains options for the jig script command.
type Options struct {
	Interpreter string   // Interpreter executable, e.g. python3
	Script      string   // Path to the jig script
	Args        []string // Arguments for the script
}

// IsPython reports whether the interpreter understands python's -u flag.
func (o Options) IsPython() bool {
	return strings.HasPrefix(filepath.Base(o.Interpreter), "python")
}

// BuildArgs builds the argument vector for local execution, interpreter
// first. Output is always requested unbuffered.
func BuildArgs(opts Options) []string {
	args := []string{opts.Interpreter}
	if opts.IsPython() {
		args = append(args, "-u")
	}
	args = append(args, opts.Script)
	args = append(args, opts.Args...)
	return args
}

// BuildCommand builds the command string for remote execution.
// It reuses BuildArgs and joins the arguments with proper shell escaping.
// A leading ~/ in the script path is kept unquoted so the remote shell
// expands it.
func BuildCommand(opts Options) string {
	args := BuildArgs(opts)

	parts := make([]string, 0, len(args)+2)
	parts = append(parts, UnbufferedEnv, "exec")
	for _, arg := range args {
		if arg == opts.Script && strings.HasPrefix(arg, "~/") {
			parts = append(parts, "~/"+shellescape.Quote(strings.TrimPrefix(arg, "~/")))
			continue
		}
		parts = append(parts, shellescape.Quote(arg))
	}

	return strings.Join(parts, " ")
}

// Env returns the process environment for the script.
func Env() []string {
	return append(os.Environ(), UnbufferedEnv)
}

// CheckLocal verifies that the script exists and is readable.
func CheckLocal(opts Options) error {
	f, err := os.Open(opts.Script)
	if err != nil {
		return fmt.Errorf("jig script not available: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("jig script not available: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("jig script %s is a directory", opts.Script)
	}
	return nil
}

// CheckRemoteCommand builds a shell test that fails when the script is not
// readable on the remote host.
func CheckRemoteCommand(opts Options) string {
	script := shellescape.Quote(opts.Script)
	if strings.HasPrefix(opts.Script, "~/") {
		script = "~/" + shellescape.Quote(strings.TrimPrefix(opts.Script, "~/"))
	}
	return fmt.Sprintf("test -r %s", script)
}

// PythonFlag returns the interpreter flag.
func PythonFlag(value string) cli.Flag {
	return &cli.StringFlag{
		Name:    "python",
		Usage:   "Interpreter used to run the jig script",
		Value:   value,
		EnvVars: []string{"FLASHJIG_PYTHON"},
	}
}

// ScriptFlag returns the script path flag.
func ScriptFlag(value string) cli.Flag {
	return &cli.StringFlag{
		Name:    "script",
		Usage:   "Path to the jig script",
		Value:   value,
		EnvVars: []string{"FLASHJIG_SCRIPT"},
	}
}
