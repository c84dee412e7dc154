package cli

// This file contains the view command for displaying a flash run from history.

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/flashjig/flashjig/checks"
	"github.com/flashjig/flashjig/history"
	"github.com/flashjig/flashjig/model"
)

// selectEntry resolves a view argument against entries sorted newest first.
// An empty argument or a non-positive integer counts back from the newest run,
// anything else is treated as a hex ID prefix.
func selectEntry(entries []history.Entry, arg string) (*history.Entry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no flash runs found")
	}
	if arg == "" {
		arg = "0"
	}

	if parsed, err := strconv.ParseInt(arg, 10, 64); err == nil && parsed <= 0 {
		index := int(-parsed)
		if index >= len(entries) {
			return nil, fmt.Errorf("index %s out of range (only %d runs)", arg, len(entries))
		}
		return &entries[index], nil
	}

	return history.Find(entries, strings.ToLower(arg))
}

func (a *App) view(ctx *cli.Context) error {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}

	entries, err := history.LoadEntries(a.logger, cfg.HistoryDir())
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	entry, err := selectEntry(entries, ctx.Args().First())
	if err != nil {
		return err
	}

	return a.displayRun(entry, ctx.Bool("output"))
}

func (a *App) displayRun(entry *history.Entry, output bool) error {
	run := entry.Run

	fmt.Println(titleStyle.Render(fmt.Sprintf("=== Flash Run: %s ===", run.ID)))
	fmt.Printf("Time: %s\n", run.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Printf("Duration: %s\n", run.Duration)
	fmt.Printf("Exit Code: %d\n", run.ExitCode)
	fmt.Printf("Command: %s\n", strings.Join(run.Args, " "))
	if run.RemoteHost != "" {
		fmt.Printf("Remote: %s\n", run.RemoteHost)
	}
	if run.Cancelled {
		fmt.Println("Cancelled: yes")
	}
	if run.Fatal != "" {
		fmt.Printf("Error: %s\n", run.Fatal)
	}
	fmt.Println()

	if len(run.Boards) > 0 {
		fmt.Print(renderBoards(run.Boards, recordedChecks(run)))
	}
	fmt.Println(renderSummary(run.Summary))
	fmt.Println()

	for _, artifact := range run.Artifacts {
		path := filepath.Join(entry.FullPath, artifact.File)
		fmt.Printf("%s: %s\n", artifactName(artifact.Type), path)
		if !output {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", artifact.File, err)
		}
		fmt.Println(string(data))
	}

	return nil
}

// recordedChecks returns the selection a run was judged with. Records
// written without one show every check as required.
func recordedChecks(run model.RunRecord) checks.Config {
	if run.RequiredChecks != nil {
		return checks.Config(run.RequiredChecks)
	}
	cfg := checks.Config{}
	for _, name := range checkNames(run.Boards) {
		cfg[name] = true
	}
	return cfg
}
