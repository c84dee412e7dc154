package cli

// This file contains the list command for displaying previous flash runs.

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/flashjig/flashjig/history"
	"github.com/flashjig/flashjig/model"
)

func (a *App) list(ctx *cli.Context) error {
	limit := ctx.Int("limit")

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}

	// Load all history entries, newest first
	entries, err := history.LoadEntries(a.logger, cfg.HistoryDir())
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No flash runs found")
		fmt.Printf("Runs are saved to %s/<timestamp>-<id>/\n", cfg.HistoryDir())
		return nil
	}

	displayRuns := entries
	if limit > 0 && limit < len(displayRuns) {
		displayRuns = displayRuns[:limit]
	}

	fmt.Printf("\n=== History (%d total) ===\n\n", len(entries))

	for _, entry := range displayRuns {
		run := entry.Run
		timestamp := run.Timestamp.Format("2006-01-02 15:04:05")
		duration := run.Duration.Round(time.Millisecond)

		shortID := run.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		fmt.Printf("%s  %s  [%s]  exit=%d  id=%s\n", runIndicator(run), timestamp, duration, run.ExitCode, shortID)
		fmt.Printf("   %s\n", renderSummary(run.Summary))
		if run.Cancelled {
			fmt.Println("   Cancelled")
		}
		if run.Fatal != "" {
			fmt.Printf("   Error: %s\n", run.Fatal)
		}
		if run.RemoteHost != "" {
			fmt.Printf("   Remote: %s\n", run.RemoteHost)
		}
		for _, artifact := range run.Artifacts {
			fmt.Printf("   %s: %s (%.1f KB)\n", artifactName(artifact.Type), artifact.File, float64(artifact.Size)/1024)
		}
		fmt.Printf("   %s\n", entry.FullPath)
		fmt.Println()
	}

	fmt.Println("View a run: flashjig view <ID>")

	return nil
}

func runIndicator(run model.RunRecord) string {
	if run.Fatal != "" || run.Cancelled || run.ExitCode != 0 || run.Summary.Failed > 0 {
		return failStyle.Render("✗")
	}
	return passStyle.Render("✓")
}

func artifactName(t model.ArtifactType) string {
	switch t {
	case model.ArtifactTypeStdout:
		return "stdout"
	case model.ArtifactTypeStderr:
		return "stderr"
	}
	return "artifact"
}
