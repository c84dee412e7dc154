package cli

// This file contains the run command, which follows a flash run from the
// terminal.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/flashjig/flashjig/board"
	"github.com/flashjig/flashjig/checks"
	"github.com/flashjig/flashjig/client"
	"github.com/flashjig/flashjig/model"
)

// follower folds streamed events into board state and echoes them.
type follower struct {
	app     *App
	client  *client.Client
	machine *board.Machine
	req     checks.Config
	out     io.Writer
	quiet   bool
}

func (a *App) run(ctx *cli.Context) error {
	c := client.New(a.logger, ctx.String("server"))

	req, err := c.RequiredChecks(ctx.Context)
	if err != nil {
		return fmt.Errorf("failed to load required checks: %w", err)
	}

	f := &follower{
		app:     a,
		client:  c,
		machine: board.NewMachine(ctx.Int("boards"), model.KnownChecks),
		req:     req,
		out:     os.Stdout,
		quiet:   ctx.Bool("quiet"),
	}

	// Closing the stream on interrupt makes the server kill the run.
	sigCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	streamErr := c.Stream(sigCtx, f.handle)
	state := f.machine.Snapshot()

	fmt.Fprintln(f.out)
	fmt.Fprint(f.out, renderBoards(state.Boards, f.req))
	sum := board.Summarize(state.Boards)
	if state.Summary != nil {
		sum = *state.Summary
	}
	fmt.Fprintln(f.out, renderSummary(sum))

	switch {
	case sigCtx.Err() != nil && ctx.Context.Err() == nil:
		return cli.Exit("run interrupted", 130)
	case streamErr != nil:
		return streamErr
	case state.Fatal != "":
		return cli.Exit(fmt.Sprintf("run ended with error: %s", state.Fatal), 1)
	case sum.Failed > 0:
		return cli.Exit(fmt.Sprintf("%d board(s) failed", sum.Failed), 1)
	}
	return nil
}

func (f *follower) handle(ev model.Event) error {
	if ev.Type == model.EventFlashComplete {
		f.refreshChecks()
	}
	state := f.machine.Apply(ev, f.req)

	logger := f.app.logger
	switch ev.Type {
	case model.EventRawOutput:
		if !f.quiet {
			fmt.Fprintln(f.out, ev.Message)
		}
	case model.EventChannelSelected:
		logger.Debug().Int("pcb", ev.PCB).Msg("Channel selected")
	case model.EventFlashing:
		logger.Info().Int("pcb", ev.PCB).Msg("Flashing board")
	case model.EventCheckResult:
		logger.Debug().Int("pcb", ev.PCB).Str("check", ev.Check).Bool("passed", ev.CheckPassed()).Msg("Check result")
	case model.EventFlashComplete, model.EventFlashFailed:
		if b, ok := state.Board(ev.PCB); ok {
			logger.Info().Int("pcb", ev.PCB).Str("status", string(b.Status)).Msg("Board finished")
		}
	case model.EventError:
		if ev.Fatal {
			logger.Error().Str("message", ev.Message).Msg("Run failed")
		} else {
			logger.Warn().Str("message", ev.Message).Msg("Jig script")
		}
	case model.EventComplete:
		logger.Info().Int("code", ev.ExitCode()).Msg("Jig script exited")
	}
	return nil
}

// refreshChecks picks up selection changes made during the run. The previous
// selection is kept if the server cannot be reached.
func (f *follower) refreshChecks() {
	req, err := f.client.RequiredChecks(context.Background())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			f.app.logger.Warn().Err(err).Msg("Failed to refresh required checks")
		}
		return
	}
	f.req = req
}
