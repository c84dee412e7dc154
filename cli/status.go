package cli

// This file contains the status and init commands.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/flashjig/flashjig/config"
	"github.com/flashjig/flashjig/supervisor"
)

type statusAPI interface {
	Health(ctx context.Context) error
	Status(ctx context.Context) (supervisor.Status, error)
}

func (a *App) status(ctx *cli.Context) error {
	out, err := statusReport(ctx.Context, a.newClient(ctx))
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func statusReport(ctx context.Context, c statusAPI) (string, error) {
	if err := c.Health(ctx); err != nil {
		return "", err
	}
	st, err := c.Status(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if !st.Running {
		fmt.Fprintf(&b, "%s No flash run in progress\n", passStyle.Render("●"))
		return b.String(), nil
	}
	fmt.Fprintf(&b, "%s Flash run in progress\n", activeStyle.Render("●"))
	fmt.Fprintf(&b, "  Run: %s\n", st.RunID)
	if st.PID != 0 {
		fmt.Fprintf(&b, "  PID: %d\n", st.PID)
	} else {
		fmt.Fprintf(&b, "  PID: %s\n", dimStyle.Render("starting"))
	}
	if st.Channel != 0 {
		fmt.Fprintf(&b, "  Channel: %d\n", st.Channel)
	}
	if st.StartedAt != nil {
		fmt.Fprintf(&b, "  Started: %s\n", st.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String(), nil
}

// initConfig writes the effective configuration to path.
func (a *App) initConfig(ctx *cli.Context) error {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	path := ctx.String("config")
	if err := writeConfig(cfg, path, ctx.Bool("force")); err != nil {
		return err
	}
	a.logger.Info().Str("path", path).Msg("Wrote configuration")
	return nil
}

func writeConfig(cfg config.Config, path string, force bool) error {
	if path == "" {
		return fmt.Errorf("no configuration path, set --config")
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return config.Save(cfg, path)
}
