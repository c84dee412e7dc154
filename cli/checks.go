package cli

// This file contains the kill and checks commands, thin wrappers over the
// server API.

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/flashjig/flashjig/checks"
	"github.com/flashjig/flashjig/client"
)

// checkAPI is the part of the client the checks commands use.
type checkAPI interface {
	RequiredChecks(ctx context.Context) (checks.Config, error)
	SetChecks(ctx context.Context, cfg checks.Config) (checks.Config, error)
	SetCheck(ctx context.Context, name string, required bool) error
	ToggleCheck(ctx context.Context, name string) (bool, error)
}

// newClient builds an API client for the command's --server. A positive
// --timeout bounds each request.
func (a *App) newClient(ctx *cli.Context) *client.Client {
	var opts []client.Option
	if d := ctx.Duration("timeout"); d > 0 {
		opts = append(opts, client.WithHTTPClient(&http.Client{Timeout: d}))
	}
	return client.New(a.logger, ctx.String("server"), opts...)
}

func (a *App) kill(ctx *cli.Context) error {
	resp, err := a.newClient(ctx).Kill(ctx.Context)
	if err != nil {
		return err
	}
	fmt.Println(resp.Message)
	return nil
}

func (a *App) checksList(ctx *cli.Context) error {
	cfg, err := a.newClient(ctx).RequiredChecks(ctx.Context)
	if err != nil {
		return err
	}
	fmt.Print(renderChecks(cfg))
	return nil
}

func (a *App) checksToggle(ctx *cli.Context) error {
	name := strings.Join(ctx.Args().Slice(), " ")
	if name == "" {
		return fmt.Errorf("check name is required")
	}

	out, err := toggleCheck(ctx.Context, a.newClient(ctx), name)
	if err != nil {
		return err
	}
	a.logger.Debug().Str("check", name).Msg("Toggled check")
	fmt.Print(out)
	return nil
}

func (a *App) checksSet(ctx *cli.Context) error {
	cfg, err := parseCheckAssignments(ctx.Args().Slice())
	if err != nil {
		return err
	}

	out, err := setChecks(ctx.Context, a.newClient(ctx), cfg, ctx.Bool("replace"))
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// toggleCheck flips one check and renders the selection the server now holds.
func toggleCheck(ctx context.Context, c checkAPI, name string) (string, error) {
	if _, err := c.ToggleCheck(ctx, name); err != nil {
		return "", err
	}
	saved, err := c.RequiredChecks(ctx)
	if err != nil {
		return "", err
	}
	return renderChecks(saved), nil
}

// setChecks applies the assignments one check at a time, or replaces the
// whole selection when replace is set.
func setChecks(ctx context.Context, c checkAPI, cfg checks.Config, replace bool) (string, error) {
	if replace {
		saved, err := c.SetChecks(ctx, cfg)
		if err != nil {
			return "", err
		}
		return renderChecks(saved), nil
	}

	for _, name := range cfg.Names() {
		if err := c.SetCheck(ctx, name, cfg[name]); err != nil {
			return "", fmt.Errorf("failed to set %q: %w", name, err)
		}
	}
	saved, err := c.RequiredChecks(ctx)
	if err != nil {
		return "", err
	}
	return renderChecks(saved), nil
}

// parseCheckAssignments parses arguments of the form "<name>=<bool>". Names
// may contain spaces when quoted by the shell.
func parseCheckAssignments(args []string) (checks.Config, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one <check name>=<true|false> is required")
	}
	cfg := checks.Config{}
	for _, arg := range args {
		i := strings.LastIndex(arg, "=")
		if i <= 0 {
			return nil, fmt.Errorf("invalid assignment %q, expected <check name>=<true|false>", arg)
		}
		name := strings.TrimSpace(arg[:i])
		required, err := strconv.ParseBool(strings.TrimSpace(arg[i+1:]))
		if err != nil {
			return nil, fmt.Errorf("invalid value for %q: %w", name, err)
		}
		cfg[name] = required
	}
	return cfg, nil
}

func renderChecks(cfg checks.Config) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Required checks"))
	b.WriteString("\n")
	for _, name := range cfg.Names() {
		if cfg.Required(name) {
			fmt.Fprintf(&b, "  %s %s\n", passStyle.Render("[x]"), name)
		} else {
			fmt.Fprintf(&b, "  %s %s\n", dimStyle.Render("[ ]"), dimStyle.Render(name))
		}
	}
	return b.String()
}
