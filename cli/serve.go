package cli

// This file contains the serve command, which wires the check store, the
// history recorder and the supervisor into the HTTP server.

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/flashjig/flashjig/checks"
	"github.com/flashjig/flashjig/cli/jig"
	"github.com/flashjig/flashjig/cli/ssh"
	"github.com/flashjig/flashjig/config"
	"github.com/flashjig/flashjig/history"
	"github.com/flashjig/flashjig/server"
	"github.com/flashjig/flashjig/supervisor"
)

func (a *App) serve(ctx *cli.Context) error {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}

	store, err := checks.Open(cfg.CheckDBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	spec, cleanup, err := a.commandSpec(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	recorder := history.NewRecorder(a.logger, cfg.HistoryDir(), cfg.Boards, store,
		history.WithRemoteHost(cfg.RemoteHost))

	sup := supervisor.New(a.logger, spec,
		supervisor.WithObserver(recorder),
		supervisor.WithQueueSize(cfg.QueueSize),
		supervisor.WithKillTimeout(cfg.KillTimeout),
	)

	sigCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info().
		Str("script", cfg.Script).
		Str("python", cfg.Python).
		Str("dataDir", config.ExpandHome(cfg.DataDir)).
		Msg("Supervising jig script")

	return server.New(a.logger, sup, store).Serve(sigCtx, cfg.Addr)
}

// commandSpec builds the supervisor command for a local or remote jig.
func (a *App) commandSpec(cfg config.Config) (supervisor.CommandSpec, func(), error) {
	opts := jig.Options{
		Interpreter: cfg.Python,
		Script:      cfg.Script,
		Args:        cfg.ScriptArgs,
	}

	if cfg.RemoteHost == "" {
		opts.Script = config.ExpandHome(opts.Script)
		args := jig.BuildArgs(opts)
		return supervisor.CommandSpec{
			Path: args[0],
			Args: args[1:],
			Env:  jig.Env(),
			Check: func(ctx context.Context) error {
				return jig.CheckLocal(opts)
			},
		}, func() {}, nil
	}

	client, err := ssh.New(a.logger, cfg.RemoteHost, sshOptions(cfg)...)
	if err != nil {
		return supervisor.CommandSpec{}, nil, err
	}

	a.logger.Info().Str("host", client.Host()).Msg("Running jig script over SSH")

	return supervisor.CommandSpec{
		Path: "ssh",
		Args: client.CommandArgs(jig.BuildCommand(opts)),
		Check: func(ctx context.Context) error {
			if _, err := client.RunCommand(ctx, jig.CheckRemoteCommand(opts)); err != nil {
				return fmt.Errorf("jig script %s not available on %s: %w", opts.Script, client.Host(), err)
			}
			return nil
		},
	}, client.Close, nil
}

func sshOptions(cfg config.Config) []ssh.SSHOption {
	var opts []ssh.SSHOption
	if cfg.SSHIdentity != "" {
		opts = append(opts, ssh.WithIdentityFile(config.ExpandHome(cfg.SSHIdentity)))
	}
	if cfg.SSHKnownHosts != "" {
		opts = append(opts, ssh.WithKnownHostsFile(config.ExpandHome(cfg.SSHKnownHosts)))
	}
	if len(cfg.SSHOptions) > 0 {
		opts = append(opts, ssh.WithExtraOptions(cfg.SSHOptions...))
	}
	return opts
}
