package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/flashjig/flashjig/cli/jig"
	"github.com/flashjig/flashjig/config"
	"github.com/flashjig/flashjig/model"
)

const AppName = "flashjig"

const defaultServerURL = "http://localhost:3001"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Flash and test a bank of boards through the jig script",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}

	defaults := config.Defaults()

	app.cli.Commands = append(app.cli.Commands,
		&cli.Command{
			Name:   "serve",
			Usage:  "Run the HTTP server that supervises the jig script",
			Action: app.serve,
			Flags: []cli.Flag{
				configFlag(),
				&cli.StringFlag{
					Name:    "addr",
					Usage:   "Address to listen on",
					Value:   defaults.Addr,
					EnvVars: []string{"FLASHJIG_ADDR"},
				},
				jig.PythonFlag(defaults.Python),
				jig.ScriptFlag(defaults.Script),
				&cli.StringSliceFlag{
					Name:  "script-arg",
					Usage: "Argument passed to the jig script (can be specified multiple times)",
				},
				&cli.StringFlag{
					Name:    "remote-host",
					Usage:   "SSH host to run the jig script on",
					EnvVars: []string{"FLASHJIG_REMOTE_HOST"},
				},
				&cli.StringFlag{
					Name:  "ssh-identity",
					Usage: "SSH private key for --remote-host",
				},
				&cli.StringFlag{
					Name:  "ssh-known-hosts",
					Usage: "Known hosts file for --remote-host",
				},
				&cli.StringSliceFlag{
					Name:  "ssh-option",
					Usage: "Extra ssh -o option, e.g. ConnectTimeout=5 (can be specified multiple times)",
				},
				&cli.DurationFlag{
					Name:  "kill-timeout",
					Usage: "How long to wait for a killed jig script to exit",
					Value: defaults.KillTimeout,
				},
				boardsFlag(),
				&cli.IntFlag{
					Name:  "queue-size",
					Usage: "Raw output lines buffered per client before the oldest are dropped",
					Value: defaults.QueueSize,
				},
				dataDirFlag(),
			},
		},
		&cli.Command{
			Name:   "run",
			Usage:  "Start a flash run on the server and follow its progress",
			Action: app.run,
			Flags: []cli.Flag{
				serverFlag(),
				boardsFlag(),
				&cli.BoolFlag{
					Name:    "quiet",
					Aliases: []string{"q"},
					Usage:   "Do not echo the jig script output",
				},
			},
		},
		&cli.Command{
			Name:   "kill",
			Usage:  "Kill the active flash run",
			Action: app.kill,
			Flags:  []cli.Flag{serverFlag(), timeoutFlag()},
		},
		&cli.Command{
			Name:   "status",
			Usage:  "Show whether a flash run is in progress",
			Action: app.status,
			Flags:  []cli.Flag{serverFlag(), timeoutFlag()},
		},
		&cli.Command{
			Name:  "checks",
			Usage: "Show or change which checks are required for a board to pass",
			Flags: []cli.Flag{serverFlag(), timeoutFlag()},
			Subcommands: []*cli.Command{
				{
					Name:   "list",
					Usage:  "List the required-check selection",
					Action: app.checksList,
				},
				{
					Name:      "toggle",
					Usage:     "Toggle whether a check is required",
					ArgsUsage: "<check name>",
					Action:    app.checksToggle,
				},
				{
					Name:      "set",
					Usage:     "Set whether checks are required",
					ArgsUsage: "<check name>=<true|false>...",
					Action:    app.checksSet,
					Flags: []cli.Flag{
						&cli.BoolFlag{
							Name:  "replace",
							Usage: "Replace the whole selection instead of updating the named checks",
						},
					},
				},
			},
			Action: app.checksList,
		},
		&cli.Command{
			Name:   "list",
			Usage:  "List previous flash runs",
			Action: app.list,
			Flags: []cli.Flag{
				configFlag(),
				dataDirFlag(),
				&cli.IntFlag{
					Name:    "limit",
					Aliases: []string{"n"},
					Usage:   "Maximum number of runs to show",
					Value:   20,
				},
			},
		},
		&cli.Command{
			Name:      "view",
			Usage:     "Show the boards and output of a previous flash run",
			ArgsUsage: "[ID|INDEX]",
			Description: `Show a recorded run.

   ID|INDEX can be:
     0, -1, -2   Index from newest (0 = newest, -1 = the one before, ...)
     <hex-id>    Run matching the hex ID prefix

   Examples:
     flashjig view            # Newest run
     flashjig view -1         # Run before the newest
     flashjig view 3f9a1c     # Run with ID starting with 3f9a1c`,
			Action: app.view,
			Flags: []cli.Flag{
				configFlag(),
				dataDirFlag(),
				&cli.BoolFlag{
					Name:  "output",
					Usage: "Print the recorded jig script output",
				},
			},
		},
		&cli.Command{
			Name:   "init",
			Usage:  "Write the effective configuration to the --config file",
			Action: app.initConfig,
			Flags: []cli.Flag{
				configFlag(),
				jig.PythonFlag(defaults.Python),
				jig.ScriptFlag(defaults.Script),
				&cli.StringFlag{
					Name:  "remote-host",
					Usage: "SSH host to run the jig script on",
				},
				boardsFlag(),
				dataDirFlag(),
				&cli.BoolFlag{
					Name:  "force",
					Usage: "Overwrite an existing file",
				},
			},
		},
		&cli.Command{
			Name:   "ports",
			Usage:  "List serial ports, to check the jig is attached",
			Action: app.ports,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "usb",
					Usage: "Only show USB serial ports",
				},
			},
		},
	)
	return app
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && commit != "" {
		if len(commit) > 8 {
			commit = commit[:8]
		}
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML configuration file",
		Value:   config.DefaultPath(),
		EnvVars: []string{"FLASHJIG_CONFIG"},
	}
}

func serverFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "URL of the flashjig server",
		Value:   defaultServerURL,
		EnvVars: []string{"FLASHJIG_SERVER"},
	}
}

func timeoutFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Request timeout (0 waits indefinitely)",
		Value: 10 * time.Second,
	}
}

func boardsFlag() cli.Flag {
	return &cli.IntFlag{
		Name:    "boards",
		Usage:   "Number of boards on the jig",
		Value:   model.DefaultBoardCount,
		EnvVars: []string{"FLASHJIG_BOARDS"},
	}
}

func dataDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "data-dir",
		Usage:   "Directory for the check database and run history",
		EnvVars: []string{"FLASHJIG_DATA_DIR"},
	}
}

// loadConfig reads the configuration file and applies explicitly set flags
// on top of it.
func (a *App) loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return cfg, err
	}

	var flags config.Config
	if ctx.IsSet("addr") {
		flags.Addr = ctx.String("addr")
	}
	if ctx.IsSet("python") {
		flags.Python = ctx.String("python")
	}
	if ctx.IsSet("script") {
		flags.Script = ctx.String("script")
	}
	if ctx.IsSet("script-arg") {
		flags.ScriptArgs = ctx.StringSlice("script-arg")
	}
	if ctx.IsSet("remote-host") {
		flags.RemoteHost = ctx.String("remote-host")
	}
	if ctx.IsSet("ssh-identity") {
		flags.SSHIdentity = ctx.String("ssh-identity")
	}
	if ctx.IsSet("ssh-known-hosts") {
		flags.SSHKnownHosts = ctx.String("ssh-known-hosts")
	}
	if ctx.IsSet("ssh-option") {
		flags.SSHOptions = ctx.StringSlice("ssh-option")
	}
	if ctx.IsSet("kill-timeout") {
		flags.KillTimeout = ctx.Duration("kill-timeout")
	}
	if ctx.IsSet("boards") {
		flags.Boards = ctx.Int("boards")
	}
	if ctx.IsSet("queue-size") {
		flags.QueueSize = ctx.Int("queue-size")
	}
	if ctx.IsSet("data-dir") {
		flags.DataDir = ctx.String("data-dir")
	}
	cfg.Merge(flags)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	a.logger.Debug().
		Str("config", ctx.String("config")).
		Str("script", cfg.Script).
		Str("remoteHost", cfg.RemoteHost).
		Int("boards", cfg.Boards).
		Msg("Loaded configuration")

	return cfg, nil
}
