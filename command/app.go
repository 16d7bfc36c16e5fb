package command

import (
	"time"

	"github.com/urfave/cli/v3"
)

const DefaultConfigurePath = "/etc/opt-deadline.yml"

func NewApp(cmd *Command) *cli.App {
	app := cli.NewApp()
	app.Name = "opt-deadline"
	app.Usage = "Deadline optimization job service"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "configure",
			Aliases:     []string{"config", "c"},
			Usage:       "The path to configure file (yaml, or toml by extension)",
			Value:       DefaultConfigurePath,
			DefaultText: DefaultConfigurePath,
		},
		&cli.StringFlag{
			Name:    "address",
			Aliases: []string{"a"},
			Usage:   "The server to talk to, overriding remote.address",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		return cmd.Init(ctx.String("configure"), ctx.String("address"))
	}
	algorithmFlags := []cli.Flag{
		&cli.BoolFlag{
			Name:    "algorithm1",
			Aliases: []string{"1"},
			Usage:   "Run the first algorithm variant",
		},
		&cli.BoolFlag{
			Name:    "algorithm2",
			Aliases: []string{"2"},
			Usage:   "Run the second algorithm variant",
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:    "serve",
			Aliases: []string{"s"},
			Usage:   "Start the opt-deadline service",
			Action:  cmd.HandleServe,
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:        "drain-timeout",
					Usage:       "How long to wait for queued sessions on shutdown",
					Value:       30 * time.Minute,
					DefaultText: "30m",
				},
			},
		},
		{
			Name:      "run",
			Usage:     "Start a session (both variants unless one is selected)",
			ArgsUsage: "CONFIGURATION DEADLINE",
			Action:    cmd.HandleRun,
			Flags:     algorithmFlags,
		},
		{
			Name:      "status",
			Usage:     "Show the status of a session",
			ArgsUsage: "SESSION_ID",
			Action:    cmd.HandleStatus,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:    "watch",
					Aliases: []string{"w"},
					Usage:   "Follow the session until it is done",
				},
			},
		},
		{
			Name:   "list",
			Usage:  "List sessions, newest first",
			Action: cmd.HandleList,
		},
		{
			Name:   "configurations",
			Usage:  "List stored configuration names",
			Action: cmd.HandleListConfigurations,
		},
		{
			Name:      "show-configuration",
			Usage:     "Print a stored configuration",
			ArgsUsage: "NAME",
			Action:    cmd.HandleShowConfiguration,
		},
		{
			Name:      "save-configuration",
			Usage:     "Store a configuration file",
			ArgsUsage: "FILE",
			Action:    cmd.HandleSaveConfiguration,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "name",
					Usage: "Store under this name instead of the header name",
				},
			},
		},
		{
			Name:   "files",
			Usage:  "List the application file pool",
			Action: cmd.HandleFiles,
		},
		{
			Name:      "import",
			Usage:     "Import a benchmark archive into the pool",
			ArgsUsage: "ARCHIVE",
			Action:    cmd.HandleImport,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "local",
					Usage: "Import into the configured pool without a server; ARCHIVE may be a directory",
				},
			},
		},
		{
			Name:      "convert",
			Usage:     "Rewrite the lua scripts of a folder to use @@DIRPATH@@ references",
			ArgsUsage: "SOURCE DESTINATION",
			Action:    cmd.HandleConvert,
		},
		{
			Name:      "settings",
			Usage:     "Show or change the server path settings",
			ArgsUsage: "[KEY=VALUE...]",
			Action:    cmd.HandleSettings,
		},
		{
			Name:      "render-script",
			Usage:     "Fill the placeholders of a pool script",
			ArgsUsage: "SCRIPT NODES",
			Action:    cmd.HandleRenderScript,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "dir-path",
					Usage: "Value of @@DIRPATH@@",
				},
			},
		},
	}
	return app
}
