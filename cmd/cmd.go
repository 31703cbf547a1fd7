// submodule cmd contains command definitions
package main

import (
	"strings"

	"github.com/desertthunder/qsync/internal/formatter"
	"github.com/urfave/cli/v3"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func didFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "did",
		Aliases:  []string{"d"},
		Usage:    "Identity whose queue to use",
		Required: true,
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (" + strings.Join(formatter.Formats, ", ") + ")",
		Value:   formatter.FormatText,
	}
}

// setupCommand prepares local state
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and storage",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the config file if missing, open the queue store and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
		},
	}
}

// queueCommand reads and writes stored queues
func queueCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "queue",
		Aliases: []string{"q"},
		Usage:   "Read, write and follow playback queues",
		Commands: []*cli.Command{
			{
				Name:   "get",
				Usage:  "Print the stored queue (or the default when none is stored)",
				Flags:  []cli.Flag{configFlag(), didFlag(), formatFlag()},
				Action: r.QueueGet,
			},
			{
				Name:  "put",
				Usage: "Write a queue state document, optionally gated on a revision",
				Flags: []cli.Flag{
					configFlag(),
					didFlag(),
					&cli.StringFlag{
						Name:  "state",
						Usage: "State document as JSON",
					},
					&cli.StringFlag{
						Name:  "state-file",
						Usage: "Read the state document from a file",
					},
					&cli.IntFlag{
						Name:  "if-revision",
						Usage: "Only write if the stored revision matches",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output the written record as JSON",
					},
				},
				Action: r.QueuePut,
			},
			{
				Name:  "export",
				Usage: "Write the queue to a file",
				Flags: []cli.Flag{
					configFlag(),
					didFlag(),
					formatFlag(),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (defaults to {did}_queue.{ext})",
					},
				},
				Action: r.QueueExport,
			},
			{
				Name:   "watch",
				Usage:  "Follow a queue in an interactive terminal view",
				Flags:  []cli.Flag{configFlag(), didFlag()},
				Action: r.QueueWatch,
			},
		},
	}
}

// channelCommand inspects the notification side channel
func channelCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "channel",
		Usage: "Inspect the notification side channel",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Connect, probe once and optionally follow heartbeat ticks",
				Flags: []cli.Flag{
					configFlag(),
					&cli.IntFlag{
						Name:  "ticks",
						Usage: "Number of heartbeat ticks to report before exiting",
					},
				},
				Action: r.ChannelStatus,
			},
			{
				Name:   "listen",
				Usage:  "Print change events for an identity until interrupted",
				Flags:  []cli.Flag{configFlag(), didFlag()},
				Action: r.ChannelListen,
			},
		},
	}
}
