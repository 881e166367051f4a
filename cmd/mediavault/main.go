package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"mediavault/utils"
)

const (
	ConfigFlag  = "config"
	EnvFileFlag = "env-file"
)

var App = cli.Command{
	Name:  "mediavault",
	Usage: "Permission-aware media gallery server",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     ConfigFlag,
			Category: "Configuration",
			OnlyOnce: true,
			Usage:    "Optional YAML configuration file",
		},
		&cli.BoolFlag{
			Name:     EnvFileFlag,
			Category: "Configuration",
			OnlyOnce: true,
			Usage:    "Load a .env file from the working directory or its parent",
			Value:    true,
		},
	},
	Commands: []*cli.Command{
		&ServeCmd,
		&SyncCmd,
		&TokenCmd,
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := App.Run(ctx, os.Args); err != nil {
		utils.LogFatal("mediavault", err)
	}
}
