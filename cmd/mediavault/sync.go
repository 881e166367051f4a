package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"mediavault/jobs"
)

var SyncCmd = cli.Command{
	Name:        "sync",
	Description: "Reconcile folder records with the storage root once and exit",
	Action: func(ctx context.Context, c *cli.Command) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}

		container, cleanup, err := bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := container.SyncRunner.Run(ctx, jobs.SystemIdentity)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		fmt.Printf("added=%d updated=%d removed=%d\n", result.Added, result.Updated, result.Removed)
		return nil
	},
}
