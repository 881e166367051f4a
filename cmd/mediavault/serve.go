package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"mediavault/config"
	"mediavault/routes"
	"mediavault/utils"
)

const shutdownTimeout = 10 * time.Second

var ServeCmd = cli.Command{
	Name:        "serve",
	Description: "Run the HTTP server, the event relay and the periodic sync",
	Action: func(ctx context.Context, c *cli.Command) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		config.LogConfig(cfg)
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	container, cleanup, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := container.Filesystem.CheckRoot(); err != nil {
		utils.LogWarning("Storage root %s is not available yet: %v", cfg.StorageRoot, err)
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes.NewRouter(container),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		utils.LogInfo("Starting mediavault server on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return container.Notifications.Run(ctx)
	})

	g.Go(func() error {
		return container.SyncRunner.Start(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		utils.LogInfo("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
