package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mediavault/config"
	"mediavault/routes"
	"mediavault/services"
	"mediavault/utils"
)

func loadConfig(c *cli.Command) (*config.Config, error) {
	if c.Bool(EnvFileFlag) {
		config.LoadEnvFile()
	}
	cfg, err := config.LoadConfig(c.String(ConfigFlag))
	if err != nil {
		return nil, err
	}
	utils.InitLogger(cfg.LogLevel)
	return cfg, nil
}

// openStores connects the configured backend. The returned func releases it.
func openStores(ctx context.Context, cfg *config.Config) (*services.Stores, func(), error) {
	if cfg.StoreBackend == "memory" {
		utils.LogWarning("Using in-memory stores; folder records and permissions are lost on restart")
		return services.NewMemoryStores(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	closeFn := func() {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			utils.LogWarning("Failed to disconnect MongoDB: %v", err)
		}
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	utils.LogInfo("Connected to MongoDB successfully")

	db := client.Database(cfg.DatabaseName)
	if err := services.EnsureIndexes(connectCtx, db); err != nil {
		closeFn()
		return nil, nil, err
	}
	return services.NewMongoStores(db), closeFn, nil
}

// bootstrap builds the service container for any command that touches the
// stores. The returned func releases connections.
func bootstrap(ctx context.Context, cfg *config.Config) (*routes.ServiceContainer, func(), error) {
	stores, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	broker, err := routes.NewBroker(cfg)
	if err != nil {
		closeStores()
		return nil, nil, err
	}

	mirror, err := routes.NewMirror(ctx, cfg)
	if err != nil {
		closeStores()
		return nil, nil, fmt.Errorf("failed to initialize B2 mirror: %w", err)
	}

	container, err := routes.NewServiceContainer(cfg, stores, broker, mirror)
	if err != nil {
		closeStores()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	cleanup := func() {
		if closer, ok := broker.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				utils.LogWarning("Failed to close event broker: %v", err)
			}
		}
		closeStores()
	}
	return container, cleanup, nil
}
