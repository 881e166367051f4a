package routes

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mediavault/config"
	"mediavault/controllers"
	"mediavault/jobs"
	"mediavault/middleware"
	"mediavault/services"
)

// ServiceContainer holds all services and dependencies
type ServiceContainer struct {
	Config            *config.Config
	Stores            *services.Stores
	Filesystem        *services.FilesystemService
	Notifications     *services.NotificationService
	PermissionService *services.PermissionService
	SyncService       *services.SyncService
	SyncRunner        *jobs.SyncRunner
	AccessService     *services.AccessService
	GrantService      *services.GrantService
	DirectoryService  *services.DirectoryService
	GalleryService    *services.GalleryService
	UploadService     *services.UploadService
	Mirror            services.Mirror
}

// NewServiceContainer wires every service on top of one set of stores and
// one notifier.
func NewServiceContainer(cfg *config.Config, stores *services.Stores, broker services.Broker, mirror services.Mirror) (*ServiceContainer, error) {
	fs, err := services.NewFilesystemService(cfg.StorageRoot)
	if err != nil {
		return nil, err
	}
	if mirror == nil {
		mirror = services.NoopMirror{}
	}

	notifications := services.NewNotificationService(broker, 0)
	permissionService := services.NewPermissionService(stores)
	syncService := services.NewSyncService(fs, stores, notifications, cfg.DefaultFolderPublic)

	return &ServiceContainer{
		Config:            cfg,
		Stores:            stores,
		Filesystem:        fs,
		Notifications:     notifications,
		PermissionService: permissionService,
		SyncService:       syncService,
		SyncRunner:        jobs.NewSyncRunner(syncService, cfg.SyncInterval),
		AccessService:     services.NewAccessService(stores, notifications, cfg.BulkChunkSize),
		GrantService:      services.NewGrantService(stores, notifications),
		DirectoryService:  services.NewDirectoryService(stores, notifications),
		GalleryService:    services.NewGalleryService(fs, permissionService, stores, notifications, mirror, cfg.DefaultFolderPublic),
		UploadService:     services.NewUploadService(fs, permissionService, stores, notifications, mirror, cfg.DefaultFolderPublic),
		Mirror:            mirror,
	}, nil
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(container *ServiceContainer) *gin.Engine {
	cfg := container.Config

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Env == "development" {
		router.Use(gin.Logger())
	}
	router.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	api := router.Group("/api")
	internal := router.Group("/internal")
	SetupRoutesWithContainer(api, internal, container)

	router.GET("/health", func(c *gin.Context) {
		status := "ok"
		if err := container.Filesystem.CheckRoot(); err != nil {
			status = "storage_unavailable"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":      status,
			"time":        time.Now().UTC(),
			"subscribers": container.Notifications.SubscriberCount(),
		})
	})

	return router
}

// SetupRoutesWithContainer configures all API routes using a service container
func SetupRoutesWithContainer(api, internal *gin.RouterGroup, container *ServiceContainer) {
	cfg := container.Config

	galleryController := controllers.NewGalleryController(container.GalleryService, container.PermissionService)
	uploadController := controllers.NewUploadController(container.UploadService)
	adminController := controllers.NewAdminController(container.SyncRunner, container.AccessService, container.GrantService, container.DirectoryService)
	eventController := controllers.NewEventController(container.Notifications)

	RegisterGalleryRoutes(api, cfg.JWTSecret, galleryController, uploadController)
	RegisterAdminRoutes(api, cfg.JWTSecret, adminController)
	RegisterEventRoutes(api, internal, cfg.JWTSecret, cfg.InternalToken, eventController)
}

// NewBroker picks the event transport named in the configuration.
func NewBroker(cfg *config.Config) (services.Broker, error) {
	switch cfg.EventBroker {
	case "local", "":
		return services.NewLocalBroker(), nil
	case "redis":
		return services.NewRedisBroker(cfg.RedisURL, cfg.RedisChannel), nil
	case "http":
		return services.NewHTTPBroker(cfg.NotifyURL, cfg.InternalToken), nil
	default:
		return nil, fmt.Errorf("unknown event broker %q", cfg.EventBroker)
	}
}

// NewMirror connects to B2 when credentials are configured.
func NewMirror(ctx context.Context, cfg *config.Config) (services.Mirror, error) {
	if !cfg.MirrorEnabled() {
		return services.NoopMirror{}, nil
	}
	return services.NewMirrorService(ctx, cfg.B2ApplicationKeyID, cfg.B2ApplicationKey, cfg.B2BucketName)
}
