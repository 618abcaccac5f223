// Package entrypoint wires configuration, storage and the sync engine
// together and runs the long-lived process.
package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/okayu/mangasync/internal/config"
	"github.com/okayu/mangasync/internal/database"
	"github.com/okayu/mangasync/internal/database/categories"
	"github.com/okayu/mangasync/internal/database/library"
	"github.com/okayu/mangasync/internal/scheduler"
	"github.com/okayu/mangasync/internal/settingsstore"
	"github.com/okayu/mangasync/internal/snapshot"
	"github.com/okayu/mangasync/internal/storage"
	"github.com/okayu/mangasync/internal/storage/providers/dropbox"
	"github.com/okayu/mangasync/internal/storage/providers/s3"
	"github.com/okayu/mangasync/internal/storage/providers/selfhosted"
	"github.com/okayu/mangasync/internal/syncer"
	"github.com/okayu/mangasync/internal/syncserver"
	"github.com/okayu/mangasync/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// NewSyncService builds the full sync pipeline over an open database.
// The backend is chosen from the settings store, which falls back to
// environment configuration.
func NewSyncService(cfg *config.Config, db *database.Database, settings *settingsstore.SettingsStore) (*syncer.Service, error) {
	backend, err := NewBackend(cfg, settings)
	if err != nil {
		return nil, err
	}

	builder := snapshot.NewBuilder(
		library.NewRepository(db.DB),
		categories.NewRepository(db.DB),
	)
	applier := syncer.NewApplier(db)

	return syncer.NewService(builder, applier, backend, settings, cfg.Sync.NetworkTimeout), nil
}

// NewBackend selects the storage backend named in the sync settings.
func NewBackend(cfg *config.Config, settings *settingsstore.SettingsStore) (storage.Backend, error) {
	sync := settings.GetSyncConfig()

	switch sync.Backend {
	case "dropbox":
		if cfg.Dropbox.AccessToken == "" {
			return nil, fmt.Errorf("dropbox backend selected but DROPBOX_ACCESS_TOKEN is not set")
		}
		return dropbox.NewClient(cfg.Dropbox.AccessToken).WithRemotePath(cfg.Dropbox.RemotePath), nil

	case "s3":
		client, err := s3.NewClient(s3.Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			ObjectKey: cfg.S3.ObjectKey,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize s3 backend: %w", err)
		}
		return client, nil

	case "selfhosted":
		if sync.Host == "" {
			return nil, fmt.Errorf("selfhosted backend selected but SYNC_HOST is not set")
		}
		if sync.APIToken == "" {
			return nil, fmt.Errorf("selfhosted backend selected but SYNC_API_TOKEN is not set")
		}
		return selfhosted.NewClient(sync.Host, sync.APIToken), nil

	case "":
		return nil, fmt.Errorf("no sync backend configured, set SYNC_BACKEND to dropbox, s3 or selfhosted")

	default:
		return nil, fmt.Errorf("unknown sync backend %q", sync.Backend)
	}
}

// Serve runs the HTTP server until a termination signal arrives.
func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Call shutdown callback first (e.g., to stop task queue)
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

// Run starts the whole application: database, sync service, scheduler,
// task queue and, when enabled, the self-hosted sync server.
func Run(cfg *config.Config, version string) {
	log.Printf("Starting mangasync v%s", version)

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	settings := settingsstore.New(db)
	if cfg.Sync.DeviceName != "" {
		if err := settings.SetDeviceName(cfg.Sync.DeviceName); err != nil {
			log.Printf("WARNING: failed to persist device name: %v", err)
		}
	}

	// The sync service is optional: a server-only deployment has no
	// backend of its own.
	var service *syncer.Service
	if settings.GetSyncConfig().Backend != "" {
		service, err = NewSyncService(cfg, db, settings)
		if err != nil {
			log.Fatalf("Failed to initialize sync service: %v", err)
		}
	} else {
		log.Printf("No sync backend configured, running without a local sync client")
	}

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled && service != nil {
		taskCfg := tasks.DefaultConfig()
		taskCfg.Workers = cfg.Tasks.Workers
		taskCfg.ReleaseAfter = cfg.Tasks.ReleaseAfter
		taskCfg.CleanupInterval = cfg.Tasks.CleanupInterval

		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg)
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.Register(
			tasks.NewLibrarySyncQueue(service),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)

		// Catch up with remote changes made while this process was down.
		if settings.GetSyncConfig().Enabled {
			if _, err := taskClient.Add(tasks.LibrarySyncTask{Reason: "startup"}).Save(); err != nil {
				log.Printf("Failed to enqueue startup sync: %v", err)
			}
		}
	}

	// Start the cron scheduler when a sync service exists
	var syncScheduler *scheduler.SyncScheduler
	if service != nil {
		syncScheduler = scheduler.NewSyncScheduler(settings, service)
		if err := syncScheduler.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start sync scheduler: %v", err)
		}
	}

	onShutdown := func(ctx context.Context) {
		if syncScheduler != nil {
			syncScheduler.Stop()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	if cfg.Server.Enabled {
		server := syncserver.NewServer(db)
		Serve(server.NewRouter(), cfg, onShutdown)
		return
	}

	// No HTTP surface: block until a termination signal arrives.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Global.ShutdownTimeoutInSeconds)*time.Second)
	defer cancel()
	onShutdown(ctx)
	log.Println("Exiting")
}
