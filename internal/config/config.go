package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Sync
		Dropbox
		S3
		SelfHosted
		Server
		Tasks
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	// Sync holds process-level sync tuning. Backend selection, the
	// schedule and the enabled flag live in the settings store, which
	// already resolves database > environment > default itself.
	Sync struct {
		NetworkTimeout time.Duration
		DeviceName     string
	}
	Dropbox struct {
		AccessToken string
		RemotePath  string
	}
	S3 struct {
		Endpoint  string
		Bucket    string
		ObjectKey string
		AccessKey string
		SecretKey string
		Region    string
		UseSSL    bool
	}
	SelfHosted struct {
		Host     string
		APIToken string
	}
	Server struct {
		Enabled bool
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8455)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)

	// Sync defaults
	v.SetDefault("sync_network_timeout", "60s")
	v.SetDefault("sync_device_name", "")

	// Backend defaults
	v.SetDefault("dropbox_access_token", "")
	v.SetDefault("dropbox_remote_path", "/library_snapshot.json")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_bucket", "mangasync")
	v.SetDefault("s3_object_key", "library_snapshot.json")
	v.SetDefault("s3_access_key", "")
	v.SetDefault("s3_secret_key", "")
	v.SetDefault("s3_region", "")
	v.SetDefault("s3_use_ssl", true)
	v.SetDefault("sync_host", "")
	v.SetDefault("sync_api_token", "")

	// Server defaults
	v.SetDefault("server_enabled", false)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 1)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Sync: Sync{
			NetworkTimeout: v.GetDuration("SYNC_NETWORK_TIMEOUT"),
			DeviceName:     v.GetString("SYNC_DEVICE_NAME"),
		},
		Dropbox: Dropbox{
			AccessToken: v.GetString("DROPBOX_ACCESS_TOKEN"),
			RemotePath:  v.GetString("DROPBOX_REMOTE_PATH"),
		},
		S3: S3{
			Endpoint:  v.GetString("S3_ENDPOINT"),
			Bucket:    v.GetString("S3_BUCKET"),
			ObjectKey: v.GetString("S3_OBJECT_KEY"),
			AccessKey: v.GetString("S3_ACCESS_KEY"),
			SecretKey: v.GetString("S3_SECRET_KEY"),
			Region:    v.GetString("S3_REGION"),
			UseSSL:    v.GetBool("S3_USE_SSL"),
		},
		SelfHosted: SelfHosted{
			Host:     v.GetString("SYNC_HOST"),
			APIToken: v.GetString("SYNC_API_TOKEN"),
		},
		Server: Server{
			Enabled: v.GetBool("SERVER_ENABLED"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
	}
}
