package ingest

import "time"

// Config controls how the ingest service detects files to
// automatically probe and catalog.
type Config struct {
	// The service uses a directory watcher, but a 'force' sync runs
	// on this interval to protect against the watcher failing.
	ForceSyncSeconds int `yaml:"force_sync_seconds" env:"INGEST_FORCE_SYNC_SECONDS" env-default:"3600"`

	// The directory monitored for new media files.
	IngestPath string `yaml:"path" env:"INGEST_PATH" validate:"required"`

	// A newly detected file is likely an in-progress copy or
	// download. As we cannot know when it completes, we wait for its
	// modtime to be at least this far in the past before probing.
	RequiredModTimeAgeSeconds int `yaml:"modtime_threshold_seconds" env:"INGEST_MODTIME_THRESHOLD_SECONDS" env-default:"120"`

	// The number of workers probing discovered files concurrently.
	IngestionParallelism int `yaml:"parallelism" env:"INGEST_PARALLELISM" env-default:"2"`
}

func (config *Config) RequiredModTimeAgeDuration() time.Duration {
	return time.Duration(config.RequiredModTimeAgeSeconds) * time.Second
}
