package internal

import (
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"

	"github.com/mediabrowse/mediabrowse/internal/ingest"
)

const userDirSuffix = ".mediabrowse"

// DiskConfig mirrors the original deployment's disk locations: where
// the decoder binary lives, where accepted media files are placed,
// and the scratch directory for staged uploads and extraction
// targets.
type DiskConfig struct {
	FfmpegBinPath string `yaml:"ffmpeg_bin" env:"FFMPEG_BIN" env-default:"ffmpeg" validate:"required"`
	MediaDirPath  string `yaml:"media_dir" env:"MEDIA_DIR"`
	TempDirPath   string `yaml:"temp_dir" env:"TEMP_DIR"`
}

// MediaBrowseConfig is the user-supplied configuration, loaded from a
// YAML file and/or the environment.
type MediaBrowseConfig struct {
	Disk          DiskConfig    `yaml:"disk"`
	IngestService ingest.Config `yaml:"ingest"`
}

// Load populates the config from the YAML file at configPath (plus
// environment overrides), or from the environment alone when no path
// is given. Defaults for unset directories are derived beneath the
// user's home directory. The result is validated before returning.
func (config *MediaBrowseConfig) Load(configPath string) error {
	var err error
	if configPath != "" {
		err = cleanenv.ReadConfig(configPath, config)
	} else {
		err = cleanenv.ReadEnv(config)
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.applyDefaultDirs(); err != nil {
		return err
	}

	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("configuration is not valid: %w", err)
	}

	return nil
}

func (config *MediaBrowseConfig) applyDefaultDirs() error {
	home, err := homedir.Dir()
	if err != nil {
		return fmt.Errorf("failed to derive user home directory: %w", err)
	}

	if config.Disk.MediaDirPath == "" {
		config.Disk.MediaDirPath = filepath.Join(home, userDirSuffix, "media")
	}
	if config.Disk.TempDirPath == "" {
		config.Disk.TempDirPath = filepath.Join(home, userDirSuffix, "tmp")
	}
	if config.IngestService.IngestPath == "" {
		config.IngestService.IngestPath = filepath.Join(home, userDirSuffix, "ingest")
	}

	return nil
}
