package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Ning0612/Hotfolder/internal/domain"
)

// EnvPrefix is the prefix for environment overrides, e.g. HOTFOLDER_WATCH_POLL_INTERVAL
const EnvPrefix = "HOTFOLDER"

// DefaultConfigPaths returns the default paths to search for config files
func DefaultConfigPaths() []string {
	paths := []string{
		".",
		"./configs",
	}

	// Add user config directory
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "hotfolder"))
	}

	// Add home directory
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "hotfolder"))
		paths = append(paths, filepath.Join(homeDir, ".hotfolder"))
	}

	return paths
}

// DefaultStateDir returns the directory used when state.dir is not set
func DefaultStateDir() string {
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "hotfolder")
	}
	return ".hotfolder"
}

// setDefaults registers every default on v
func setDefaults(v *viper.Viper) {
	v.SetDefault("watch.poll_interval", time.Second)
	v.SetDefault("watch.stability_window", 1500*time.Millisecond)
	v.SetDefault("watch.max_concurrent_uploads", 4)
	v.SetDefault("watch.notify", false)
	v.SetDefault("watch.delete_after_upload", true)

	v.SetDefault("retry.max_attempts", 0)
	v.SetDefault("retry.initial_wait", 5*time.Second)
	v.SetDefault("retry.max_wait", 5*time.Minute)
	v.SetDefault("retry.multiplier", 2.0)

	v.SetDefault("destination.type", DestinationWebhook)
	v.SetDefault("destination.webhook.url", "")
	v.SetDefault("destination.webhook.token", "")
	v.SetDefault("destination.webhook.timeout", 60*time.Second)
	v.SetDefault("destination.webhook.workstation", "")
	v.SetDefault("destination.gdrive.client_id", "")
	v.SetDefault("destination.gdrive.client_secret", "")
	v.SetDefault("destination.gdrive.token_path", "")
	v.SetDefault("destination.gdrive.folder", "/Hotfolder")
	v.SetDefault("destination.s3.region", "us-east-1")
	v.SetDefault("destination.s3.bucket", "")
	v.SetDefault("destination.s3.access_key", "")
	v.SetDefault("destination.s3.secret_key", "")

	v.SetDefault("state.dir", DefaultStateDir())

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.compress", true)

	v.SetDefault("metrics.listen", "")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads and parses a configuration file
// If path is empty, searches default locations for config.yaml.
// A missing file in the default locations is not an error: defaults and
// HOTFOLDER_* environment variables still apply.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		// Use specific file
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, domain.ErrConfigNotFound
		}
		v.SetConfigFile(path)
	} else {
		// Search default paths
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound) && path == "":
			// defaults only
		default:
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
		}
	}

	return decode(v)
}

// LoadFromString parses configuration from a YAML string
func LoadFromString(yamlContent string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	cfg.State.Dir = ExpandPath(cfg.State.Dir)
	if cfg.Log.File != "" {
		cfg.Log.File = ExpandPath(cfg.Log.File)
	}
	if cfg.Destination.GDrive.TokenPath != "" {
		cfg.Destination.GDrive.TokenPath = ExpandPath(cfg.Destination.GDrive.TokenPath)
	}

	// The destination section is validated when the destination is built
	if err := cfg.ValidateLocal(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
