package config

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/Ning0612/Hotfolder/internal/domain"
)

// Destination types
const (
	DestinationWebhook = "webhook"
	DestinationGDrive  = "gdrive"
	DestinationS3      = "s3"
)

// Config represents the complete configuration for hotfolder
type Config struct {
	// Watch controls the poll loop
	Watch WatchConfig `mapstructure:"watch"`

	// Retry controls re-uploading files whose upload failed
	Retry RetryConfig `mapstructure:"retry"`

	// Destination is where stable files are uploaded
	Destination DestinationConfig `mapstructure:"destination"`

	// State holds the folder grant and upload history
	State StateConfig `mapstructure:"state"`

	Log LogConfig `mapstructure:"log"`

	Metrics MetricsConfig `mapstructure:"metrics"`
}

// WatchConfig controls polling and stability detection
type WatchConfig struct {
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	StabilityWindow      time.Duration `mapstructure:"stability_window"`
	MaxConcurrentUploads int           `mapstructure:"max_concurrent_uploads"`

	// Ignore holds glob patterns excluded in addition to dot-files
	Ignore []string `mapstructure:"ignore"`

	// Notify wakes the poll loop early on filesystem events
	Notify bool `mapstructure:"notify"`

	DeleteAfterUpload bool `mapstructure:"delete_after_upload"`
}

// RetryConfig is the backoff policy for failed uploads.
// MaxAttempts 0 means a failed file is not retried until it changes.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// DestinationConfig selects and configures the upload target
type DestinationConfig struct {
	Type    string        `mapstructure:"type"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	GDrive  GDriveConfig  `mapstructure:"gdrive"`
	S3      S3Config      `mapstructure:"s3"`
}

// WebhookConfig configures the multipart HTTP destination
type WebhookConfig struct {
	URL         string        `mapstructure:"url"`
	Token       string        `mapstructure:"token"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Workstation string        `mapstructure:"workstation"`
}

// GDriveConfig configures the Google Drive destination
type GDriveConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenPath    string `mapstructure:"token_path"`
	Folder       string `mapstructure:"folder"`
}

// S3Config configures the S3-compatible destination
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// StateConfig locates the sqlite state database
type StateConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig configures the global logger
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig configures the optional Prometheus listener
type MetricsConfig struct {
	// Listen is a host:port; empty disables the endpoint
	Listen string `mapstructure:"listen"`
}

// Validate checks if the configuration is complete and consistent
func (c *Config) Validate() error {
	if err := c.ValidateLocal(); err != nil {
		return err
	}
	return c.Destination.Validate()
}

// ValidateLocal checks everything except the destination section, which
// commands that never upload (pick, grant, history) do not need
func (c *Config) ValidateLocal() error {
	if c.Watch.PollInterval <= 0 {
		return fmt.Errorf("%w: watch.poll_interval must be positive", domain.ErrConfigInvalid)
	}
	if c.Watch.StabilityWindow < 0 {
		return fmt.Errorf("%w: watch.stability_window cannot be negative", domain.ErrConfigInvalid)
	}
	if c.Watch.MaxConcurrentUploads < 1 {
		return fmt.Errorf("%w: watch.max_concurrent_uploads must be at least 1", domain.ErrConfigInvalid)
	}
	for _, p := range c.Watch.Ignore {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("%w: bad ignore pattern %q: %v", domain.ErrConfigInvalid, p, err)
		}
	}

	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("%w: retry.max_attempts cannot be negative", domain.ErrConfigInvalid)
	}
	if c.Retry.MaxAttempts > 0 {
		if c.Retry.InitialWait <= 0 {
			return fmt.Errorf("%w: retry.initial_wait must be positive", domain.ErrConfigInvalid)
		}
		if c.Retry.Multiplier < 1 {
			return fmt.Errorf("%w: retry.multiplier must be >= 1", domain.ErrConfigInvalid)
		}
	}

	if c.State.Dir == "" {
		return fmt.Errorf("%w: state.dir cannot be empty", domain.ErrConfigInvalid)
	}

	return nil
}

// Validate checks the selected destination has what it needs
func (d DestinationConfig) Validate() error {
	switch d.Type {
	case DestinationWebhook:
		if d.Webhook.URL == "" {
			return fmt.Errorf("%w: destination.webhook.url is required", domain.ErrConfigInvalid)
		}
		u, err := url.Parse(d.Webhook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: destination.webhook.url must be an http(s) URL", domain.ErrConfigInvalid)
		}
		if d.Webhook.Timeout < 0 {
			return fmt.Errorf("%w: destination.webhook.timeout cannot be negative", domain.ErrConfigInvalid)
		}
	case DestinationGDrive:
		if d.GDrive.ClientID == "" || d.GDrive.ClientSecret == "" {
			return fmt.Errorf("%w: gdrive destination requires client_id and client_secret", domain.ErrConfigInvalid)
		}
	case DestinationS3:
		if d.S3.Bucket == "" {
			return fmt.Errorf("%w: destination.s3.bucket is required", domain.ErrConfigInvalid)
		}
		if d.S3.Region == "" {
			return fmt.Errorf("%w: destination.s3.region is required", domain.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownDestination, d.Type)
	}
	return nil
}

// WorkstationID returns the configured workstation id, falling back to the hostname
func (w WebhookConfig) WorkstationID() string {
	if w.Workstation != "" {
		return w.Workstation
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "unknown"
}

// DatabasePath returns the sqlite file inside the state directory
func (c *Config) DatabasePath() string {
	return filepath.Join(c.State.Dir, "hotfolder.db")
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	// Expand ~ to home directory
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	// Expand environment variables
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
