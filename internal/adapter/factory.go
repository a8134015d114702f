package adapter

import (
	"context"
	"fmt"

	"github.com/Ning0612/Hotfolder/internal/adapter/gdrive"
	"github.com/Ning0612/Hotfolder/internal/adapter/s3"
	"github.com/Ning0612/Hotfolder/internal/adapter/webhook"
	"github.com/Ning0612/Hotfolder/internal/config"
	"github.com/Ning0612/Hotfolder/internal/domain"
)

// Compile-time interface checks
var (
	_ Destination = (*webhook.Client)(nil)
	_ Destination = (*gdrive.Destination)(nil)
	_ Destination = (*s3.Destination)(nil)
)

// NewDestination validates cfg and builds the selected destination
func NewDestination(ctx context.Context, cfg config.DestinationConfig) (Destination, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case config.DestinationWebhook:
		return webhook.New(webhook.Options{
			URL:     cfg.Webhook.URL,
			Token:   cfg.Webhook.Token,
			Timeout: cfg.Webhook.Timeout,
		})
	case config.DestinationGDrive:
		return gdrive.New(ctx, gdrive.Options{
			ClientID:     cfg.GDrive.ClientID,
			ClientSecret: cfg.GDrive.ClientSecret,
			TokenPath:    cfg.GDrive.TokenPath,
			Folder:       cfg.GDrive.Folder,
		})
	case config.DestinationS3:
		return s3.New(ctx, s3.Options{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
	}

	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownDestination, cfg.Type)
}
