package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Hotfolder/internal/adapter/gdrive"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize upload destinations",
	}

	authCmd.AddCommand(&cobra.Command{
		Use:   "gdrive",
		Short: "Authorize uploads to Google Drive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			g := cfg.Destination.GDrive
			if g.ClientID == "" || g.ClientSecret == "" {
				return errors.New("destination.gdrive.client_id and client_secret must be set")
			}

			auth := gdrive.NewAuthenticator(g.ClientID, g.ClientSecret, g.TokenPath)
			_, err = auth.Authenticate(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
			return err
		},
	})

	return authCmd
}
