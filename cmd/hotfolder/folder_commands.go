package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Hotfolder/internal/permission"
	"github.com/Ning0612/Hotfolder/internal/service"
)

func newFolderCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newPickCommand(ctx),
		newGrantCommand(ctx),
		newRevokeCommand(ctx),
	}
}

func newPickCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pick <folder>",
		Short: "Choose the folder to watch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			svc, err := service.NewFolderService(cfg, nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			h, err := svc.Pick(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (%s access)\n", h.Path, h.Mode)
			return nil
		},
	}
}

func newGrantCommand(ctx *commandContext) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant access to the picked folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var prompter permission.Prompter = permission.NewTerminalPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			if yes {
				prompter = permission.Gesture
			}

			svc, err := service.NewFolderService(cfg, prompter)
			if err != nil {
				return err
			}
			defer svc.Close()

			ok, err := svc.Grant(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("access was not granted")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Access granted")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Grant without asking")
	return cmd
}

func newRevokeCommand(ctx *commandContext) *cobra.Command {
	var forget bool

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke access to the picked folder",
		Long:  "Revoke access to the picked folder. A running watcher stops polling on its next tick.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			svc, err := service.NewFolderService(cfg, nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			if forget {
				if err := svc.Forget(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Folder forgotten")
				return nil
			}
			if err := svc.Revoke(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Access revoked")
			return nil
		},
	}

	cmd.Flags().BoolVar(&forget, "forget", false, "Also forget which folder was picked")
	return cmd
}
