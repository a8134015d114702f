package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Hotfolder/internal/daemon"
	"github.com/Ning0612/Hotfolder/internal/permission"
	"github.com/Ning0612/Hotfolder/internal/service"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var noConsole bool
	var drain time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the picked folder and upload stable files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			interactive := !noConsole && isTerminal(os.Stdin)

			// Without a console nobody can press Enter, so Resume never prompts
			var prompter permission.Prompter
			if interactive {
				prompter = permission.Gesture
			}

			svc, err := service.NewWatchService(signalCtx, cfg, prompter)
			if err != nil {
				return err
			}
			defer svc.Close()
			if drain > 0 {
				svc.DrainTimeout = drain
			}

			if interactive {
				stopConsole := startConsole(signalCtx, svc.Watcher(), os.Stdin, cmd.OutOrStdout(), isTerminal(os.Stdout))
				defer stopConsole()
			}

			return svc.Run(signalCtx)
		},
	}

	cmd.Flags().BoolVar(&noConsole, "no-console", false, "Do not read Enter from the terminal or print a status line")
	cmd.Flags().DurationVar(&drain, "drain-timeout", service.DefaultDrainTimeout, "How long to wait for running uploads on shutdown")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration
	var forceUnlock bool

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			if forceUnlock {
				if err := service.ForceUnlock(cfg); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Lock cleared")
				return nil
			}

			stopCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			pid, err := service.StopWatcher(stopCtx, cfg)
			if errors.Is(err, daemon.ErrNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "Watcher is not running")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watcher stopped (PID %d)\n", pid)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "How long to wait for the watcher to exit")
	cmd.Flags().BoolVar(&forceUnlock, "force-unlock", false, "Remove a lock left behind by a watcher that is gone")
	return cmd
}
