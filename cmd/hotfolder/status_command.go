package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Hotfolder/internal/progress"
	"github.com/Ning0612/Hotfolder/internal/service"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the picked folder, its access and the watcher process",
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

			st, err := svc.Status(cmd.Context())
			if err != nil {
				return err
			}
			renderStatus(cmd.OutOrStdout(), st, cfg.Destination.Type)
			return nil
		},
	}
}

func renderStatus(out io.Writer, st *service.FolderStatus, destination string) {
	if st.Handle == nil {
		fmt.Fprintln(out, "Folder:      none (run `hotfolder pick <folder>`)")
	} else {
		fmt.Fprintf(out, "Folder:      %s (%s)\n", st.Handle.Path, st.Handle.Mode)
	}

	if st.Decision.Granted {
		fmt.Fprintln(out, "Access:      granted")
	} else {
		fmt.Fprintf(out, "Access:      denied (%s)\n", st.Decision.Reason)
	}

	fmt.Fprintf(out, "Destination: %s\n", destination)

	switch {
	case st.Running:
		fmt.Fprintf(out, "Watcher:     running (PID %d)\n", st.PID)
	case st.Lock != nil:
		fmt.Fprintf(out, "Watcher:     locked by PID %d on %s\n", st.Lock.PID, st.Lock.Hostname)
	default:
		fmt.Fprintln(out, "Watcher:     not running")
	}

	fmt.Fprintf(out, "Uploads:     %d succeeded, %d failed, %s sent\n",
		st.Stats.Succeeded, st.Stats.Failed, progress.FormatBytes(st.Stats.Bytes))
	if !st.Stats.LastAt.IsZero() {
		fmt.Fprintf(out, "Last upload: %s\n", st.Stats.LastAt.Local().Format(time.DateTime))
	}
}
