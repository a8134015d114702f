package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Hotfolder/internal/progress"
	"github.com/Ning0612/Hotfolder/internal/service"
	"github.com/Ning0612/Hotfolder/internal/state"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var file string
	var pruneAge time.Duration

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent uploads",
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

			if pruneAge > 0 {
				n, err := svc.PruneHistory(pruneAge)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d record(s)\n", n)
				return nil
			}

			records, err := svc.History(file, limit)
			if err != nil {
				return err
			}
			if file != "" {
				last, err := svc.LastSuccess(file)
				if err != nil {
					return err
				}
				if last == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s has never been uploaded\n", file)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Last upload of %s: %s (%s)\n",
						file, last.StartTime.Local().Format(time.DateTime), last.RemoteID)
				}
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No uploads recorded")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderHistory(records))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")
	cmd.Flags().StringVar(&file, "file", "", "Only show uploads of this file name")
	cmd.Flags().DurationVar(&pruneAge, "prune", 0, "Delete records older than this instead of listing")
	return cmd
}

func renderHistory(records []state.UploadRecord) string {
	headers := []string{"Time", "File", "Status", "Size", "Destination", "Result", "Deleted"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		result := r.RemoteID
		if r.Status == state.StatusFailed {
			result = truncate(r.Error, 48)
		}
		rows = append(rows, []string{
			r.StartTime.Local().Format(time.DateTime),
			r.Filename,
			r.Status,
			progress.FormatBytes(r.Size),
			r.Destination,
			result,
			yesNo(r.Deleted),
		})
	}
	return renderTable(headers, rows, aligns)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
