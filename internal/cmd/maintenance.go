package cmd

import (
	"errors"
	"fmt"

	"github.com/granito/portfolio/internal/service"
	"github.com/spf13/cobra"
)

func newCleanupCommand() *cobra.Command {
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove visitor events older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			days, _ := cmd.Flags().GetInt("days")
			if days <= 0 {
				days = a.Config.Visitors.RetentionDays
			}

			removed, err := a.Visitors.Cleanup(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d events older than %d days\n", removed, days)
			return nil
		},
	}
	cleanupCmd.Flags().Int("days", 0, "Retention in days (default visitors.retention_days)")
	return cleanupCmd
}

func newExportCommand() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the visitor log as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				out = a.Config.Visitors.ExportPath
			}

			count, err := a.Visitors.ExportCSV(cmd.Context(), out)
			if errors.Is(err, service.ErrNoVisitorEvents) {
				fmt.Fprintln(cmd.OutOrStdout(), "no visitor events to export")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d events to %s\n", count, out)
			return nil
		},
	}
	exportCmd.Flags().String("out", "", "Output CSV path (default visitors.export_path)")
	return exportCmd
}
