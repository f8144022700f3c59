package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Saul-Punybz/regionwatch/internal/monitor"
)

func backupCmd() *cobra.Command {
	var (
		keep int
		list bool
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Upload a database snapshot to object storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.BackupStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if list {
				backups, err := store.ListBackups(ctx)
				if err != nil {
					return err
				}
				for _, b := range backups {
					fmt.Fprintf(out, "%s  %10d  %s\n", b.LastModified.Format("2006-01-02 15:04:05"), b.Size, b.Key)
				}
				return nil
			}

			if keep <= 0 {
				keep = a.Config.Backup.Keep
			}
			key, err := monitor.Backup(ctx, a.SnapshotSources(), store, a.Logs, keep)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "stored", key)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 0, "number of backups to retain (default BACKUP_KEEP)")
	cmd.Flags().BoolVar(&list, "list", false, "list stored backups instead of creating one")
	return cmd
}

func cleanupCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old results and expired dashboard logins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if days <= 0 {
				days = a.Config.Monitor.RetentionDays
			}
			results, err := monitor.CleanupOldResults(ctx, a.Results, a.Logs, days)
			if err != nil {
				return err
			}
			logins, err := monitor.PruneAuthSessions(ctx, a.AuthSessions)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d results older than %d days and %d expired logins\n", results, days, logins)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "delete results older than N days (default RESULT_RETENTION_DAYS)")
	return cmd
}
