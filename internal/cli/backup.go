package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"parts-tracker/pkg/database"
)

type backupResult struct {
	Path    string   `json:"path"`
	Removed []string `json:"removed,omitempty"`
}

// NewBackupCommand creates a SQLite backup and prunes old ones.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dir       string
		retention int
	)
	cmd := &cobra.Command{
		Use:           "backup",
		Short:         "Back up the SQLite database and remove expired backups",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			cfg, db, err := rootOpts.openDB(cmd.Context())
			if err != nil {
				return out.Fail(err)
			}
			defer db.Close()

			if dir == "" {
				dir = cfg.Backup.Dir
			}
			if retention <= 0 {
				retention = cfg.Backup.RetentionDays
			}

			now := time.Now()
			path, err := database.Backup(cmd.Context(), db, dir, now)
			if err != nil {
				return out.Fail(WrapExitError(ExitFailure, "backup failed", err))
			}
			removed, err := database.CleanupBackups(dir, retention, now)
			if err != nil {
				out.VerboseLog("cleanup failed: %v", err)
			}

			result := backupResult{Path: path, Removed: removed}
			return out.Success(result, func(w io.Writer) error {
				fmt.Fprintf(w, "backup written to %s\n", path)
				for _, r := range removed {
					fmt.Fprintf(w, "removed %s\n", r)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "backup directory (default BACKUP_DIR)")
	cmd.Flags().IntVar(&retention, "retention-days", 0, "delete backups older than this (default BACKUP_RETENTION_DAYS)")
	return cmd
}
