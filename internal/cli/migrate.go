package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"parts-tracker/pkg/database/migrations"
)

// NewMigrateCommand creates the migrate command group.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect schema migrations",
	}
	cmd.AddCommand(newMigrateStepCommand(rootOpts, "up", "Apply all pending migrations"))
	cmd.AddCommand(newMigrateStepCommand(rootOpts, "down", "Roll back the most recent migration"))
	cmd.AddCommand(newMigrateStatusCommand(rootOpts))
	return cmd
}

func newMigrateStepCommand(rootOpts *RootOptions, direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:           direction,
		Short:         short,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			m, closeDB, err := openMigrator(cmd, rootOpts)
			if err != nil {
				return out.Fail(err)
			}
			defer closeDB()

			if direction == "up" {
				err = m.Up(cmd.Context())
			} else {
				err = m.Down(cmd.Context())
			}
			if err != nil {
				return out.Fail(err)
			}
			return printStatus(cmd, rootOpts, m)
		},
	}
}

func newMigrateStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "List migrations and whether they are applied",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeDB, err := openMigrator(cmd, rootOpts)
			if err != nil {
				return rootOpts.formatter(cmd).Fail(err)
			}
			defer closeDB()
			return printStatus(cmd, rootOpts, m)
		},
	}
}

func openMigrator(cmd *cobra.Command, rootOpts *RootOptions) (*migrations.Migrator, func(), error) {
	_, db, err := rootOpts.openDB(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	m, err := migrations.New(db.DB, db.Dialect, rootOpts.logger())
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return m, func() { db.Close() }, nil
}

func printStatus(cmd *cobra.Command, rootOpts *RootOptions, m *migrations.Migrator) error {
	out := rootOpts.formatter(cmd)
	statuses, err := m.Status(cmd.Context())
	if err != nil {
		return out.Fail(err)
	}
	return out.Success(statuses, func(w io.Writer) error {
		for _, s := range statuses {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			if _, err := fmt.Fprintf(w, "%05d  %-8s %s\n", s.Version, state, s.Path); err != nil {
				return err
			}
		}
		return nil
	})
}
