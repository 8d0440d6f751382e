package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"parts-tracker/internal/repositories"
	"parts-tracker/internal/services"
	"parts-tracker/pkg/database/migrations"
	"parts-tracker/pkg/keylock"
	"parts-tracker/seeders"
)

// NewSeedCommand loads demo parts into the configured database.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "seed",
		Short:         "Insert demo parts covering every workflow category",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			ctx := cmd.Context()
			logger := rootOpts.logger()

			_, db, err := rootOpts.openDB(ctx)
			if err != nil {
				return out.Fail(err)
			}
			defer db.Close()

			m, err := migrations.New(db.DB, db.Dialect, logger)
			if err != nil {
				return out.Fail(err)
			}
			if err := m.Up(ctx); err != nil {
				return out.Fail(err)
			}

			repo := repositories.NewPartRepository(db, logger)
			base := services.NewBaseService(repo, repositories.NewTxManager(db.DB), keylock.New(), nil, nil, logger)
			// Seeding only creates and moves parts, so no file storage is needed.
			parts := services.NewPartService(base, nil, 0)
			wf := services.NewPartWorkflowService(base)

			res, err := seeders.SeedDemoParts(ctx, parts, wf, logger)
			if err != nil {
				return out.Fail(err)
			}
			out.VerboseLog("seeded %d parts", res.Created)
			return out.Success(res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "created %d, skipped %d\n", res.Created, res.Skipped)
				return err
			})
		},
	}
}
