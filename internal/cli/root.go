package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"parts-tracker/pkg/config"
	"parts-tracker/pkg/database"
	applogger "parts-tracker/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile  string
	DatabaseURL string
	Format      string // "json" | "text"
	Verbose     bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the partsctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "partsctl",
		Short: "Administration tool for the parts tracker",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default $CONFIG_FILE or config.json)")
	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", "", "database url, overrides DATABASE_URL")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewHashKeyCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewWorkflowCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) logger() *zap.Logger {
	if o.Verbose {
		return applogger.NewLogger("debug", applogger.File{})
	}
	return zap.NewNop()
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "config not loaded", err)
	}
	if o.DatabaseURL != "" {
		cfg.Database.URL = o.DatabaseURL
	}
	return cfg, nil
}

// openDB opens the configured database without migrating it.
func (o *RootOptions) openDB(ctx context.Context) (*config.Config, *database.DB, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "database not available", err)
	}
	return cfg, db, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
