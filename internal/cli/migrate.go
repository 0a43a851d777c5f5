package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	Database string
}

// MigrateResult is the JSON output of migrate.
type MigrateResult struct {
	Path          string `json:"path"`
	SchemaVersion int    `json:"schema_version"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Long: `Create the SQLite database if it does not exist and apply any
pending schema migrations. Safe to run more than once.

Example:
  teamtask migrate --db ./teamtask.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}

func runMigrate(opts *MigrateOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd, opts.Database)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	version, err := st.SchemaVersion(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read schema version", err)
	}

	return formatter(opts.RootOptions, cmd).Success(
		fmt.Sprintf("Database %s is at schema version %d", cfg.Database.Path, version),
		MigrateResult{Path: cfg.Database.Path, SchemaVersion: version},
	)
}
