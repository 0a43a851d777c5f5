package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/teamtask/internal/auth"
	"github.com/roach88/teamtask/internal/scenario"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Database string
}

// SeedResult is the JSON output of seed.
type SeedResult struct {
	Teams int `json:"teams"`
	Users int `json:"users"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <fixtures.yaml>",
		Short: "Load teams and users from a fixtures file",
		Long: `Load teams and users into the database. Passwords in the fixtures
file are hashed with bcrypt before they are stored. Existing entries with
the same IDs are updated.

Example:
  teamtask seed --db ./teamtask.db ./fixtures.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}

func runSeed(opts *SeedOptions, path string, cmd *cobra.Command) error {
	fixtures, err := scenario.LoadFixtures(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load fixtures", err)
	}

	cfg, err := loadConfig(opts.RootOptions, cmd, opts.Database)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	out := formatter(opts.RootOptions, cmd)
	out.VerboseLog("seeding %d teams and %d users into %s", len(fixtures.Teams), len(fixtures.Users), cfg.Database.Path)

	if err := scenario.Seed(cmd.Context(), st, fixtures.Teams, fixtures.Users, auth.HashPassword); err != nil {
		return WrapExitError(ExitFailure, "failed to seed", err)
	}

	return out.Success(
		fmt.Sprintf("Seeded %d teams and %d users", len(fixtures.Teams), len(fixtures.Users)),
		SeedResult{Teams: len(fixtures.Teams), Users: len(fixtures.Users)},
	)
}
