package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/teamtask/internal/auth"
	"github.com/roach88/teamtask/internal/store"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	Database string
}

// TokenResult is the JSON output of token.
type TokenResult struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token <email>",
		Short: "Issue an access token for a user",
		Long: `Issue a bearer token for an active user without a password, signed
with the configured secret. Intended for development and scripting.

Example:
  teamtask token --db ./teamtask.db manager@example.com`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}

func runToken(opts *TokenOptions, email string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd, opts.Database)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	user, err := st.FindUserByEmail(cmd.Context(), strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, store.ErrNotFound) {
		return NewExitError(ExitCommandError, "no user with email "+email)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to look up user", err)
	}
	if !user.IsActive {
		return NewExitError(ExitCommandError, "user "+user.ID+" is inactive")
	}

	issuer, err := auth.NewIssuer(cfg.JWT.Secret, auth.WithTTL(cfg.JWT.TTL))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create token issuer", err)
	}
	token, err := issuer.Issue(user)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to issue token", err)
	}

	return formatter(opts.RootOptions, cmd).Success(token, TokenResult{
		AccessToken: token,
		UserID:      user.ID,
		Role:        string(user.Role),
	})
}
