package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/mmorpg-client/internal/credentials"
)

// NewTokenCommand creates the token command group.
func NewTokenCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect or remove the cached token",
	}
	cmd.AddCommand(newTokenShowCommand(opts))
	cmd.AddCommand(newTokenClearCommand(opts))
	return cmd
}

func newTokenShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the claims of the cached token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			store := credentials.NewStore(cfg.Connection.TokenFilePath)
			token, err := store.LoadToken()
			if err != nil {
				return WrapExitError(ExitCommandError, "load token", err)
			}

			out := cmd.OutOrStdout()
			if token == "" {
				fmt.Fprintf(out, "no token stored at %s\n", store.Path())
				return nil
			}

			claims, err := credentials.Inspect(token)
			if err != nil {
				return WrapExitError(ExitFailure, "token at "+store.Path()+" is unreadable", err)
			}

			fmt.Fprintf(out, "file:     %s\n", store.Path())
			fmt.Fprintf(out, "identity: %s\n", orDash(claims.HexIdentity))
			fmt.Fprintf(out, "subject:  %s\n", orDash(claims.Subject))
			fmt.Fprintf(out, "issuer:   %s\n", orDash(claims.Issuer))
			if len(claims.Audience) > 0 {
				fmt.Fprintf(out, "audience: %s\n", strings.Join(claims.Audience, ", "))
			}
			fmt.Fprintf(out, "issued:   %s\n", formatTime(claims.IssuedAt))
			switch {
			case claims.ExpiresAt.IsZero():
				fmt.Fprintln(out, "expires:  never")
			case claims.Expired(time.Now()):
				fmt.Fprintf(out, "expires:  %s (expired)\n", formatTime(claims.ExpiresAt))
			default:
				fmt.Fprintf(out, "expires:  %s\n", formatTime(claims.ExpiresAt))
			}
			return nil
		},
	}
}

func newTokenClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the cached token so the next connection is anonymous",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			store := credentials.NewStore(cfg.Connection.TokenFilePath)
			if err := store.Clear(); err != nil {
				return WrapExitError(ExitCommandError, "clear token", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", store.Path())
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
