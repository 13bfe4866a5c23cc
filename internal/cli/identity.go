package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/mmorpg-client/internal/credentials"
)

// NewIdentityCommand creates the identity command group.
func NewIdentityCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage service identities",
	}
	cmd.AddCommand(newIdentityNewCommand(opts))
	return cmd
}

func newIdentityNewCommand(opts *RootOptions) *cobra.Command {
	var (
		save    bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Mint a new identity and token",
		Long: `Ask the service for a fresh identity. With --save the token replaces the
cached token file, so the next connection logs in as the new identity.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmdContext(cmd), timeout)
			defer cancel()

			client, err := newAPIClient(cfg, logger, false)
			if err != nil {
				return err
			}
			resp, err := client.CreateIdentity(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "create identity", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "identity: %s\n", resp.Identity)
			if !save {
				fmt.Fprintf(out, "token: %s\n", resp.Token)
				return nil
			}

			store := credentials.NewStore(cfg.Connection.TokenFilePath)
			if err := store.SaveToken(resp.Token); err != nil {
				return WrapExitError(ExitCommandError, "save token", err)
			}
			fmt.Fprintf(out, "token saved to %s\n", store.Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "store the token in the configured token file")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}
