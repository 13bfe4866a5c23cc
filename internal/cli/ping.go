package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/mmorpg-client/internal/api"
	"github.com/rickgao/mmorpg-client/internal/config"
	"github.com/rickgao/mmorpg-client/internal/credentials"
)

// NewPingCommand creates the ping command.
func NewPingCommand(opts *RootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check the service is up and the module exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmdContext(cmd), timeout)
			defer cancel()

			client, err := newAPIClient(cfg, logger, true)
			if err != nil {
				return err
			}

			rtt, err := client.Ping(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "service unreachable", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "service %s is up (%s)\n", cfg.Connection.ServerURI, rtt.Round(time.Millisecond))

			info, err := client.DatabaseInfo(ctx, cfg.Connection.ModuleName)
			if api.IsNotFound(err) {
				return NewExitError(ExitFailure, fmt.Sprintf("module %q not found", cfg.Connection.ModuleName))
			}
			if err != nil {
				return WrapExitError(ExitFailure, "look up module", err)
			}
			fmt.Fprintf(out, "module %s: identity %s, host %s\n",
				cfg.Connection.ModuleName, info.DatabaseIdentity, info.HostType)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall request timeout")
	return cmd
}

// newAPIClient builds a control-plane client for the configured server,
// authenticated with the cached token when withToken is set and one exists.
func newAPIClient(cfg *config.Config, logger *slog.Logger, withToken bool) (*api.Client, error) {
	base, err := api.BaseURL(cfg.Connection.ServerURI)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "server uri", err)
	}

	clientOpts := []api.ClientOption{
		api.WithLogger(logger),
		api.WithRetries(2, 250*time.Millisecond),
	}
	if withToken {
		token, err := credentials.NewStore(cfg.Connection.TokenFilePath).LoadToken()
		if err != nil {
			logger.Warn("failed to load token", "error", err)
		}
		if token != "" {
			clientOpts = append(clientOpts, api.WithToken(token))
		}
	}
	return api.NewClient(base, clientOpts...), nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
