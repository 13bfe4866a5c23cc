package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/mmorpg-client/internal/bindings"
	"github.com/rickgao/mmorpg-client/internal/credentials"
	"github.com/rickgao/mmorpg-client/internal/frame"
	"github.com/rickgao/mmorpg-client/internal/stdb"
)

// NewEnterGameCommand creates the enter-game command.
func NewEnterGameCommand(opts *RootOptions) *cobra.Command {
	var (
		name    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "enter-game",
		Short: "Connect, call enter_game with a display name and exit",
		Long: `Connect with the cached token (or anonymously), call the enter_game
reducer and wait for the server's verdict. A token issued on connect is saved,
so later runs act as the same player.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name = strings.TrimSpace(name)
			if name == "" {
				return NewExitError(ExitCommandError, "--name is required")
			}
			return enterGame(cmdContext(cmd), opts, cmd, name, timeout)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "display name to enter with")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "give up after this long")
	return cmd
}

func enterGame(ctx context.Context, opts *RootOptions, cmd *cobra.Command, name string, timeout time.Duration) error {
	cfg, logger, err := opts.load(cmd)
	if err != nil {
		return err
	}

	store := credentials.NewStore(cfg.Connection.TokenFilePath)
	token, err := store.LoadToken()
	if err != nil {
		logger.Warn("failed to load token, connecting anonymously", "error", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Connection callbacks run on this goroutine inside ticker.Run.
	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
		cancel()
	}

	var (
		identity  stdb.Identity
		requestID uint32
	)
	ticker := frame.NewTicker(frame.Config{Resolution: cfg.Connection.FrameInterval}, logger)
	builder := bindings.NewBuilder().
		WithURI(cfg.Connection.ServerURI).
		WithModuleName(cfg.Connection.ModuleName).
		WithToken(token).
		WithLogger(logger).
		WithExecutor(ticker).
		OnConnect(func(conn *bindings.DbConnection, id stdb.Identity, tok string) {
			identity = id
			if err := store.SaveToken(tok); err != nil {
				logger.Warn("failed to save token", "error", err)
			}
			conn.OnReducerResult(func(ev stdb.Event, err error) {
				if ev.Reducer == bindings.ReducerEnterGame && ev.RequestID == requestID {
					finish(err)
				}
			})
			callID, err := conn.Reducers.EnterGame(name)
			if err != nil {
				finish(err)
				return
			}
			requestID = callID
		}).
		OnDisconnect(func(_ *bindings.DbConnection, err error) {
			if err == nil {
				err = errors.New("connection closed")
			}
			finish(fmt.Errorf("disconnected before enter_game finished: %w", err))
		}).
		OnConnectError(func(err error) {
			finish(fmt.Errorf("connect: %w", err))
		})
	if opts.Transport != nil {
		builder.WithTransport(opts.Transport)
	}

	conn, err := builder.Build()
	if err != nil {
		return WrapExitError(ExitCommandError, "build connection", err)
	}
	defer conn.Disconnect()

	ticker.AddTicker(func(time.Duration) bool {
		if conn.IsActive() {
			conn.FrameTick()
		}
		return true
	}, cfg.Connection.FrameInterval)

	runErr := ticker.Run(ctx)

	select {
	case err := <-done:
		if err != nil {
			return WrapExitError(ExitFailure, "enter game", err)
		}
	default:
		return WrapExitError(ExitFailure, "enter game timed out", runErr)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "entered game as %q (identity %s)\n", name, identity)
	return nil
}
