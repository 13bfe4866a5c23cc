package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/mmorpg-client/internal/config"
	"github.com/rickgao/mmorpg-client/internal/database"
	"github.com/rickgao/mmorpg-client/internal/frame"
	"github.com/rickgao/mmorpg-client/internal/journal"
	"github.com/rickgao/mmorpg-client/internal/probe"
	"github.com/rickgao/mmorpg-client/internal/session"
	"github.com/rickgao/mmorpg-client/internal/status"
	"github.com/rickgao/mmorpg-client/internal/version"
)

const shutdownTimeout = 10 * time.Second

// NewRunCommand creates the run command.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect and mirror the module until interrupted",
		Long: `Start the frame loop and the connection manager. With auto_start set the
client connects immediately, subscribes to every table and tracks the local
player. The optional journal and status endpoint start alongside.

The client does not reconnect: after a drop it stays disconnected until
restarted. SIGINT or SIGTERM shuts it down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmdContext(cmd), opts, cmd)
		},
	}
}

func runClient(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	cfg, logger, err := opts.load(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting client",
		"version", version.Version,
		"commit", version.Commit,
		"config", opts.ConfigPath,
	)

	ticker := frame.NewTicker(frame.Config{Resolution: cfg.Connection.FrameInterval}, logger)

	sessOpts := []session.Option{session.WithLogger(logger)}
	if opts.Transport != nil {
		sessOpts = append(sessOpts, session.WithTransport(opts.Transport))
	}

	var (
		pool   *pgxpool.Pool
		writer *journal.Writer
	)
	if cfg.Journal.Enabled {
		pool, writer, err = startJournal(ctx, cfg.Journal, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "start journal", err)
		}
		defer pool.Close()
		sessOpts = append(sessOpts, session.WithJournal(writer))
	}

	mgr := session.New(ticker, sessOpts...)

	var (
		statusSrv *status.Server
		prober    *probe.Prober
	)
	if cfg.Status.Enabled {
		client, err := newAPIClient(cfg, logger, true)
		if err != nil {
			stopJournal(writer, logger)
			return err
		}
		prober = probe.New(probe.Config{Interval: cfg.Status.ProbeInterval}, client, cfg.Connection.ModuleName, logger)

		src := status.Sources{Session: mgr.Status, Service: prober.Last}
		if writer != nil {
			src.Journal = writer.Stats
			src.DB = pool
		}
		statusSrv = status.New(fmt.Sprintf(":%d", cfg.Status.Port), src, logger)
		if err := statusSrv.Start(ctx); err != nil {
			stopJournal(writer, logger)
			return WrapExitError(ExitCommandError, "start status server", err)
		}
		if err := prober.Start(ctx); err != nil {
			logger.Warn("service probe not started", "error", err)
		}
	}

	// The manager is owned by the loop goroutine from here on.
	ticker.Post(func() { mgr.Initialize(cfg.Connection) })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ticker.Run(gctx)
	})
	if statusSrv != nil {
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := prober.Stop(shutdownCtx); err != nil {
				logger.Warn("service probe stop failed", "error", err)
			}
			return statusSrv.Stop(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info("shutting down...")

	// The loop has returned, so this goroutine may drive the manager.
	mgr.Deinitialize()
	ticker.Step(time.Now())

	stopJournal(writer, logger)

	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "client stopped", err)
	}
	logger.Info("client stopped")
	return nil
}

func startJournal(ctx context.Context, cfg config.JournalConfig, logger *slog.Logger) (*pgxpool.Pool, *journal.Writer, error) {
	logger.Info("connecting to journal database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := journal.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	writer := journal.NewWriter(journal.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		BufferSize:    cfg.BufferSize,
	}, pool, logger)
	if err := writer.Start(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, writer, nil
}

func stopJournal(writer *journal.Writer, logger *slog.Logger) {
	if writer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := writer.Stop(ctx); err != nil {
		logger.Warn("journal stop failed", "error", err)
	}
	st := writer.Stats()
	logger.Info("journal stopped",
		"recorded", st.Recorded,
		"inserted", st.Inserted,
		"dropped", st.Dropped,
	)
}
