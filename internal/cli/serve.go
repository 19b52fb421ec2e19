package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/bountyboard/internal/reconcile"
	"github.com/roach88/bountyboard/internal/scheduler"
	"github.com/roach88/bountyboard/internal/store"
	"github.com/roach88/bountyboard/internal/webapi"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	HTTPAddr   string
	NoHTTP     bool
	FromLatest bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync reconciler, repair scheduler and web API",
		Long: `Run bountyd until interrupted.

Three tasks share one store:
  - the sync reconciler tails the change feed and replays writes made by
    other clients through the activity pipeline
  - the repair scheduler restores evergreen parent bookkeeping
  - the web API accepts activity requests from the web front-end

The first task to fail stops the others.

Example:
  bountyd serve --db ./bounties.db
  bountyd serve --http-addr :9090 --verbose
  bountyd serve --no-http`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.HTTPAddr, "http-addr", "", "web API listen address (overrides config)")
	cmd.Flags().BoolVar(&opts.NoHTTP, "no-http", false, "do not start the web API")
	cmd.Flags().BoolVar(&opts.FromLatest, "from-latest", false, "start a new consumer at the newest change instead of the beginning")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg := opts.Config
	logger := opts.Logger
	if opts.HTTPAddr != "" {
		cfg.HTTPAddr = opts.HTTPAddr
	}
	if opts.NoHTTP {
		cfg.HTTPAddr = ""
	}

	rt, err := openRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.close(opts.RootOptions)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed, err := rt.store.Subscribe(ctx, cfg.Consumer, store.FeedOptions{
		Poll:       cfg.FeedPoll,
		Batch:      cfg.FeedBatch,
		FromLatest: opts.FromLatest,
	})
	if err != nil {
		return WrapExitError(ExitUnavailable, "failed to subscribe to change feed", err)
	}

	rec := reconcile.New(feed, rt.store, rt.pipeline, reconcile.WithLogger(logger))
	sched, err := scheduler.New(rt.engine,
		scheduler.WithInterval(cfg.RepairEvery),
		scheduler.WithLogger(logger),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid repair schedule", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rec.Run(gctx)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	if cfg.HTTPAddr != "" {
		api := webapi.New(rt.engine, rt.store,
			webapi.WithToken(cfg.APIToken),
			webapi.WithLogger(logger),
		)
		g.Go(func() error {
			return api.Serve(gctx, cfg.HTTPAddr)
		})
	}

	logger.Info("bountyd started",
		"db", cfg.Database,
		"consumer", cfg.Consumer,
		"position", feed.Position(),
		"http_addr", cfg.HTTPAddr,
	)
	fmt.Fprintln(cmd.OutOrStdout(), "bountyd started. Press Ctrl-C to stop.")

	err = g.Wait()
	stats := rec.Stats()
	logger.Info("bountyd stopped",
		"seen", stats.Seen,
		"replayed", stats.Replayed,
		"ignored", stats.Ignored,
		"dropped", stats.Dropped,
		"failed", stats.Failed,
		"position", stats.Position,
		"repair_runs", sched.Runs(),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return activityExitError("bountyd stopped", err)
	}
	return nil
}
