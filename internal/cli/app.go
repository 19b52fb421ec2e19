package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/bountyboard/internal/engine"
	"github.com/roach88/bountyboard/internal/pipeline"
	"github.com/roach88/bountyboard/internal/store"
	"github.com/roach88/bountyboard/internal/view"
)

// runtime is the wired engine stack shared by every command that touches the
// store.
type runtime struct {
	store    *store.Store
	engine   *engine.Engine
	pipeline *pipeline.Pipeline
}

// openRuntime opens the configured database and wires the engine and
// pipeline. Views and notices go to the log.
func openRuntime(opts *RootOptions) (*runtime, error) {
	cfg := opts.Config
	logger := opts.Logger

	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitUnavailable, "failed to open database", err)
	}

	engineOpts := []engine.Option{
		engine.WithClientID(cfg.EngineID),
		engine.WithLogger(logger),
	}
	if opts.Clock != nil {
		engineOpts = append(engineOpts, engine.WithClock(opts.Clock))
	}
	if opts.IDs != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDs))
	}
	eng, err := engine.New(st, engineOpts...)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	p := pipeline.New(eng, st,
		view.LogProjector{Logger: logger},
		view.LogNotifier{Logger: logger},
		pipeline.WithRetries(cfg.Retries),
		pipeline.WithLogger(logger),
	)

	return &runtime{store: st, engine: eng, pipeline: p}, nil
}

func (r *runtime) close(opts *RootOptions) {
	if err := r.store.Close(); err != nil {
		opts.Logger.Error("error closing database", "error", err)
	}
}

// formatter returns an output formatter writing to the command's streams.
func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
