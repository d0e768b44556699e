package runner

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/gridwise/diagmesh/core"
	"github.com/gridwise/diagmesh/logging"
	"github.com/gridwise/diagmesh/workflow"
)

// Engine runs a single query to its terminal result. Satisfied by
// *workflow.Orchestrator and the diagmesh façade.
type Engine interface {
	Run(ctx context.Context, query core.Query) (*workflow.Result, error)
}

// Options holds configuration overrides passed to New().
type Options struct {
	// Concurrency limits simultaneous query runs. Defaults to 4. Keep it at
	// or below the engine's MaxConcurrentRuns or batch runs will queue on
	// the engine's slots instead.
	Concurrency int

	Logger *logging.EngineLogger
}

// Outcome pairs a query with its terminal result, or with the error that
// kept the engine from producing one.
type Outcome struct {
	Query  core.Query
	Result *workflow.Result
	Err    error
}

// Failed reports whether the query produced no usable result.
func (o Outcome) Failed() bool { return o.Err != nil || o.Result == nil }

// Runner drives query batches through an Engine. Safe for concurrent use.
type Runner struct {
	engine      Engine
	concurrency int
	logger      *logging.EngineLogger
}

// New constructs a Runner with optional overrides.
func New(engine Engine, optFns ...func(o *Options)) *Runner {
	opts := Options{Concurrency: 4}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewEngineLogger(nil)
	}
	return &Runner{
		engine:      engine,
		concurrency: opts.Concurrency,
		logger:      logger.WithComponent("runner"),
	}
}

// Run executes all queries and returns one Outcome per query, in input
// order. Per-query failures are captured in their Outcome; Run returns an
// error only when the context is canceled before the batch completes.
func (r *Runner) Run(ctx context.Context, queries []core.Query) ([]Outcome, error) {
	outcomes := make([]Outcome, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, query := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = Outcome{Query: query, Err: err}
				return err
			}
			result, err := r.engine.Run(gctx, query)
			outcomes[i] = Outcome{Query: query, Result: result, Err: err}
			if err != nil {
				r.logger.Warn("query %q failed: %v", query.Text, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
