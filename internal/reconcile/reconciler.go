package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/bountyboard/internal/domain"
	"github.com/roach88/bountyboard/internal/pipeline"
)

// Feed is a resumable change-feed subscription. Implemented by store.Feed.
type Feed interface {
	Next(ctx context.Context) ([]domain.Change, error)
	Ack(ctx context.Context, seq int64) error
}

// Getter reads the latest version of a bounty. Implemented by store.Store.
type Getter interface {
	Get(ctx context.Context, id string) (*domain.Bounty, error)
}

// Handler runs replayed requests. Implemented by pipeline.Pipeline.
type Handler interface {
	Handle(ctx context.Context, req domain.Request) (*pipeline.Outcome, error)
}

// Decision is what the reconciler did with one change.
type Decision string

const (
	DecisionReplayed   Decision = "replayed"
	DecisionDuplicate  Decision = "duplicate"
	DecisionDelete     Decision = "ignored_delete"
	DecisionNoActivity Decision = "ignored_no_activity"
	DecisionSelf       Decision = "ignored_self"
	DecisionMissing    Decision = "ignored_missing"
	DecisionDropped    Decision = "dropped"
	DecisionFailed     Decision = "failed"
)

// Default retry bounds for DependencyUnavailable.
const (
	DefaultRetryInitial = 100 * time.Millisecond
	DefaultRetryMax     = 10 * time.Second
)

// Stats counts processed changes by outcome.
type Stats struct {
	Seen     int64
	Replayed int64
	Ignored  int64
	Dropped  int64
	Failed   int64
	Position int64
}

// Reconciler replays externally caused changes through the pipeline.
//
// Thread-safety: Run must be called from a single goroutine; Stats may be
// called from anywhere.
type Reconciler struct {
	feed         Feed
	store        Getter
	handler      Handler
	retryInitial time.Duration
	retryMax     time.Duration
	logger       *slog.Logger

	seen     atomic.Int64
	replayed atomic.Int64
	ignored  atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
	position atomic.Int64
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithRetry sets the exponential backoff bounds used when the store or feed
// is unavailable.
func WithRetry(initial, max time.Duration) Option {
	return func(r *Reconciler) {
		r.retryInitial = initial
		r.retryMax = max
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// New creates a Reconciler.
func New(feed Feed, store Getter, handler Handler, opts ...Option) *Reconciler {
	r := &Reconciler{
		feed:         feed,
		store:        store,
		handler:      handler,
		retryInitial: DefaultRetryInitial,
		retryMax:     DefaultRetryMax,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats returns a snapshot of the counters.
func (r *Reconciler) Stats() Stats {
	return Stats{
		Seen:     r.seen.Load(),
		Replayed: r.replayed.Load(),
		Ignored:  r.ignored.Load(),
		Dropped:  r.dropped.Load(),
		Failed:   r.failed.Load(),
		Position: r.position.Load(),
	}
}

// Run consumes the feed until ctx is done. It returns nil on cancellation
// and an error only for failures that retrying cannot fix.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("reconciler started")
	defer r.logger.Info("reconciler stopped", "seen", r.seen.Load())

	for {
		var changes []domain.Change
		err := r.retry(ctx, func() error {
			var err error
			changes, err = r.feed.Next(ctx)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		for _, c := range changes {
			var d Decision
			err := r.retry(ctx, func() error {
				var err error
				d, err = r.Process(ctx, c)
				return err
			})
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				d = DecisionFailed
				r.logger.Error("change failed",
					"seq", c.Seq,
					"bounty_id", c.DocumentID,
					"error", err,
				)
			}
			r.count(d)

			if err := r.retry(ctx, func() error { return r.feed.Ack(ctx, c.Seq) }); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			r.position.Store(c.Seq)
		}
	}
}

// retry runs op until it succeeds, fails with anything other than
// DependencyUnavailable, or ctx is done.
func (r *Reconciler) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retryInitial
	policy.MaxInterval = r.retryMax
	policy.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil || domain.IsDependencyUnavailable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		r.logger.Warn("dependency unavailable, retrying", "wait", wait, "error", err)
	})
}

func (r *Reconciler) count(d Decision) {
	r.seen.Add(1)
	switch d {
	case DecisionReplayed:
		r.replayed.Add(1)
	case DecisionDropped:
		r.dropped.Add(1)
	case DecisionFailed:
		r.failed.Add(1)
	default:
		r.ignored.Add(1)
	}
}

// Process decides what to do with one change and, if it was caused by
// another writer, replays it through the side-effect stage.
func (r *Reconciler) Process(ctx context.Context, c domain.Change) (Decision, error) {
	if c.DecodeErr != nil {
		r.logger.Warn("dropping undecodable change",
			"seq", c.Seq,
			"bounty_id", c.DocumentID,
			"error", c.DecodeErr,
		)
		return DecisionDropped, nil
	}

	switch c.Operation {
	case domain.OpDelete:
		return DecisionDelete, nil
	case domain.OpUpdate:
		if !c.Touches("activityHistory") {
			return DecisionNoActivity, nil
		}
	}

	doc := c.FullDocument
	if c.Operation == domain.OpInsert || doc == nil {
		latest, err := r.store.Get(ctx, c.DocumentID)
		if domain.IsNotFound(err) {
			return DecisionMissing, nil
		}
		if err != nil {
			return "", err
		}
		doc = latest
	}

	last := doc.LastActivity()
	if last == nil {
		return DecisionNoActivity, nil
	}
	if last.Origin == domain.OriginInternal {
		return DecisionSelf, nil
	}

	activity, err := domain.ParseActivity(string(last.Activity))
	if err != nil {
		r.logger.Warn("dropping change",
			"seq", c.Seq,
			"bounty_id", doc.ID,
			"activity", last.Activity,
			"origin", last.Origin,
			"error", err,
		)
		return DecisionDropped, nil
	}

	req := domain.Request{
		Activity:   activity,
		BountyID:   doc.ID,
		CustomerID: doc.CustomerID,
		Origin:     last.Origin,
		ClientID:   last.ClientID,
		Document:   doc,
	}
	if last.Actor != nil {
		req.Actor = *last.Actor
	}

	out, err := r.handler.Handle(ctx, req)
	if err != nil {
		switch {
		case ctx.Err() != nil, domain.IsDependencyUnavailable(err):
			return "", err
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// A dispatch cut short by its own timeout is retried, not acked.
			return "", domain.NewDependencyUnavailable("replay", err)
		}
		r.logger.Error("replay failed",
			"seq", c.Seq,
			"bounty_id", doc.ID,
			"activity", activity,
			"error", err,
		)
		return DecisionFailed, nil
	}
	if !out.Dispatched {
		return DecisionDuplicate, nil
	}

	r.logger.Info("replayed external change",
		"seq", c.Seq,
		"bounty_id", doc.ID,
		"activity", activity,
		"origin", last.Origin,
		"client_id", last.ClientID,
	)
	return DecisionReplayed, nil
}
