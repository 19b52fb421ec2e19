package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/bountyboard/internal/domain"
	"github.com/roach88/bountyboard/internal/engine"
	"github.com/roach88/bountyboard/internal/view"
)

// DefaultRetries bounds ConcurrentModification retries of one request.
const DefaultRetries = 2

// DefaultRetryDelay separates retries of a request that lost a write race.
const DefaultRetryDelay = 20 * time.Millisecond

// pointerWriteAttempts bounds the read-modify-write loop that stores view
// pointers.
const pointerWriteAttempts = 5

// Applier applies one activity. Implemented by engine.Engine.
type Applier interface {
	Apply(ctx context.Context, req domain.Request) (*engine.Result, error)
}

// Store is what the side-effect stage needs from the BountyStore.
// Implemented by store.Store.
type Store interface {
	Get(ctx context.Context, id string) (*domain.Bounty, error)
	ConditionalUpdate(ctx context.Context, prev, next *domain.Bounty) (int64, error)
	ClaimSideEffect(ctx context.Context, bountyID string, activityIndex int, activity domain.Activity, origin domain.Origin) (bool, error)
	ReleaseSideEffect(ctx context.Context, bountyID string, activityIndex int) error
}

// Pipeline runs requests through the engine and the side-effect stage.
//
// Thread-safety: Handle may be called concurrently for any requests.
type Pipeline struct {
	engine     Applier
	store      Store
	projector  view.Projector
	notifier   view.Notifier
	retries    int
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRetries sets how often a request that lost a write race is re-run
// from a fresh read. Zero disables retries.
func WithRetries(n int) Option {
	return func(p *Pipeline) { p.retries = n }
}

// WithRetryDelay sets the pause between retries.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Pipeline) { p.retryDelay = d }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline. The projector is wrapped with view.Tolerant so a
// missing rendering never fails a committed transition.
func New(e Applier, s Store, projector view.Projector, notifier view.Notifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine:     e,
		store:      s,
		notifier:   notifier,
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.projector = view.Tolerant(projector, p.logger)
	return p
}

// Outcome reports what Handle did.
type Outcome struct {
	// Result is the engine result; nil for replayed requests.
	Result *engine.Result

	// Bounty is the document side effects were planned from.
	Bounty *domain.Bounty

	// Dispatched is false when the side effects of the entry had already
	// been dispatched by another path.
	Dispatched bool

	// Attempts counts engine attempts, including the successful one.
	Attempts int
}

// Handle runs one request.
//
// A direct request is applied by the engine, retried from a fresh read on
// ConcurrentModification up to the configured bound, and its side effects
// dispatched. A replayed request (req.Document set) is not applied again;
// only the side effects of the document's latest activity entry run.
func (p *Pipeline) Handle(ctx context.Context, req domain.Request) (*Outcome, error) {
	if req.Replay() {
		return p.replay(ctx, req)
	}

	out := &Outcome{}
	op := func() error {
		out.Attempts++
		res, err := p.engine.Apply(ctx, req)
		if err == nil {
			out.Result = res
			return nil
		}
		if domain.IsConcurrentModification(err) {
			p.logger.Debug("write race lost, retrying",
				"bounty_id", req.BountyID,
				"activity", req.Activity,
				"attempt", out.Attempts,
			)
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.retryDelay), uint64(p.retries)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}

	res := out.Result
	out.Bounty = res.Bounty
	dispatched, err := p.SideEffects(ctx, res.Bounty, res.ActivityIndex)
	if err != nil {
		return out, err
	}
	out.Dispatched = dispatched

	if res.Parent != nil {
		if _, err := p.SideEffects(ctx, res.Parent, res.ParentIndex); err != nil {
			return out, err
		}
	}
	return out, nil
}

// replay dispatches side effects for a document another writer committed.
func (p *Pipeline) replay(ctx context.Context, req domain.Request) (*Outcome, error) {
	doc := req.Document
	if len(doc.ActivityHistory) == 0 {
		return &Outcome{Bounty: doc}, nil
	}
	dispatched, err := p.SideEffects(ctx, doc, len(doc.ActivityHistory)-1)
	if err != nil {
		return nil, err
	}
	return &Outcome{Bounty: doc, Dispatched: dispatched}, nil
}

// SideEffects dispatches the views and notices of the activity entry at idx
// of b, unless they were already dispatched. Returns whether this call
// dispatched them.
//
// Projector and notifier failures are logged and do not fail the call: the
// transition is already committed. If ctx ends mid-dispatch the ledger
// claim is released so a later replay sends the effects again.
func (p *Pipeline) SideEffects(ctx context.Context, b *domain.Bounty, idx int) (bool, error) {
	if idx < 0 || idx >= len(b.ActivityHistory) {
		return false, fmt.Errorf("side effects: bounty %s has no activity entry %d", b.ID, idx)
	}
	entry := b.ActivityHistory[idx]

	// b may be an old version replayed from the feed. Renderings always
	// follow the latest document and its stored pointers; only the notices
	// come from the entry's own version.
	current, err := p.latest(ctx, b)
	if err != nil {
		return false, err
	}

	claimed, err := p.store.ClaimSideEffect(ctx, b.ID, idx, entry.Activity, entry.Origin)
	if err != nil {
		return false, err
	}
	if !claimed {
		p.logger.Debug("side effects already dispatched",
			"bounty_id", b.ID,
			"activity", entry.Activity,
			"index", idx,
		)
		return false, nil
	}

	fx := Effects{
		Views:   planViews(current),
		Notices: planNotices(b, idx),
	}
	pointers := make(map[domain.Audience]*domain.ViewPointer)
	for _, u := range fx.Views {
		ptr, err := p.projector.Project(ctx, u)
		if err != nil {
			p.logger.Error("view projection failed",
				"bounty_id", b.ID,
				"audience", u.Audience,
				"error", err,
			)
			continue
		}
		if !samePointer(u.Pointer, ptr) {
			pointers[u.Audience] = ptr
		}
	}
	for _, n := range fx.Notices {
		if err := p.notifier.Notify(ctx, n); err != nil {
			p.logger.Error("notice failed",
				"bounty_id", b.ID,
				"recipient", n.Recipient.ID,
				"error", err,
			)
		}
	}

	if ctx.Err() != nil {
		if err := p.store.ReleaseSideEffect(context.WithoutCancel(ctx), b.ID, idx); err != nil {
			p.logger.Error("release side effect failed", "bounty_id", b.ID, "index", idx, "error", err)
		}
		return false, ctx.Err()
	}

	if len(pointers) > 0 {
		if err := p.savePointers(ctx, b.ID, pointers); err != nil {
			p.logger.Error("saving view pointers failed",
				"bounty_id", b.ID,
				"error", err,
			)
		}
	}

	p.logger.Info("side effects dispatched",
		"bounty_id", b.ID,
		"activity", entry.Activity,
		"origin", entry.Origin,
		"views", len(fx.Views),
		"notices", len(fx.Notices),
	)
	return true, nil
}

// latest reads the stored version of b. A bounty that is gone from the
// store is rendered from b itself.
func (p *Pipeline) latest(ctx context.Context, b *domain.Bounty) (*domain.Bounty, error) {
	cur, err := p.store.Get(ctx, b.ID)
	if domain.IsNotFound(err) {
		return b, nil
	}
	if err != nil {
		return nil, err
	}
	return cur, nil
}

// savePointers stores changed view pointers on the latest document. The
// write appends no activity entry, so the reconciler ignores its change
// event. A nil pointer clears the audience.
func (p *Pipeline) savePointers(ctx context.Context, id string, pointers map[domain.Audience]*domain.ViewPointer) error {
	for attempt := 0; attempt < pointerWriteAttempts; attempt++ {
		cur, err := p.store.Get(ctx, id)
		if err != nil {
			return err
		}
		next := cur.Clone()
		for a, ptr := range pointers {
			next.SetView(a, ptr)
		}
		if sameViews(cur, next) {
			return nil
		}
		n, err := p.store.ConditionalUpdate(ctx, cur, next)
		if err != nil {
			return err
		}
		if n == 1 {
			return nil
		}
	}
	return errors.New("view pointers: too many concurrent writers")
}

func samePointer(a, b *domain.ViewPointer) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameViews(a, b *domain.Bounty) bool {
	if len(a.Views) != len(b.Views) {
		return false
	}
	for k, v := range a.Views {
		if w, ok := b.Views[k]; !ok || w != v {
			return false
		}
	}
	return true
}
