package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/bountyboard/internal/domain"
)

// Store is the BountyStore contract the engine needs.
// Implemented by store.Store.
type Store interface {
	Get(ctx context.Context, id string) (*domain.Bounty, error)
	Insert(ctx context.Context, b *domain.Bounty) (string, error)
	ConditionalUpdate(ctx context.Context, prev, next *domain.Bounty) (int64, error)
	Query(ctx context.Context, f domain.Filter, limit int) ([]*domain.Bounty, error)
}

// DefaultParentRetries bounds how often the evergreen attach step re-reads
// a parent after losing a write race.
const DefaultParentRetries = 3

// DefaultClientID labels internal activity entries when no id is configured.
const DefaultClientID = "bountyboard-engine"

// Result describes one applied activity.
type Result struct {
	// Bounty is the document as written. For a claim against an evergreen
	// parent this is the claimed child.
	Bounty *domain.Bounty

	// ActivityIndex is the index of the entry appended to
	// Bounty.ActivityHistory.
	ActivityIndex int

	// PreviousStatus is the status before the activity; empty for create.
	PreviousStatus domain.Status

	// Parent is set when a claim went through an evergreen parent.
	Parent *domain.Bounty

	// ParentIndex is the index of the last entry appended to the parent.
	ParentIndex int

	// ParentClosed reports that the claim exhausted the parent's limit.
	ParentClosed bool
}

// Entry returns the activity entry the result appended.
func (r *Result) Entry() domain.ActivityEntry {
	return r.Bounty.ActivityHistory[r.ActivityIndex]
}

// Engine applies activities to bounties.
//
// Thread-safety: Apply may be called from any number of goroutines.
// Concurrent activities on the same bounty are arbitrated by the store's
// conditional write, not by locking.
type Engine struct {
	store         Store
	clock         Clock
	ids           IDGenerator
	validator     *Validator
	clientID      string
	parentRetries int
	logger        *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the timestamp source. Default: NewWallClock().
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator sets the bounty id source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithClientID sets the client id recorded on internal activity entries.
func WithClientID(id string) Option {
	return func(e *Engine) { e.clientID = id }
}

// WithParentRetries sets the evergreen attach retry bound.
func WithParentRetries(n int) Option {
	return func(e *Engine) { e.parentRetries = n }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine over s.
func New(s Store, opts ...Option) (*Engine, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		store:         s,
		clock:         NewWallClock(),
		ids:           UUIDv7Generator{},
		validator:     v,
		clientID:      DefaultClientID,
		parentRetries: DefaultParentRetries,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.parentRetries < 1 {
		e.parentRetries = 1
	}
	return e, nil
}

// ClientID returns the id recorded on internal activity entries.
func (e *Engine) ClientID() string {
	return e.clientID
}

// Apply validates and applies one activity.
//
// Errors:
//   - ValidationFailure: malformed payload or envelope; nothing read
//   - NotFound: unknown bounty, or a bounty of another customer
//   - PreconditionFailed: activity not legal in the current status
//   - ConcurrentModification: the conditional write modified nothing
//   - DependencyUnavailable: the store could not be reached
func (e *Engine) Apply(ctx context.Context, req domain.Request) (*Result, error) {
	req = Normalize(req)
	if err := e.validator.Validate(req); err != nil {
		return nil, err
	}

	if req.Activity == domain.ActivityCreate {
		return e.create(ctx, req)
	}

	prev, err := e.load(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.Activity == domain.ActivityClaim && prev.EvergreenParent() {
		return e.claimEvergreen(ctx, req, prev)
	}

	now := e.clock.Now()
	next := prev.Clone()
	if err := e.dispatch(req, next, now); err != nil {
		return nil, err
	}
	idx := next.Record(e.entry(req, req.Activity, now))

	if err := e.write(ctx, req.Activity, prev, next); err != nil {
		return nil, err
	}

	e.logger.Debug("activity applied",
		"bounty_id", next.ID,
		"activity", req.Activity,
		"origin", req.Origin,
		"from", prev.Status,
		"to", next.Status,
	)

	return &Result{
		Bounty:         next,
		ActivityIndex:  idx,
		PreviousStatus: prev.Status,
	}, nil
}

// load reads the bounty a request targets. A bounty belonging to another
// customer is reported as NotFound.
func (e *Engine) load(ctx context.Context, req domain.Request) (*domain.Bounty, error) {
	b, err := e.store.Get(ctx, req.BountyID)
	if err != nil {
		return nil, err
	}
	if req.CustomerID != "" && b.CustomerID != req.CustomerID {
		return nil, domain.NewNotFound(req.BountyID)
	}
	return b, nil
}

// create builds and inserts a new Draft bounty.
func (e *Engine) create(ctx context.Context, req domain.Request) (*Result, error) {
	p := req.Payload
	now := e.clock.Now()

	b := &domain.Bounty{
		ID:                 e.ids.Generate(),
		CustomerID:         req.CustomerID,
		Title:              p.Title,
		Description:        p.Description,
		Criteria:           p.Criteria,
		Reward:             *p.Reward,
		DueAt:              p.DueAt,
		PaidStatus:         domain.Unpaid,
		Evergreen:          p.Evergreen,
		ClaimLimit:         p.ClaimLimit,
		IsParent:           p.Evergreen,
		RequireApplication: p.RequireApplication,
		Gate:               p.Gate,
		Informal:           p.Informal,
		CreatedAt:          now,
	}
	b.SetStatus(domain.StatusDraft, now)
	b.SetCreatedBy(req.Actor)
	idx := b.Record(e.entry(req, domain.ActivityCreate, now))

	if _, err := e.store.Insert(ctx, b); err != nil {
		return nil, fmt.Errorf("create bounty: %w", err)
	}

	e.logger.Debug("bounty created",
		"bounty_id", b.ID,
		"customer_id", b.CustomerID,
		"evergreen", b.Evergreen,
		"origin", req.Origin,
	)

	return &Result{Bounty: b, ActivityIndex: idx}, nil
}

// entry builds the activity entry for req. Internal entries carry the
// engine's client id; external entries keep the caller's.
func (e *Engine) entry(req domain.Request, activity domain.Activity, now time.Time) domain.ActivityEntry {
	clientID := req.ClientID
	if req.Origin == domain.OriginInternal {
		clientID = e.clientID
	}
	actor := req.Actor
	return domain.ActivityEntry{
		Activity: activity,
		At:       now,
		Origin:   req.Origin,
		ClientID: clientID,
		Actor:    &actor,
	}
}

// automaticEntry builds an entry for a transition no actor requested, such
// as evergreen closure.
func (e *Engine) automaticEntry(req domain.Request, activity domain.Activity, now time.Time) domain.ActivityEntry {
	entry := e.entry(req, activity, now)
	entry.Actor = nil
	return entry
}

// write performs the conditional write and requires exactly one document to
// be modified.
func (e *Engine) write(ctx context.Context, activity domain.Activity, prev, next *domain.Bounty) error {
	n, err := e.store.ConditionalUpdate(ctx, prev, next)
	if err != nil {
		return err
	}
	if n != 1 {
		return domain.NewConcurrentModification(prev.ID, activity)
	}
	return nil
}
