package reconcile

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/bountyboard/internal/domain"
	"github.com/roach88/bountyboard/internal/engine"
	"github.com/roach88/bountyboard/internal/pipeline"
	"github.com/roach88/bountyboard/internal/store"
	"github.com/roach88/bountyboard/internal/testutil"
	"github.com/roach88/bountyboard/internal/view"
)

var (
	creator = domain.ActorRef{ID: "u-creator", Name: "Creator"}
	hunter  = domain.ActorRef{ID: "u-hunter", Name: "Hunter"}
)

type fixture struct {
	store      *store.Store
	engine     *engine.Engine
	recorder   *view.Recorder
	pipeline   *pipeline.Pipeline
	reconciler *Reconciler
	cursor     int64
}

// setupReconciler wires a store, engine, pipeline and a reconciler whose
// feed is unused; tests drive Process directly through drain.
func setupReconciler(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e, err := engine.New(s,
		engine.WithClock(testutil.NewStepClock()),
		engine.WithIDGenerator(testutil.NewSequenceIDs("b")),
		engine.WithClientID("engine-test"),
	)
	require.NoError(t, err)

	rec := view.NewRecorder()
	p := pipeline.New(e, s, rec, rec)
	return &fixture{
		store:      s,
		engine:     e,
		recorder:   rec,
		pipeline:   p,
		reconciler: New(&fakeFeed{}, s, p),
	}
}

// internal runs a request through the pipeline as the chat front-end would.
func (f *fixture) internal(t *testing.T, r domain.Request) *domain.Bounty {
	t.Helper()
	r.Origin = domain.OriginInternal
	if r.CustomerID == "" {
		r.CustomerID = "guild-1"
	}
	out, err := f.pipeline.Handle(context.Background(), r)
	require.NoError(t, err)
	return out.Bounty
}

// external writes through the engine only, as the web client does. No side
// effects run.
func (f *fixture) external(t *testing.T, r domain.Request) *domain.Bounty {
	t.Helper()
	r.Origin = domain.OriginExternal
	r.ClientID = "bounty-web"
	if r.CustomerID == "" {
		r.CustomerID = "guild-1"
	}
	// The reconciler may store view pointers concurrently; the web client
	// retries lost races like any other writer.
	for attempt := 0; ; attempt++ {
		res, err := f.engine.Apply(context.Background(), r)
		if domain.IsConcurrentModification(err) && attempt < 5 {
			continue
		}
		require.NoError(t, err)
		return res.Bounty
	}
}

func createRequest() domain.Request {
	return domain.Request{
		Activity: domain.ActivityCreate,
		Actor:    creator,
		Payload: domain.Payload{
			Title:  "Fix the login page",
			Reward: &domain.Reward{Currency: "USD", Amount: 2500, Scale: 2},
		},
	}
}

func activity(a domain.Activity, id string, actor domain.ActorRef) domain.Request {
	return domain.Request{Activity: a, BountyID: id, Actor: actor}
}

// drain processes every change after the fixture's cursor and returns the
// decisions in feed order.
func (f *fixture) drain(t *testing.T) []Decision {
	t.Helper()
	ctx := context.Background()
	var out []Decision
	for {
		changes, err := f.store.ReadChanges(ctx, f.cursor, 100)
		require.NoError(t, err)
		if len(changes) == 0 {
			return out
		}
		for _, c := range changes {
			d, err := f.reconciler.Process(ctx, c)
			require.NoError(t, err, "change %d", c.Seq)
			out = append(out, d)
			f.cursor = c.Seq
		}
	}
}

func count(ds []Decision, want Decision) int {
	n := 0
	for _, d := range ds {
		if d == want {
			n++
		}
	}
	return n
}

// fakeFeed serves queued errors, then queued batches, then blocks until the
// context ends.
type fakeFeed struct {
	mu      sync.Mutex
	errs    []error
	batches [][]domain.Change
	acked   []int64
}

func (f *fakeFeed) Next(ctx context.Context) ([]domain.Change, error) {
	f.mu.Lock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		f.mu.Unlock()
		return nil, err
	}
	if len(f.batches) > 0 {
		b := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return b, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeFeed) Ack(_ context.Context, seq int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, seq)
	return nil
}

func (f *fakeFeed) Acked() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.acked...)
}

// stubHandler returns queued errors, then dispatches everything.
type stubHandler struct {
	mu   sync.Mutex
	errs []error
	reqs []domain.Request
}

func (h *stubHandler) Handle(_ context.Context, req domain.Request) (*pipeline.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reqs = append(h.reqs, req)
	if len(h.errs) > 0 {
		err := h.errs[0]
		h.errs = h.errs[1:]
		return nil, err
	}
	return &pipeline.Outcome{Bounty: req.Document, Dispatched: true}, nil
}

func (h *stubHandler) Requests() []domain.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Request(nil), h.reqs...)
}

func storeFeedOptions() store.FeedOptions {
	opts := store.DefaultFeedOptions()
	opts.Poll = 20 * time.Millisecond
	return opts
}
