package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/bountyboard/internal/domain"
	"github.com/roach88/bountyboard/internal/store"
	"github.com/roach88/bountyboard/internal/testutil"
)

var (
	creator  = domain.ActorRef{ID: "u-creator", Name: "Creator"}
	hunter   = domain.ActorRef{ID: "u-hunter", Name: "Hunter"}
	reviewer = domain.ActorRef{ID: "u-reviewer", Name: "Reviewer"}
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// setupEngine creates an engine over a fresh store with a deterministic
// clock and ids "b-1", "b-2", ...
func setupEngine(t *testing.T, opts ...Option) (*Engine, *store.Store) {
	t.Helper()
	s := setupTestStore(t)
	return newTestEngine(t, s, opts...), s
}

func newTestEngine(t *testing.T, s Store, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithClock(testutil.NewStepClock()),
		WithIDGenerator(testutil.NewSequenceIDs("b")),
		WithClientID("engine-test"),
	}
	e, err := New(s, append(base, opts...)...)
	require.NoError(t, err)
	return e
}

func req(activity domain.Activity, id string, actor domain.ActorRef) domain.Request {
	return domain.Request{
		Activity:   activity,
		BountyID:   id,
		CustomerID: "guild-1",
		Actor:      actor,
		Origin:     domain.OriginInternal,
	}
}

func createReq(p domain.Payload) domain.Request {
	if p.Title == "" {
		p.Title = "Fix the login page"
	}
	if p.Reward == nil {
		p.Reward = &domain.Reward{Currency: "USD", Amount: 2500, Scale: 2}
	}
	r := req(domain.ActivityCreate, "", creator)
	r.Payload = p
	return r
}

// mustApply applies r and fails the test on error.
func mustApply(t *testing.T, e *Engine, r domain.Request) *Result {
	t.Helper()
	res, err := e.Apply(context.Background(), r)
	require.NoError(t, err, "apply %s", r.Activity)
	require.NoError(t, domain.CheckInvariants(res.Bounty))
	return res
}

// openBounty creates and publishes a bounty, returning its id.
func openBounty(t *testing.T, e *Engine, p domain.Payload) string {
	t.Helper()
	res := mustApply(t, e, createReq(p))
	mustApply(t, e, req(domain.ActivityPublish, res.Bounty.ID, creator))
	return res.Bounty.ID
}

func intPtr(n int) *int { return &n }
