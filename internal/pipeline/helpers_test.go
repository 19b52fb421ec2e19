package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/bountyboard/internal/domain"
	"github.com/roach88/bountyboard/internal/engine"
	"github.com/roach88/bountyboard/internal/store"
	"github.com/roach88/bountyboard/internal/testutil"
	"github.com/roach88/bountyboard/internal/view"
)

var (
	creator = domain.ActorRef{ID: "u-creator", Name: "Creator"}
	hunter  = domain.ActorRef{ID: "u-hunter", Name: "Hunter"}
)

type fixture struct {
	store    *store.Store
	engine   *engine.Engine
	recorder *view.Recorder
	pipeline *Pipeline
}

func setupPipeline(t *testing.T, opts ...Option) *fixture {
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
	return &fixture{
		store:    s,
		engine:   e,
		recorder: rec,
		pipeline: New(e, s, rec, rec, opts...),
	}
}

func request(activity domain.Activity, id string, actor domain.ActorRef) domain.Request {
	return domain.Request{
		Activity:   activity,
		BountyID:   id,
		CustomerID: "guild-1",
		Actor:      actor,
		Origin:     domain.OriginInternal,
	}
}

func createRequest(p domain.Payload) domain.Request {
	if p.Title == "" {
		p.Title = "Fix the login page"
	}
	if p.Reward == nil {
		p.Reward = &domain.Reward{Currency: "USD", Amount: 2500, Scale: 2}
	}
	r := request(domain.ActivityCreate, "", creator)
	r.Payload = p
	return r
}

func (f *fixture) mustHandle(t *testing.T, r domain.Request) *Outcome {
	t.Helper()
	out, err := f.pipeline.Handle(context.Background(), r)
	require.NoError(t, err, "handle %s", r.Activity)
	return out
}

// open creates and publishes a bounty through the pipeline.
func (f *fixture) open(t *testing.T, p domain.Payload) string {
	t.Helper()
	out := f.mustHandle(t, createRequest(p))
	f.mustHandle(t, request(domain.ActivityPublish, out.Bounty.ID, creator))
	return out.Bounty.ID
}

func (f *fixture) get(t *testing.T, id string) *domain.Bounty {
	t.Helper()
	b, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return b
}
