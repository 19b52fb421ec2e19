package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/bountyboard/internal/domain"
	"github.com/roach88/bountyboard/internal/engine"
	"github.com/roach88/bountyboard/internal/pipeline"
	"github.com/roach88/bountyboard/internal/reconcile"
	"github.com/roach88/bountyboard/internal/store"
	"github.com/roach88/bountyboard/internal/testutil"
	"github.com/roach88/bountyboard/internal/view"
)

// Client ids recorded on scenario activity entries.
const (
	EngineClientID = "harness"
	WebClientID    = "harness-web"
)

// Harness executes the steps of one scenario.
type Harness struct {
	store      *store.Store
	engine     *engine.Engine
	pipeline   *pipeline.Pipeline
	reconciler *reconcile.Reconciler
	recorder   *view.Recorder
	customer   string
	cursor     int64
	logger     *slog.Logger
}

// Run executes a scenario against a fresh database and evaluates its
// assertions. Step outcomes that differ from the scenario are reported in
// Result.Errors; the returned error is reserved for infrastructure failures.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "bountyboard-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewStepClock()
	st.SetClock(clock.Peek)

	eng, err := engine.New(st,
		engine.WithClock(clock),
		engine.WithIDGenerator(testutil.NewSequenceIDs("b")),
		engine.WithClientID(EngineClientID),
		engine.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	rec := view.NewRecorder()
	p := pipeline.New(eng, st, rec, rec, pipeline.WithLogger(logger))
	h := &Harness{
		store:      st,
		engine:     eng,
		pipeline:   p,
		reconciler: reconcile.New(nil, st, p, reconcile.WithLogger(logger)),
		recorder:   rec,
		customer:   scenario.Customer,
		logger:     logger,
	}
	if h.customer == "" {
		h.customer = DefaultCustomer
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Activity, err)
		}
	}

	if err := EvaluateAssertions(ctx, st, scenario.Assertions, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (h *Harness) runStep(ctx context.Context, n int, step Step, result *Result) error {
	req, err := h.request(step, result)
	if err != nil {
		return err
	}

	before := len(h.recorder.Notices())
	var written *domain.Bounty
	if req.Origin == domain.OriginExternal {
		res, applyErr := h.engine.Apply(ctx, req)
		if applyErr == nil {
			written = res.Bounty
		}
		err = applyErr
	} else {
		out, handleErr := h.pipeline.Handle(ctx, req)
		if handleErr == nil {
			written = out.Bounty
		}
		err = handleErr
	}

	replayed, drainErr := h.drain(ctx)
	if drainErr != nil {
		return drainErr
	}

	ev := TraceEvent{
		Step:     n,
		Activity: step.Activity,
		Bounty:   req.BountyID,
		Origin:   req.Origin.String(),
		Outcome:  "ok",
		Replayed: replayed,
	}

	switch {
	case err != nil:
		code := domain.CodeOf(err)
		if code == "" || code == domain.ErrCodeDependencyUnavailable {
			return err
		}
		ev.Outcome = string(code)
		if step.ExpectError != string(code) {
			result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", n, step.Activity, err))
		}
	default:
		if step.ExpectError != "" {
			result.AddError(fmt.Sprintf("step %d (%s): expected %s, got success", n, step.Activity, step.ExpectError))
		}
		if step.As != "" {
			result.IDs[step.As] = written.ID
		}
		latest, err := h.store.Get(ctx, written.ID)
		if err != nil {
			return err
		}
		ev.Bounty = latest.ID
		ev.Status = string(latest.Status)
		ev.Paid = latest.PaidStatus == domain.Paid
	}

	for _, notice := range h.recorder.Notices()[before:] {
		ev.Notices = append(ev.Notices, notice.Recipient.ID+":"+string(notice.Activity))
	}
	result.Trace = append(result.Trace, ev)

	h.logger.Info("scenario step",
		"step", n,
		"activity", step.Activity,
		"outcome", ev.Outcome,
	)
	return nil
}

// request builds the activity request for a step.
func (h *Harness) request(step Step, result *Result) (domain.Request, error) {
	req := domain.Request{
		Activity:   domain.Activity(step.Activity),
		BountyID:   resolve(result, step.Bounty),
		CustomerID: h.customer,
		Actor:      domain.ActorRef{ID: step.Actor, Name: step.Actor},
		Origin:     domain.OriginInternal,
	}
	if step.Origin != "" {
		origin, err := domain.ParseOrigin(step.Origin)
		if err != nil {
			return req, err
		}
		req.Origin = origin
	}
	if req.Origin == domain.OriginExternal {
		req.ClientID = WebClientID
	}

	if len(step.Payload) > 0 {
		data, err := json.Marshal(step.Payload)
		if err != nil {
			return req, fmt.Errorf("encode payload: %w", err)
		}
		if err := json.Unmarshal(data, &req.Payload); err != nil {
			return req, fmt.Errorf("decode payload: %w", err)
		}
	}
	return req, nil
}

// drain feeds every new change to the reconciler and returns how many were
// replayed.
func (h *Harness) drain(ctx context.Context) (int, error) {
	replayed := 0
	for {
		changes, err := h.store.ReadChanges(ctx, h.cursor, store.DefaultQueryLimit)
		if err != nil {
			return replayed, err
		}
		if len(changes) == 0 {
			return replayed, nil
		}
		for _, c := range changes {
			d, err := h.reconciler.Process(ctx, c)
			if err != nil {
				return replayed, err
			}
			if d == reconcile.DecisionReplayed {
				replayed++
			}
			h.cursor = c.Seq
		}
	}
}

// resolve maps a label to the bound id, or returns ref unchanged.
func resolve(result *Result, ref string) string {
	if id, ok := result.IDs[ref]; ok {
		return id
	}
	return ref
}
