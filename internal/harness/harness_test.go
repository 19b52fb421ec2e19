package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

func reward() map[string]any {
	return map[string]any{"currency": "USD", "amount": 100, "scale": 2}
}

func TestRun_InternalClaim(t *testing.T) {
	scenario := &Scenario{
		Name:        "internal_claim",
		Description: "claim through the pipeline",
		Customer:    DefaultCustomer,
		Steps: []Step{
			{Activity: "create", As: "b", Actor: "alice", Payload: map[string]any{"title": "Widget", "reward": reward()}},
			{Activity: "publish", Bounty: "b", Actor: "alice"},
			{Activity: "claim", Bounty: "b", Actor: "bob"},
		},
		Assertions: []Assertion{
			{Bounty: "b", Status: "in_progress", Paid: boolPtr(false), HistoryLen: intPtr(3)},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors=%v", result.Errors)
	assert.Equal(t, map[string]string{"b": "b-1"}, result.IDs)

	require.Len(t, result.Trace, 3)
	claim := result.Trace[2]
	assert.Equal(t, "ok", claim.Outcome)
	assert.Equal(t, "in_progress", claim.Status)
	assert.Equal(t, []string{"alice:claim"}, claim.Notices)
	assert.Zero(t, claim.Replayed, "internal writes are never replayed")
}

func TestRun_ExternalClaimReplayedOnce(t *testing.T) {
	scenario := &Scenario{
		Name:        "external_claim",
		Description: "claim written by another client",
		Customer:    DefaultCustomer,
		Steps: []Step{
			{Activity: "create", As: "b", Actor: "alice", Payload: map[string]any{"title": "Widget", "reward": reward()}},
			{Activity: "publish", Bounty: "b", Actor: "alice"},
			{Activity: "claim", Bounty: "b", Actor: "bob", Origin: "external"},
			{Activity: "refresh", Bounty: "b", Actor: "alice"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors=%v", result.Errors)

	require.Len(t, result.Trace, 4)
	assert.Equal(t, "external", result.Trace[2].Origin)
	assert.Equal(t, 1, result.Trace[2].Replayed)
	assert.Equal(t, []string{"alice:claim"}, result.Trace[2].Notices)

	// Later internal steps do not re-dispatch the external claim.
	assert.Zero(t, result.Trace[3].Replayed)
	assert.Empty(t, result.Trace[3].Notices)
}

func TestRun_ExpectedErrorPasses(t *testing.T) {
	scenario := &Scenario{
		Name:        "expected_error",
		Description: "claim before publish",
		Customer:    DefaultCustomer,
		Steps: []Step{
			{Activity: "create", As: "b", Actor: "alice", Payload: map[string]any{"title": "Widget", "reward": reward()}},
			{Activity: "claim", Bounty: "b", Actor: "bob", ExpectError: "PRECONDITION_FAILED"},
		},
		Assertions: []Assertion{{Bounty: "b", Status: "draft", HistoryLen: intPtr(1)}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors=%v", result.Errors)
	assert.Equal(t, "PRECONDITION_FAILED", result.Trace[1].Outcome)
	assert.Equal(t, "b-1", result.Trace[1].Bounty)
	assert.Empty(t, result.Trace[1].Status)
}

func TestRun_UnexpectedOutcomesFail(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected",
		Description: "outcomes differ from the scenario",
		Customer:    DefaultCustomer,
		Steps: []Step{
			{Activity: "create", As: "b", Actor: "alice", Payload: map[string]any{"title": "Widget", "reward": reward()}},
			{Activity: "publish", Bounty: "b", Actor: "alice", ExpectError: "PRECONDITION_FAILED"},
			{Activity: "publish", Bounty: "b", Actor: "alice"},
		},
		Assertions: []Assertion{
			{Bounty: "b", Status: "complete"},
			{Bounty: "missing", Status: "open"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "expected PRECONDITION_FAILED, got success")
	assert.Contains(t, result.Errors[1], "unexpected error")
	assert.Contains(t, result.Errors[2], "status: expected complete, got open")
	assert.Contains(t, result.Errors[3], "does not exist")
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("../../testdata/scenarios/evergreen_limit.yaml")
	require.NoError(t, err)

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
