package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bountyboard/internal/domain"
	"github.com/roach88/bountyboard/internal/engine"
	"github.com/roach88/bountyboard/internal/store"
)

const createPayload = `{"title":"Fix the docs","reward":{"currency":"USD","amount":2500,"scale":2}}`

func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestApply_Lifecycle(t *testing.T) {
	h := newHarnessCLI(t)

	out := h.mustRun("apply", "create", "--customer", "guild-1", "--actor", "u1", "--payload", createPayload, "--format", "json")
	var created ApplyResult
	decodeData(t, out, &created)
	assert.Equal(t, "b-1", created.BountyID)
	assert.Equal(t, domain.StatusDraft, created.Status)
	assert.Equal(t, 0, created.ActivityIndex)
	assert.Equal(t, 1, created.Attempts)

	h.mustRun("apply", "publish", "b-1", "--customer", "guild-1", "--actor", "u1")
	out = h.mustRun("apply", "claim", "b-1", "--customer", "guild-1", "--actor", "u2", "--actor-name", "Hunter")
	assert.Contains(t, out, "✓ claim b-1 -> in_progress")

	out = h.mustRun("show", "b-1")
	assert.Contains(t, out, "b-1  [guild-1]")
	assert.Contains(t, out, "Fix the docs")
	assert.Contains(t, out, "view creator: guild-1/creator/b-1")
	assert.Contains(t, out, "view claimant: guild-1/claimant/b-1")
}

func TestApply_RejectedRequest(t *testing.T) {
	h := newHarnessCLI(t)
	h.mustRun("apply", "create", "--customer", "guild-1", "--actor", "u1", "--payload", createPayload)

	out, err := h.run("apply", "claim", "b-1", "--customer", "guild-1", "--actor", "u2", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PRECONDITION_FAILED", resp.Error.Code)
	assert.Equal(t, "b-1", resp.Error.BountyID)
}

func TestApply_BadCommandLine(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown activity", []string{"apply", "bribe", "b-1"}, "not supported"},
		{"missing id", []string{"apply", "publish"}, "publish needs a bounty id"},
		{"create with id", []string{"apply", "create", "b-1"}, "create does not take a bounty id"},
		{"bad payload", []string{"apply", "tag", "b-1", "--payload", `{"tagz":["x"]}`}, "invalid --payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarnessCLI(t)
			args := append(tt.args, "--customer", "guild-1", "--actor", "u1")
			_, err := h.run(args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApply_RequiredFlags(t *testing.T) {
	h := newHarnessCLI(t)
	_, err := h.run("apply", "create", "--actor", "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"customer" not set`)
}

func TestShow_CustomerMismatchIsNotFound(t *testing.T) {
	h := newHarnessCLI(t)
	h.mustRun("apply", "create", "--customer", "guild-1", "--actor", "u1", "--payload", createPayload)

	_, err := h.run("show", "b-1", "--customer", "guild-2")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))

	out := h.mustRun("show", "b-1", "--format", "json")
	var b domain.Bounty
	decodeData(t, out, &b)
	assert.Equal(t, "guild-1", b.CustomerID)
}

func TestHistory_ShowsDispatchState(t *testing.T) {
	h := newHarnessCLI(t)
	h.mustRun("apply", "create", "--customer", "guild-1", "--actor", "u1", "--payload", createPayload)
	h.mustRun("apply", "publish", "b-1", "--customer", "guild-1", "--actor", "u1")

	// A write from another client is not dispatched until it is replayed.
	st, err := store.Open(h.db)
	require.NoError(t, err)
	eng, err := engine.New(st, engine.WithClock(h.clock))
	require.NoError(t, err)
	_, err = eng.Apply(context.Background(), domain.Request{
		Activity:   domain.ActivityClaim,
		BountyID:   "b-1",
		CustomerID: "guild-1",
		Actor:      domain.ActorRef{ID: "u2"},
		Origin:     domain.OriginExternal,
		ClientID:   "bounty-web",
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out := h.mustRun("history", "b-1", "--format", "json")
	var hist HistoryResult
	decodeData(t, out, &hist)

	require.Len(t, hist.Entries, 3)
	assert.True(t, hist.Entries[0].Dispatched)
	assert.True(t, hist.Entries[1].Dispatched)
	assert.Equal(t, "external", hist.Entries[2].Origin)
	assert.Equal(t, "bounty-web", hist.Entries[2].ClientID)
	assert.False(t, hist.Entries[2].Dispatched)
	require.Len(t, hist.Status, 3)
	assert.Equal(t, domain.StatusInProgress, hist.Status[2].Status)

	text := h.mustRun("history", "b-1")
	assert.Contains(t, text, "· [2]")
	assert.Contains(t, text, "✓ [0]")
}

func TestFeed_ListsChanges(t *testing.T) {
	h := newHarnessCLI(t)
	h.mustRun("apply", "create", "--customer", "guild-1", "--actor", "u1", "--payload", createPayload)
	h.mustRun("apply", "publish", "b-1", "--customer", "guild-1", "--actor", "u1")

	out := h.mustRun("feed", "--format", "json")
	var feed FeedResult
	decodeData(t, out, &feed)

	assert.Equal(t, "reconciler", feed.Consumer)
	assert.Zero(t, feed.Cursor)
	require.NotEmpty(t, feed.Events)
	assert.Equal(t, feed.Latest, feed.Events[len(feed.Events)-1].Seq)

	first := feed.Events[0]
	assert.Equal(t, "insert", first.Operation)
	assert.Equal(t, "b-1", first.BountyID)
	assert.Equal(t, "create", first.Activity)
	assert.Equal(t, "internal", first.Origin)

	out = h.mustRun("feed", "--after", "1", "--limit", "1", "--format", "json")
	decodeData(t, out, &feed)
	require.Len(t, feed.Events, 1)
	assert.Equal(t, int64(2), feed.Events[0].Seq)

	out = h.mustRun("feed", "--bounty", "b-1")
	assert.Contains(t, out, "Consumer reconciler at 0 of")
	assert.Contains(t, out, "last=publish/internal")
}

func TestFeed_PendingWithBountyRejected(t *testing.T) {
	h := newHarnessCLI(t)
	_, err := h.run("feed", "--pending", "--bounty", "b-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRepair_RestoresMissingChild(t *testing.T) {
	h := newHarnessCLI(t)
	h.mustRun("apply", "create", "--customer", "guild-1", "--actor", "u1",
		"--payload", `{"title":"Translate","reward":{"currency":"EUR","amount":5,"scale":0},"evergreen":true,"claimLimit":3}`)
	h.mustRun("apply", "publish", "b-1", "--customer", "guild-1", "--actor", "u1")

	// Insert a child the parent does not list, as if a claim stopped
	// between the child insert and the parent update.
	st, err := store.Open(h.db)
	require.NoError(t, err)
	parent, err := st.Get(context.Background(), "b-1")
	require.NoError(t, err)
	orphan := &domain.Bounty{
		ID:         "orphan-1",
		CustomerID: parent.CustomerID,
		Title:      parent.Title,
		Reward:     parent.Reward,
		PaidStatus: domain.Unpaid,
		Evergreen:  true,
		ParentID:   parent.ID,
		CreatedAt:  h.clock.Now(),
	}
	orphan.SetStatus(domain.StatusOpen, orphan.CreatedAt)
	_, err = st.Insert(context.Background(), orphan)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out := h.mustRun("repair", "b-1")
	assert.Contains(t, out, "b-1: children restored")

	out = h.mustRun("repair", "--format", "json")
	var res RepairResult
	decodeData(t, out, &res)
	assert.Zero(t, res.Repaired, "already repaired")

	out = h.mustRun("show", "b-1", "--format", "json")
	var b domain.Bounty
	decodeData(t, out, &b)
	assert.Equal(t, []string{"orphan-1"}, b.ChildrenIDs)
}

func TestRepair_UnknownParent(t *testing.T) {
	h := newHarnessCLI(t)
	_, err := h.run("repair", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, domain.IsNotFound(err))
}

func TestOpenRuntime_UnwritableDatabase(t *testing.T) {
	h := newHarnessCLI(t)
	h.db = filepath.Join(t.TempDir(), "missing-dir", "sub", "x.db")
	_, err := h.run("feed")
	require.Error(t, err)
	assert.Equal(t, ExitUnavailable, GetExitCode(err))
}
