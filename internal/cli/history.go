package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bountyboard/internal/domain"
)

// HistoryEntry is one activity entry with its side-effect state.
type HistoryEntry struct {
	Index      int       `json:"index"`
	Activity   string    `json:"activity"`
	At         time.Time `json:"at"`
	Origin     string    `json:"origin"`
	ClientID   string    `json:"client_id,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Dispatched bool      `json:"dispatched"`
}

// HistoryResult is the output of the history command.
type HistoryResult struct {
	BountyID string               `json:"bounty_id"`
	Status   []domain.StatusEntry `json:"status_history"`
	Entries  []HistoryEntry       `json:"activity_history"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <bounty-id>",
		Short: "Show a bounty's status and activity history",
		Long: `Show the status history and activity history of a bounty.

Each activity entry is listed with its origin and whether its views and
notices have been dispatched. An external entry that is not yet dispatched
is waiting for the sync reconciler.

Example:
  bountyd history 0190c6c2-... --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runHistory(opts *RootOptions, id string, cmd *cobra.Command) error {
	out := formatter(opts, cmd)

	rt, err := openRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.close(opts)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := rt.store.Get(ctx, id)
	if err != nil {
		_ = out.DomainError(err)
		return activityExitError("history failed", err)
	}

	result := HistoryResult{
		BountyID: b.ID,
		Status:   b.StatusHistory,
		Entries:  make([]HistoryEntry, 0, len(b.ActivityHistory)),
	}
	for i, e := range b.ActivityHistory {
		dispatched, err := rt.store.SideEffectClaimed(ctx, b.ID, i)
		if err != nil {
			return activityExitError("history failed", err)
		}
		entry := HistoryEntry{
			Index:      i,
			Activity:   string(e.Activity),
			At:         e.At,
			Origin:     e.Origin.String(),
			ClientID:   e.ClientID,
			Dispatched: dispatched,
		}
		if e.Actor != nil {
			entry.Actor = e.Actor.ID
		}
		result.Entries = append(result.Entries, entry)
	}

	if opts.Format == "json" {
		return out.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Bounty: %s\n\nStatus:\n", result.BountyID)
	for _, s := range result.Status {
		fmt.Fprintf(w, "  %s  %s\n", s.At.Format(time.RFC3339), s.Status)
	}
	fmt.Fprintln(w, "\nActivity:")
	for _, e := range result.Entries {
		mark := "·"
		if e.Dispatched {
			mark = "✓"
		}
		actor := e.Actor
		if actor == "" {
			actor = "-"
		}
		fmt.Fprintf(w, "  %s [%d] %s  %-8s %-8s by %s\n",
			mark, e.Index, e.At.Format(time.RFC3339), e.Activity, e.Origin, actor)
	}
	return nil
}
