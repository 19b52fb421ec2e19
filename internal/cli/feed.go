package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bountyboard/internal/domain"
	"github.com/roach88/bountyboard/internal/store"
)

// FeedOptions holds flags for the feed command.
type FeedOptions struct {
	*RootOptions
	After   int64
	Limit   int
	Bounty  string
	Pending bool
}

// FeedEvent is one change-feed event as printed by the feed command.
type FeedEvent struct {
	Seq           int64     `json:"seq"`
	Operation     string    `json:"operation"`
	BountyID      string    `json:"bounty_id"`
	ChangedFields []string  `json:"changed_fields,omitempty"`
	Activity      string    `json:"activity,omitempty"`
	Origin        string    `json:"origin,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// FeedResult is the output of the feed command.
type FeedResult struct {
	Consumer string      `json:"consumer"`
	Cursor   int64       `json:"cursor"`
	Latest   int64       `json:"latest"`
	Events   []FeedEvent `json:"events"`
}

// NewFeedCommand creates the feed command.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "List change-feed events",
		Long: `List change-feed events in commit order.

Shows the reconciler's saved cursor alongside the newest sequence so a
backlog is visible. Each event lists the fields it changed and the last
activity entry of the document it wrote.

Examples:
  bountyd feed --limit 20
  bountyd feed --pending
  bountyd feed --bounty 0190c6c2-... --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeed(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.After, "after", 0, "list events after this sequence")
	cmd.Flags().IntVar(&opts.Limit, "limit", store.DefaultQueryLimit, "maximum events to list")
	cmd.Flags().StringVar(&opts.Bounty, "bounty", "", "list every event of one bounty")
	cmd.Flags().BoolVar(&opts.Pending, "pending", false, "list events after the reconciler's cursor")

	return cmd
}

func runFeed(opts *FeedOptions, cmd *cobra.Command) error {
	if opts.Pending && opts.Bounty != "" {
		return NewExitError(ExitCommandError, "--pending and --bounty cannot be combined")
	}

	out := formatter(opts.RootOptions, cmd)

	rt, err := openRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.close(opts.RootOptions)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result := FeedResult{Consumer: opts.Config.Consumer}
	if result.Cursor, err = rt.store.Cursor(ctx, result.Consumer); err != nil {
		return activityExitError("feed failed", err)
	}
	if result.Latest, err = rt.store.LatestSeq(ctx); err != nil {
		return activityExitError("feed failed", err)
	}

	var changes []domain.Change
	switch {
	case opts.Bounty != "":
		changes, err = rt.store.ChangesFor(ctx, opts.Bounty)
	case opts.Pending:
		changes, err = rt.store.ReadChanges(ctx, result.Cursor, opts.Limit)
	default:
		changes, err = rt.store.ReadChanges(ctx, opts.After, opts.Limit)
	}
	if err != nil {
		_ = out.DomainError(err)
		return activityExitError("feed failed", err)
	}

	result.Events = make([]FeedEvent, 0, len(changes))
	for _, c := range changes {
		ev := FeedEvent{
			Seq:           c.Seq,
			Operation:     string(c.Operation),
			BountyID:      c.DocumentID,
			ChangedFields: c.ChangedFields,
			RecordedAt:    c.RecordedAt,
		}
		if c.FullDocument != nil {
			if last := c.FullDocument.LastActivity(); last != nil {
				ev.Activity = string(last.Activity)
				ev.Origin = last.Origin.String()
			}
		}
		result.Events = append(result.Events, ev)
	}

	if opts.Format == "json" {
		return out.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Consumer %s at %d of %d\n", result.Consumer, result.Cursor, result.Latest)
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "No events.")
		return nil
	}
	for _, ev := range result.Events {
		fmt.Fprintf(w, "%6d  %-6s %s  [%s]", ev.Seq, ev.Operation, ev.BountyID, strings.Join(ev.ChangedFields, ","))
		if ev.Activity != "" {
			fmt.Fprintf(w, "  last=%s/%s", ev.Activity, ev.Origin)
		}
		fmt.Fprintln(w)
	}
	return nil
}
