package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bountyboard/internal/domain"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Customer  string
	Actor     string
	ActorName string
	Payload   string // JSON object
}

// ApplyResult is the output of a successful apply.
type ApplyResult struct {
	BountyID      string        `json:"bounty_id"`
	Activity      string        `json:"activity"`
	Status        domain.Status `json:"status"`
	Paid          bool          `json:"paid"`
	ActivityIndex int           `json:"activity_index"`
	Attempts      int           `json:"attempts"`
	ParentID      string        `json:"parent_id,omitempty"`
	ParentClosed  bool          `json:"parent_closed,omitempty"`
}

func (r ApplyResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✓ %s %s -> %s", r.Activity, r.BountyID, r.Status)
	if r.Paid {
		sb.WriteString(" (paid)")
	}
	if r.ParentID != "" {
		fmt.Fprintf(&sb, "\n  parent %s", r.ParentID)
		if r.ParentClosed {
			sb.WriteString(" closed: claim limit reached")
		}
	}
	return sb.String()
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <activity> [bounty-id]",
		Short: "Apply one activity through the pipeline",
		Long: `Apply one activity to a bounty as this engine.

The request runs through the same pipeline the chat front-end uses: the
transition is written, then views and notices are dispatched. Every
activity except create needs a bounty id.

Activities: create, publish, claim, apply, assign, submit, complete, pay,
delete, tag, refresh

Examples:
  bountyd apply create --customer guild-1 --actor u1 \
    --payload '{"title":"Fix the docs","reward":{"currency":"USD","amount":2500,"scale":2}}'
  bountyd apply publish 0190c6c2-... --customer guild-1 --actor u1
  bountyd apply claim 0190c6c2-... --customer guild-1 --actor u2 --format json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bountyID := ""
			if len(args) == 2 {
				bountyID = args[1]
			}
			return runApply(opts, args[0], bountyID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Customer, "customer", "", "customer (tenant) id (required)")
	_ = cmd.MarkFlagRequired("customer")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "id of the user performing the activity (required)")
	_ = cmd.MarkFlagRequired("actor")
	cmd.Flags().StringVar(&opts.ActorName, "actor-name", "", "display name of the actor")
	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "activity payload as a JSON object")

	return cmd
}

func runApply(opts *ApplyOptions, activityName, bountyID string, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	req, err := buildRequest(opts, activityName, bountyID)
	if err != nil {
		_ = out.Error("E_COMMAND", err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid request", err)
	}

	rt, err := openRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.close(opts.RootOptions)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	outcome, err := rt.pipeline.Handle(ctx, req)
	if err != nil {
		_ = out.DomainError(err)
		return activityExitError(fmt.Sprintf("%s failed", req.Activity), err)
	}

	res := outcome.Result
	result := ApplyResult{
		BountyID:      res.Bounty.ID,
		Activity:      string(req.Activity),
		Status:        res.Bounty.Status,
		Paid:          res.Bounty.PaidStatus == domain.Paid,
		ActivityIndex: res.ActivityIndex,
		Attempts:      outcome.Attempts,
		ParentClosed:  res.ParentClosed,
	}
	if res.Parent != nil {
		result.ParentID = res.Parent.ID
	}
	out.VerboseLog("applied %s to %s in %d attempt(s)", req.Activity, result.BountyID, outcome.Attempts)
	return out.Success(result)
}

// buildRequest parses the command line into an internal-origin request.
func buildRequest(opts *ApplyOptions, activityName, bountyID string) (domain.Request, error) {
	activity, err := domain.ParseActivity(activityName)
	if err != nil {
		return domain.Request{}, err
	}
	if activity != domain.ActivityCreate && bountyID == "" {
		return domain.Request{}, fmt.Errorf("%s needs a bounty id", activity)
	}
	if activity == domain.ActivityCreate && bountyID != "" {
		return domain.Request{}, fmt.Errorf("create does not take a bounty id")
	}

	req := domain.Request{
		Activity:   activity,
		BountyID:   bountyID,
		CustomerID: opts.Customer,
		Actor:      domain.ActorRef{ID: opts.Actor, Name: opts.ActorName},
		Origin:     domain.OriginInternal,
	}
	if opts.Payload != "" {
		dec := json.NewDecoder(strings.NewReader(opts.Payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req.Payload); err != nil {
			return domain.Request{}, fmt.Errorf("invalid --payload: %w", err)
		}
	}
	return req, nil
}
