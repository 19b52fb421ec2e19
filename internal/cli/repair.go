package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// RepairResult is the output of the repair command.
type RepairResult struct {
	ParentID string `json:"parent_id,omitempty"`
	Repaired int    `json:"repaired"`
}

func (r RepairResult) String() string {
	if r.ParentID != "" {
		if r.Repaired == 0 {
			return fmt.Sprintf("%s: nothing to repair", r.ParentID)
		}
		return fmt.Sprintf("✓ %s: children restored", r.ParentID)
	}
	return fmt.Sprintf("✓ %d evergreen parent(s) repaired", r.Repaired)
}

// NewRepairCommand creates the repair command.
func NewRepairCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repair [parent-id]",
		Short: "Restore evergreen parent bookkeeping",
		Long: `Restore children missing from evergreen parents.

A claim against an evergreen parent inserts the child before attaching it
to the parent. If the process stops in between, the child carries a
parentId the parent does not list. repair adopts such children, closing
the parent if its claim limit is then reached.

Without an id every open evergreen parent is repaired, as the scheduler in
serve does periodically.

Examples:
  bountyd repair
  bountyd repair 0190c6c2-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parentID := ""
			if len(args) == 1 {
				parentID = args[0]
			}
			return runRepair(rootOpts, parentID, cmd)
		},
	}
	return cmd
}

func runRepair(opts *RootOptions, parentID string, cmd *cobra.Command) error {
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

	result := RepairResult{ParentID: parentID}
	if parentID != "" {
		changed, err := rt.engine.RepairChildren(ctx, parentID)
		if err != nil {
			_ = out.DomainError(err)
			return activityExitError("repair failed", err)
		}
		if changed {
			result.Repaired = 1
		}
	} else {
		result.Repaired, err = rt.engine.RepairAll(ctx)
		if err != nil {
			_ = out.DomainError(err)
			return activityExitError("repair failed", err)
		}
	}
	return out.Success(result)
}
