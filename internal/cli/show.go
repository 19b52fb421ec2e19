package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bountyboard/internal/domain"
	"github.com/roach88/bountyboard/internal/view"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Customer string
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <bounty-id>",
		Short: "Show one bounty",
		Long: `Show the current state of a bounty.

Text output renders the same summary the views use. JSON output prints the
stored document.

Examples:
  bountyd show 0190c6c2-...
  bountyd show 0190c6c2-... --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Customer, "customer", "", "fail unless the bounty belongs to this customer")

	return cmd
}

func runShow(opts *ShowOptions, id string, cmd *cobra.Command) error {
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

	b, err := rt.store.Get(ctx, id)
	if err == nil && opts.Customer != "" && b.CustomerID != opts.Customer {
		err = domain.NewNotFound(id)
	}
	if err != nil {
		_ = out.DomainError(err)
		return activityExitError("show failed", err)
	}

	if opts.Format == "json" {
		return out.Success(b)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s  [%s]\n", b.ID, b.CustomerID)
	fmt.Fprint(w, view.Summarize(b).Text())
	if b.ParentID != "" {
		fmt.Fprintf(w, "parent: %s\n", b.ParentID)
	}
	for _, a := range domain.Audiences {
		if p, ok := b.View(a); ok {
			fmt.Fprintf(w, "view %s: %s/%s\n", a, p.ChannelID, p.MessageID)
		}
	}
	return nil
}
