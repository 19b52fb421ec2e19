package harness

import (
	"context"
	"fmt"

	"github.com/roach88/bountyboard/internal/domain"
)

// Getter reads bounties for assertions. Implemented by store.Store.
type Getter interface {
	Get(ctx context.Context, id string) (*domain.Bounty, error)
}

// EvaluateAssertions checks every assertion against the store and records
// failures on result.
func EvaluateAssertions(ctx context.Context, g Getter, assertions []Assertion, result *Result) error {
	for i, a := range assertions {
		id := resolve(result, a.Bounty)
		b, err := g.Get(ctx, id)
		if domain.IsNotFound(err) {
			result.AddError(fmt.Sprintf("assertions[%d]: bounty %s (%s) does not exist", i, a.Bounty, id))
			continue
		}
		if err != nil {
			return err
		}
		for _, msg := range check(a, b) {
			result.AddError(fmt.Sprintf("assertions[%d] %s: %s", i, a.Bounty, msg))
		}
	}
	return nil
}

func check(a Assertion, b *domain.Bounty) []string {
	var failures []string
	if a.Status != "" && string(b.Status) != a.Status {
		failures = append(failures, fmt.Sprintf("status: expected %s, got %s", a.Status, b.Status))
	}
	if a.Paid != nil && *a.Paid != (b.PaidStatus == domain.Paid) {
		failures = append(failures, fmt.Sprintf("paid: expected %t, got %s", *a.Paid, b.PaidStatus))
	}
	if a.HistoryLen != nil && len(b.ActivityHistory) != *a.HistoryLen {
		failures = append(failures, fmt.Sprintf("history_len: expected %d, got %d", *a.HistoryLen, len(b.ActivityHistory)))
	}
	if a.Children != nil && len(b.ChildrenIDs) != *a.Children {
		failures = append(failures, fmt.Sprintf("children: expected %d, got %d", *a.Children, len(b.ChildrenIDs)))
	}
	if err := domain.CheckInvariants(b); err != nil {
		failures = append(failures, err.Error())
	}
	return failures
}
