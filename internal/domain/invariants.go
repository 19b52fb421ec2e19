package domain

import "fmt"

// CheckInvariants verifies the structural invariants every stored bounty
// must satisfy. It returns the first violation found.
func CheckInvariants(b *Bounty) error {
	if !b.Status.Valid() {
		return fmt.Errorf("bounty %s: unknown status %q", b.ID, b.Status)
	}
	if len(b.StatusHistory) == 0 {
		return fmt.Errorf("bounty %s: empty status history", b.ID)
	}
	for i := 1; i < len(b.StatusHistory); i++ {
		if b.StatusHistory[i].At.Before(b.StatusHistory[i-1].At) {
			return fmt.Errorf("bounty %s: status history entry %d precedes entry %d", b.ID, i, i-1)
		}
	}
	if last := b.StatusHistory[len(b.StatusHistory)-1]; last.Status != b.Status {
		return fmt.Errorf("bounty %s: status %q but last history entry is %q", b.ID, b.Status, last.Status)
	}
	if b.EvergreenParent() {
		for _, e := range b.StatusHistory {
			if e.Status == StatusInProgress || e.Status == StatusInReview {
				return fmt.Errorf("bounty %s: evergreen parent entered %q", b.ID, e.Status)
			}
		}
	}
	if b.ClaimLimit != nil && len(b.ChildrenIDs) > *b.ClaimLimit {
		return fmt.Errorf("bounty %s: %d children exceed claim limit %d", b.ID, len(b.ChildrenIDs), *b.ClaimLimit)
	}
	if b.ParentID != "" && b.IsParent {
		return fmt.Errorf("bounty %s: child marked as parent", b.ID)
	}
	return nil
}
