package engine

import (
	"context"
	"time"

	"github.com/roach88/bountyboard/internal/domain"
)

// maxChildren bounds the children query in RepairChildren.
const maxChildren = 1000

// claimEvergreen claims an evergreen parent by deriving a child.
//
// Sequence:
//  1. Insert the child in Open
//  2. Attach the child id to the parent, closing the parent when the claim
//     limit is reached (bounded retry on a lost race)
//  3. Claim the child
//
// If step 2 fails the child is retired to Deleted so it is neither claimable
// nor adopted by RepairChildren.
func (e *Engine) claimEvergreen(ctx context.Context, req domain.Request, parent *domain.Bounty) (*Result, error) {
	if err := checkClaimable(parent, req.Activity); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	child := e.deriveChild(parent, now)
	if _, err := e.store.Insert(ctx, child); err != nil {
		return nil, err
	}

	updated, parentIdx, closed, err := e.attachChild(ctx, req, parent, child.ID, now)
	if err != nil {
		e.retireChild(ctx, req, child, now)
		return nil, err
	}

	next := child.Clone()
	next.SetStatus(domain.StatusInProgress, now)
	next.SetClaimedBy(req.Actor)
	idx := next.Record(e.entry(req, domain.ActivityClaim, now))
	if err := e.write(ctx, domain.ActivityClaim, child, next); err != nil {
		// The child stays Open and attached; it is an ordinary claimable
		// bounty from here on.
		e.logger.Error("evergreen child claim failed",
			"bounty_id", child.ID,
			"parent_id", parent.ID,
			"error", err,
		)
		return nil, err
	}

	e.logger.Info("evergreen child claimed",
		"bounty_id", next.ID,
		"parent_id", parent.ID,
		"children", len(updated.ChildrenIDs),
		"parent_closed", closed,
		"origin", req.Origin,
	)

	return &Result{
		Bounty:         next,
		ActivityIndex:  idx,
		PreviousStatus: child.Status,
		Parent:         updated,
		ParentIndex:    parentIdx,
		ParentClosed:   closed,
	}, nil
}

// checkClaimable reports whether parent can take another claim.
func checkClaimable(parent *domain.Bounty, activity domain.Activity) error {
	if err := requireStatus(parent, activity, domain.StatusOpen); err != nil {
		return err
	}
	if parent.ClaimLimitReached() {
		return domain.NewPreconditionError(parent, activity, "claim limit of %d reached", *parent.ClaimLimit)
	}
	return nil
}

// deriveChild copies the descriptive, reward and gate fields of parent into
// a new Open record. Parent bookkeeping (isParent, childrenIds, claimLimit)
// is not copied.
func (e *Engine) deriveChild(parent *domain.Bounty, now time.Time) *domain.Bounty {
	src := parent.Clone()
	child := &domain.Bounty{
		ID:          e.ids.Generate(),
		CustomerID:  src.CustomerID,
		Title:       src.Title,
		Description: src.Description,
		Criteria:    src.Criteria,
		Reward:      src.Reward,
		DueAt:       src.DueAt,
		PaidStatus:  domain.Unpaid,
		CreatedBy:   src.CreatedBy,
		Evergreen:   true,
		ParentID:    src.ID,
		Gate:        src.Gate,
		Tags:        src.Tags,
		CreatedAt:   now,
	}
	child.SetStatus(domain.StatusOpen, now)
	return child
}

// attachChild appends childID to the parent's children and records the
// claim on the parent. When the children count reaches the claim limit the
// parent moves to Deleted with no deletedBy actor.
//
// On a lost write race the parent is re-read and the step retried, up to
// the engine's parent retry bound. Returns the written parent and the index
// of its last new activity entry.
func (e *Engine) attachChild(
	ctx context.Context,
	req domain.Request,
	parent *domain.Bounty,
	childID string,
	now time.Time,
) (*domain.Bounty, int, bool, error) {
	prev := parent
	for attempt := 1; ; attempt++ {
		if err := checkClaimable(prev, req.Activity); err != nil {
			return nil, 0, false, err
		}

		next := prev.Clone()
		if !next.HasChild(childID) {
			next.ChildrenIDs = append(next.ChildrenIDs, childID)
		}
		idx := next.Record(e.entry(req, domain.ActivityClaim, now))

		closed := next.ClaimLimitReached()
		if closed {
			next.SetStatus(domain.StatusDeleted, now)
			idx = next.Record(e.automaticEntry(req, domain.ActivityDelete, now))
		}

		n, err := e.store.ConditionalUpdate(ctx, prev, next)
		if err != nil {
			return nil, 0, false, err
		}
		if n == 1 {
			return next, idx, closed, nil
		}

		if attempt >= e.parentRetries {
			return nil, 0, false, domain.NewConcurrentModification(parent.ID, req.Activity)
		}
		e.logger.Debug("evergreen parent changed, retrying attach",
			"parent_id", parent.ID,
			"attempt", attempt,
		)
		prev, err = e.store.Get(ctx, parent.ID)
		if err != nil {
			return nil, 0, false, err
		}
	}
}

// retireChild moves an unattached child to Deleted. Failure is logged only;
// the child then stays Open with a parentId and RepairChildren will adopt it.
func (e *Engine) retireChild(ctx context.Context, req domain.Request, child *domain.Bounty, now time.Time) {
	next := child.Clone()
	next.SetStatus(domain.StatusDeleted, now)
	next.Record(e.automaticEntry(req, domain.ActivityDelete, now))
	if err := e.write(ctx, domain.ActivityDelete, child, next); err != nil {
		e.logger.Error("failed to retire unattached evergreen child",
			"bounty_id", child.ID,
			"parent_id", child.ParentID,
			"error", err,
		)
	}
}

// RepairChildren restores children missing from an evergreen parent's
// childrenIds by querying for records whose parentId names it. Retired
// children (Deleted, never claimed) are not adopted. Returns whether the
// parent was rewritten.
//
// The repair is bookkeeping only and appends no activity entry, unless the
// adopted children exhaust the claim limit of an Open parent, which is then
// closed exactly as a claim would close it.
func (e *Engine) RepairChildren(ctx context.Context, parentID string) (bool, error) {
	prev, err := e.store.Get(ctx, parentID)
	if err != nil {
		return false, err
	}
	if !prev.EvergreenParent() {
		return false, nil
	}

	children, err := e.store.Query(ctx, domain.Filter{ParentID: parentID}, maxChildren)
	if err != nil {
		return false, err
	}

	next := prev.Clone()
	for _, c := range children {
		if next.HasChild(c.ID) {
			continue
		}
		if c.Status == domain.StatusDeleted && c.ClaimedBy == nil {
			continue
		}
		if next.ClaimLimitReached() {
			e.logger.Warn("evergreen child beyond claim limit not adopted",
				"parent_id", parentID,
				"bounty_id", c.ID,
			)
			continue
		}
		next.ChildrenIDs = append(next.ChildrenIDs, c.ID)
	}
	if len(next.ChildrenIDs) == len(prev.ChildrenIDs) {
		return false, nil
	}

	if next.Status == domain.StatusOpen && next.ClaimLimitReached() {
		now := e.clock.Now()
		next.SetStatus(domain.StatusDeleted, now)
		next.Record(domain.ActivityEntry{
			Activity: domain.ActivityDelete,
			At:       now,
			Origin:   domain.OriginInternal,
			ClientID: e.clientID,
		})
	}

	if err := e.write(ctx, domain.ActivityRefresh, prev, next); err != nil {
		return false, err
	}

	e.logger.Info("evergreen children repaired",
		"parent_id", parentID,
		"before", len(prev.ChildrenIDs),
		"after", len(next.ChildrenIDs),
	)
	return true, nil
}

// RepairAll runs RepairChildren over every Open evergreen parent. Returns
// the number of parents rewritten. A parent that fails is logged and
// skipped; only a failure to list parents is returned.
func (e *Engine) RepairAll(ctx context.Context) (int, error) {
	parents, err := e.store.Query(ctx, domain.Filter{
		ParentsOnly: true,
		Statuses:    []domain.Status{domain.StatusOpen},
	}, maxChildren)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, p := range parents {
		changed, err := e.RepairChildren(ctx, p.ID)
		if err != nil {
			e.logger.Warn("evergreen repair failed",
				"parent_id", p.ID,
				"error", err,
			)
			continue
		}
		if changed {
			repaired++
		}
	}
	return repaired, nil
}
