package engine

import (
	"time"

	"github.com/roach88/bountyboard/internal/domain"
)

// transitions has one handler per activity that mutates an existing bounty.
// Each handler checks the activity's required status against b and applies
// its field changes to b in place. Handlers never write.
type transitions interface {
	publish(req domain.Request, b *domain.Bounty, now time.Time) error
	claim(req domain.Request, b *domain.Bounty, now time.Time) error
	apply(req domain.Request, b *domain.Bounty, now time.Time) error
	assign(req domain.Request, b *domain.Bounty, now time.Time) error
	submit(req domain.Request, b *domain.Bounty, now time.Time) error
	complete(req domain.Request, b *domain.Bounty, now time.Time) error
	pay(req domain.Request, b *domain.Bounty, now time.Time) error
	delete(req domain.Request, b *domain.Bounty, now time.Time) error
	tag(req domain.Request, b *domain.Bounty, now time.Time) error
	refresh(req domain.Request, b *domain.Bounty, now time.Time) error
}

var _ transitions = (*Engine)(nil)

// dispatch routes req to its handler.
func (e *Engine) dispatch(req domain.Request, b *domain.Bounty, now time.Time) error {
	switch req.Activity {
	case domain.ActivityPublish:
		return e.publish(req, b, now)
	case domain.ActivityClaim:
		return e.claim(req, b, now)
	case domain.ActivityApply:
		return e.apply(req, b, now)
	case domain.ActivityAssign:
		return e.assign(req, b, now)
	case domain.ActivitySubmit:
		return e.submit(req, b, now)
	case domain.ActivityComplete:
		return e.complete(req, b, now)
	case domain.ActivityPay:
		return e.pay(req, b, now)
	case domain.ActivityDelete:
		return e.delete(req, b, now)
	case domain.ActivityTag:
		return e.tag(req, b, now)
	case domain.ActivityRefresh:
		return e.refresh(req, b, now)
	case domain.ActivityCreate:
		return domain.NewValidationError(req.Activity, "create does not apply to an existing bounty")
	default:
		return domain.NewUnrecognizedActivity(string(req.Activity))
	}
}

// requireStatus fails unless b is in one of the allowed statuses.
func requireStatus(b *domain.Bounty, activity domain.Activity, allowed ...domain.Status) error {
	for _, s := range allowed {
		if b.Status == s {
			return nil
		}
	}
	return domain.NewPreconditionError(b, activity, "bounty is %s", b.Status)
}

func (e *Engine) publish(req domain.Request, b *domain.Bounty, now time.Time) error {
	if err := requireStatus(b, req.Activity, domain.StatusDraft); err != nil {
		return err
	}
	b.SetStatus(domain.StatusOpen, now)
	return nil
}

// claim handles ordinary bounties and evergreen children. Claims against an
// evergreen parent never reach this handler.
func (e *Engine) claim(req domain.Request, b *domain.Bounty, now time.Time) error {
	if b.EvergreenParent() {
		return domain.NewPreconditionError(b, req.Activity, "evergreen parent is claimed through a child")
	}
	if err := requireStatus(b, req.Activity, domain.StatusOpen); err != nil {
		return err
	}
	if b.RequireApplication && (b.AssignTo == nil || b.AssignTo.ID != req.Actor.ID) {
		return domain.NewPreconditionError(b, req.Activity, "bounty requires an accepted application")
	}
	b.SetStatus(domain.StatusInProgress, now)
	b.SetClaimedBy(req.Actor)
	return nil
}

func (e *Engine) apply(req domain.Request, b *domain.Bounty, _ time.Time) error {
	if !b.RequireApplication {
		return domain.NewPreconditionError(b, req.Activity, "bounty does not take applications")
	}
	if _, ok := b.Applicant(req.Actor.ID); ok {
		return domain.NewPreconditionError(b, req.Activity, "actor %s already applied", req.Actor.ID)
	}
	b.Applicants = append(b.Applicants, domain.Applicant{
		Actor: req.Actor,
		Pitch: req.Payload.Pitch,
	})
	return nil
}

func (e *Engine) assign(req domain.Request, b *domain.Bounty, _ time.Time) error {
	if !b.RequireApplication {
		return domain.NewPreconditionError(b, req.Activity, "bounty does not take applications")
	}
	applicant, ok := b.Applicant(req.Payload.Assignee.ID)
	if !ok {
		return domain.NewPreconditionError(b, req.Activity, "%s has not applied", req.Payload.Assignee.ID)
	}
	assignee := applicant.Actor
	b.AssignTo = &assignee
	return nil
}

func (e *Engine) submit(req domain.Request, b *domain.Bounty, now time.Time) error {
	if err := requireStatus(b, req.Activity, domain.StatusInProgress); err != nil {
		return err
	}
	b.SetStatus(domain.StatusInReview, now)
	b.SetSubmittedBy(req.Actor)
	b.SubmissionNotes = req.Payload.Notes
	b.SubmissionURL = req.Payload.URL
	return nil
}

// complete is legal from InReview and directly from InProgress. In the
// latter case there is no submitter; downstream notices go to the claimant.
func (e *Engine) complete(req domain.Request, b *domain.Bounty, now time.Time) error {
	if err := requireStatus(b, req.Activity, domain.StatusInProgress, domain.StatusInReview); err != nil {
		return err
	}
	b.SetStatus(domain.StatusComplete, now)
	b.SetReviewedBy(req.Actor)
	b.CompletionNotes = req.Payload.Notes
	return nil
}

// pay marks payment independently of status. An informal bounty records
// already-done work, so paying it also completes it in the same write.
func (e *Engine) pay(req domain.Request, b *domain.Bounty, now time.Time) error {
	if b.Status == domain.StatusDraft || b.Status == domain.StatusDeleted {
		return domain.NewPreconditionError(b, req.Activity, "bounty is %s", b.Status)
	}
	if b.PaidStatus == domain.Paid {
		return domain.NewPreconditionError(b, req.Activity, "bounty is already paid")
	}
	b.PaidStatus = domain.Paid
	b.SetPaidBy(req.Actor)
	if b.Informal && b.Status != domain.StatusComplete {
		b.SetStatus(domain.StatusComplete, now)
		b.SetReviewedBy(req.Actor)
	}
	return nil
}

// delete is legal from Draft and Open. Force overrides the status check for
// any bounty not already deleted.
func (e *Engine) delete(req domain.Request, b *domain.Bounty, now time.Time) error {
	if b.Status == domain.StatusDeleted {
		return domain.NewPreconditionError(b, req.Activity, "bounty is already deleted")
	}
	if !req.Payload.Force {
		if err := requireStatus(b, req.Activity, domain.StatusDraft, domain.StatusOpen); err != nil {
			return err
		}
	}
	b.SetStatus(domain.StatusDeleted, now)
	b.SetDeletedBy(req.Actor)
	return nil
}

func (e *Engine) tag(req domain.Request, b *domain.Bounty, _ time.Time) error {
	b.Tags = dedupe(b.Tags, req.Payload.Tags)
	return nil
}

// refresh changes nothing; its entry alone asks every view to re-render.
func (e *Engine) refresh(domain.Request, *domain.Bounty, time.Time) error {
	return nil
}

// dedupe appends the values of add missing from have, keeping first-seen
// order.
func dedupe(have, add []string) []string {
	seen := make(map[string]bool, len(have)+len(add))
	out := make([]string, 0, len(have)+len(add))
	for _, v := range append(append([]string{}, have...), add...) {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
