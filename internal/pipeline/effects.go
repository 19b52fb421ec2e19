package pipeline

import (
	"fmt"

	"github.com/roach88/bountyboard/internal/domain"
	"github.com/roach88/bountyboard/internal/view"
)

// Effects are the side effects of one activity entry.
type Effects struct {
	Views   []view.Update
	Notices []view.Notice
}

// audiences returns which renderings a bounty in its current state should
// have. Every other audience with a stored pointer is retired.
func audiences(b *domain.Bounty) map[domain.Audience]bool {
	want := map[domain.Audience]bool{}
	switch b.Status {
	case domain.StatusDraft:
		want[domain.AudienceCreator] = true
	case domain.StatusOpen:
		want[domain.AudienceCreator] = true
		want[domain.AudienceBoard] = true
	case domain.StatusInProgress, domain.StatusInReview:
		want[domain.AudienceCreator] = true
		want[domain.AudienceBoard] = true
		want[domain.AudienceClaimant] = b.ClaimedBy != nil
	case domain.StatusComplete:
		want[domain.AudienceCreator] = true
		want[domain.AudienceClaimant] = b.ClaimedBy != nil
	}
	return want
}

// Plan derives the side effects of the activity entry at idx of b. Views are
// planned from the bounty's state alone, so replaying a plan converges on the
// same renderings. Notices depend on the activity.
func Plan(b *domain.Bounty, idx int) Effects {
	return Effects{
		Views:   planViews(b),
		Notices: planNotices(b, idx),
	}
}

// planViews lists the view updates that bring every audience's rendering in
// line with b, reusing the pointers stored on b.
func planViews(b *domain.Bounty) []view.Update {
	summary := view.Summarize(b)
	want := audiences(b)

	var out []view.Update
	for _, a := range domain.Audiences {
		ptr, has := b.View(a)
		u := view.Update{
			BountyID:   b.ID,
			CustomerID: b.CustomerID,
			Audience:   a,
			Status:     b.Status,
			Summary:    summary,
		}
		if has {
			p := ptr
			u.Pointer = &p
		}
		switch {
		case want[a]:
			out = append(out, u)
		case has:
			u.Retire = true
			out = append(out, u)
		}
	}
	return out
}

// planNotices lists the notices of the activity entry at idx, rendered from
// b as it was when the entry was written.
func planNotices(b *domain.Bounty, idx int) []view.Notice {
	entry := b.ActivityHistory[idx]
	summary := view.Summarize(b)

	var out []view.Notice
	for _, n := range notices(b, entry) {
		n.BountyID = b.ID
		n.CustomerID = b.CustomerID
		n.Activity = entry.Activity
		n.Summary = summary
		out = append(out, n)
	}
	return out
}

// notices lists who hears about an activity directly.
func notices(b *domain.Bounty, entry domain.ActivityEntry) []view.Notice {
	actor := "someone"
	if entry.Actor != nil {
		actor = name(*entry.Actor)
	}
	to := func(r *domain.ActorRef, format string, args ...any) []view.Notice {
		if r == nil {
			return nil
		}
		if entry.Actor != nil && entry.Actor.ID == r.ID {
			return nil
		}
		return []view.Notice{{Recipient: *r, Message: fmt.Sprintf(format, args...)}}
	}

	switch entry.Activity {
	case domain.ActivityClaim:
		if b.EvergreenParent() {
			return nil
		}
		return to(b.CreatedBy, "%s claimed %q", actor, b.Title)
	case domain.ActivityApply:
		return to(b.CreatedBy, "%s applied for %q", actor, b.Title)
	case domain.ActivityAssign:
		return to(b.AssignTo, "you were selected for %q and can now claim it", b.Title)
	case domain.ActivitySubmit:
		return to(b.CreatedBy, "%s submitted %q for review", actor, b.Title)
	case domain.ActivityComplete:
		return to(b.ClaimedBy, "%q was marked complete by %s", b.Title, actor)
	case domain.ActivityPay:
		return to(b.ClaimedBy, "%q was paid", b.Title)
	case domain.ActivityDelete:
		if entry.Actor == nil && b.EvergreenParent() {
			return to(b.CreatedBy, "%q reached its claim limit and was closed", b.Title)
		}
		return to(b.ClaimedBy, "%q was deleted", b.Title)
	default:
		return nil
	}
}

func name(a domain.ActorRef) string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}
