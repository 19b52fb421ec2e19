package domain

import (
	"encoding/json"
	"time"
)

// Bounty is the canonical persisted record of one unit of rewarded work.
//
// JSON field names are part of the persistence schema: the change feed
// reports changed fields by these names.
type Bounty struct {
	ID          string     `json:"id"`
	CustomerID  string     `json:"customerId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Criteria    string     `json:"criteria,omitempty"`
	Reward      Reward     `json:"reward"`
	DueAt       *time.Time `json:"dueAt,omitempty"`

	Status          Status          `json:"status"`
	StatusHistory   []StatusEntry   `json:"statusHistory"`
	PaidStatus      PaidStatus      `json:"paidStatus"`
	ActivityHistory []ActivityEntry `json:"activityHistory"`

	CreatedBy   *ActorRef `json:"createdBy,omitempty"`
	ClaimedBy   *ActorRef `json:"claimedBy,omitempty"`
	SubmittedBy *ActorRef `json:"submittedBy,omitempty"`
	ReviewedBy  *ActorRef `json:"reviewedBy,omitempty"`
	DeletedBy   *ActorRef `json:"deletedBy,omitempty"`
	PaidBy      *ActorRef `json:"paidBy,omitempty"`

	Evergreen   bool     `json:"evergreen,omitempty"`
	ClaimLimit  *int     `json:"claimLimit,omitempty"`
	IsParent    bool     `json:"isParent,omitempty"`
	ParentID    string   `json:"parentId,omitempty"`
	ChildrenIDs []string `json:"childrenIds,omitempty"`

	RequireApplication bool        `json:"requireApplication,omitempty"`
	Applicants         []Applicant `json:"applicants,omitempty"`
	AssignTo           *ActorRef   `json:"assignTo,omitempty"`

	Views map[Audience]ViewPointer `json:"views,omitempty"`
	Gate  *Gate                    `json:"gate,omitempty"`

	// Informal marks already-done work recorded only so it can be paid.
	Informal        bool     `json:"informal,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	SubmissionNotes string   `json:"submissionNotes,omitempty"`
	SubmissionURL   string   `json:"submissionUrl,omitempty"`
	CompletionNotes string   `json:"completionNotes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy of b.
func (b *Bounty) Clone() *Bounty {
	data, err := json.Marshal(b)
	if err != nil {
		panic("domain: marshal bounty: " + err.Error())
	}
	var out Bounty
	if err := json.Unmarshal(data, &out); err != nil {
		panic("domain: unmarshal bounty: " + err.Error())
	}
	return &out
}

// SetStatus moves b to s and appends the matching history entry. The entry
// timestamp never precedes the previous entry's.
func (b *Bounty) SetStatus(s Status, at time.Time) {
	if n := len(b.StatusHistory); n > 0 && at.Before(b.StatusHistory[n-1].At) {
		at = b.StatusHistory[n-1].At
	}
	b.Status = s
	b.StatusHistory = append(b.StatusHistory, StatusEntry{Status: s, At: at})
}

// Record appends an activity entry and returns its index.
func (b *Bounty) Record(entry ActivityEntry) int {
	if last := b.LastActivity(); last != nil && entry.At.Before(last.At) {
		entry.At = last.At
	}
	b.ActivityHistory = append(b.ActivityHistory, entry)
	return len(b.ActivityHistory) - 1
}

// LastActivity returns the most recent activity entry, or nil.
func (b *Bounty) LastActivity() *ActivityEntry {
	if len(b.ActivityHistory) == 0 {
		return nil
	}
	return &b.ActivityHistory[len(b.ActivityHistory)-1]
}

// EvergreenParent reports whether claims against b produce children.
func (b *Bounty) EvergreenParent() bool {
	return b.Evergreen && b.IsParent
}

// ClaimLimitReached reports whether an evergreen parent holds as many
// children as its claim limit allows.
func (b *Bounty) ClaimLimitReached() bool {
	return b.ClaimLimit != nil && len(b.ChildrenIDs) >= *b.ClaimLimit
}

// HasChild reports whether id is already recorded as a child of b.
func (b *Bounty) HasChild(id string) bool {
	for _, c := range b.ChildrenIDs {
		if c == id {
			return true
		}
	}
	return false
}

// Applicant returns the application made by actor id, if any.
func (b *Bounty) Applicant(id string) (Applicant, bool) {
	for _, a := range b.Applicants {
		if a.Actor.ID == id {
			return a, true
		}
	}
	return Applicant{}, false
}

// View returns the stored pointer for an audience, if any.
func (b *Bounty) View(a Audience) (ViewPointer, bool) {
	p, ok := b.Views[a]
	return p, ok
}

// SetView stores or clears the pointer for an audience.
func (b *Bounty) SetView(a Audience, p *ViewPointer) {
	if p == nil {
		delete(b.Views, a)
		if len(b.Views) == 0 {
			b.Views = nil
		}
		return
	}
	if b.Views == nil {
		b.Views = make(map[Audience]ViewPointer)
	}
	b.Views[a] = *p
}

// setOnce assigns actor to *dst unless it is already set. Actor references
// belong to the activity that first caused their transition.
func setOnce(dst **ActorRef, actor ActorRef) {
	if *dst != nil || actor.IsZero() {
		return
	}
	a := actor
	*dst = &a
}

// SetClaimedBy records the claimant unless one is already recorded.
func (b *Bounty) SetClaimedBy(a ActorRef) { setOnce(&b.ClaimedBy, a) }

// SetSubmittedBy records the submitter unless one is already recorded.
func (b *Bounty) SetSubmittedBy(a ActorRef) { setOnce(&b.SubmittedBy, a) }

// SetReviewedBy records the reviewer unless one is already recorded.
func (b *Bounty) SetReviewedBy(a ActorRef) { setOnce(&b.ReviewedBy, a) }

// SetDeletedBy records who deleted the bounty unless one is already recorded.
func (b *Bounty) SetDeletedBy(a ActorRef) { setOnce(&b.DeletedBy, a) }

// SetPaidBy records the payer unless one is already recorded.
func (b *Bounty) SetPaidBy(a ActorRef) { setOnce(&b.PaidBy, a) }

// SetCreatedBy records the creator unless one is already recorded.
func (b *Bounty) SetCreatedBy(a ActorRef) { setOnce(&b.CreatedBy, a) }
