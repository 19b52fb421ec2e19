package domain

import "time"

// Request is one activity request, the boundary between front-end adapters
// and the activity pipeline.
//
// Document is set only on requests synthesized by the sync reconciler. It
// carries the record another writer already mutated, and tells the pipeline
// to skip the state write and run side effects only.
type Request struct {
	Activity   Activity `json:"activity"`
	BountyID   string   `json:"bountyId,omitempty"`
	CustomerID string   `json:"customerId,omitempty"`
	Actor      ActorRef `json:"actor"`
	Origin     Origin   `json:"origin"`
	ClientID   string   `json:"clientId,omitempty"`
	Payload    Payload  `json:"payload"`

	Document *Bounty `json:"-"`
}

// Payload holds the activity-specific fields. Each activity reads only the
// fields it needs; the validator rejects the rest as missing or malformed.
type Payload struct {
	// create
	Title              string     `json:"title,omitempty"`
	Description        string     `json:"description,omitempty"`
	Criteria           string     `json:"criteria,omitempty"`
	Reward             *Reward    `json:"reward,omitempty"`
	DueAt              *time.Time `json:"dueAt,omitempty"`
	Evergreen          bool       `json:"evergreen,omitempty"`
	ClaimLimit         *int       `json:"claimLimit,omitempty"`
	RequireApplication bool       `json:"requireApplication,omitempty"`
	Gate               *Gate      `json:"gate,omitempty"`
	Informal           bool       `json:"informal,omitempty"`

	// apply
	Pitch string `json:"pitch,omitempty"`

	// assign
	Assignee *ActorRef `json:"assignee,omitempty"`

	// submit, complete
	Notes string `json:"notes,omitempty"`
	URL   string `json:"url,omitempty"`

	// delete
	Force bool `json:"force,omitempty"`

	// tag
	Tags []string `json:"tags,omitempty"`
}

// Replay reports whether the request carries an already-written document.
func (r Request) Replay() bool {
	return r.Document != nil
}

// Filter selects bounties in Query.
type Filter struct {
	CustomerID string
	Statuses   []Status
	ParentID   string

	// ParentsOnly restricts results to evergreen parents.
	ParentsOnly bool
}

// Operation is the kind of mutation a change event reports.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Change is one change-feed event.
type Change struct {
	Seq           int64     `json:"seq"`
	Operation     Operation `json:"operationType"`
	DocumentID    string    `json:"documentId"`
	FullDocument  *Bounty   `json:"fullDocumentAfter,omitempty"`
	ChangedFields []string  `json:"changedFieldNames"`
	RecordedAt    time.Time `json:"recordedAt"`

	// DecodeErr is set when the stored record could not be decoded. The
	// change still carries its Seq so consumers can skip past it.
	DecodeErr error `json:"-"`
}

// Touches reports whether the change modified the named top-level field.
func (c Change) Touches(field string) bool {
	for _, f := range c.ChangedFields {
		if f == field {
			return true
		}
	}
	return false
}
